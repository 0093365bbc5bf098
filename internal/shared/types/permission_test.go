package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePermission(t *testing.T) {
	cases := []struct {
		token string
		kind  PermissionKind
		value string
	}{
		{"tabs", PermTabs, ""},
		{"webRequestBlocking", PermWebRequestBlocking, ""},
		{"https://*.example.com/*", PermHost, "https://*.example.com/*"},
		{"*://mail.example.org/*", PermHost, "*://mail.example.org/*"},
		{"<all_urls>", PermHost, "<all_urls>"},
		{"futureCapability", PermUnknown, "futureCapability"},
	}

	for _, tc := range cases {
		p := ParsePermission(tc.token)
		assert.Equal(t, tc.kind, p.Kind, tc.token)
		assert.Equal(t, tc.value, p.Value, tc.token)
		assert.Equal(t, tc.token, p.ManifestString(), "round-trip for %s", tc.token)
	}
}

func TestDangerousPermissions(t *testing.T) {
	assert.True(t, ParsePermission("history").IsDangerous())
	assert.True(t, ParsePermission("debugger").IsDangerous())
	assert.True(t, ParsePermission("nativeMessaging").IsDangerous())
	assert.True(t, ParsePermission("https://*/*").IsDangerous())
	assert.False(t, ParsePermission("storage").IsDangerous())
	assert.False(t, ParsePermission("activeTab").IsDangerous())
}

func TestPermissionSetDeduplicates(t *testing.T) {
	s := NewPermissionSet()
	s.Add(ParsePermission("tabs"))
	s.Add(ParsePermission("tabs"))
	s.Add(ParsePermission("https://a.example/*"))
	s.Add(ParsePermission("https://a.example/*"))

	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains(Permission{Kind: PermTabs}))

	// The optional wrapping of a permission is a distinct member.
	s.Add(ParsePermission("tabs").AsOptional())
	assert.Equal(t, 3, s.Len())
}

func TestPermissionSetHostPatterns(t *testing.T) {
	s := NewPermissionSet(
		ParsePermission("storage"),
		ParsePermission("https://b.example/*"),
		ParsePermission("https://a.example/*"),
	)
	assert.Equal(t, []string{"https://a.example/*", "https://b.example/*"}, s.HostPatterns())
}

func TestPermissionSetJSONRoundTrip(t *testing.T) {
	s := NewPermissionSet(
		ParsePermission("tabs"),
		ParsePermission("downloads").AsOptional(),
		ParsePermission("https://a.example/*").AsOptional(),
	)

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var back PermissionSet
	require.NoError(t, json.Unmarshal(data, &back))

	assert.Equal(t, s.Len(), back.Len())
	assert.True(t, back.Contains(Permission{Kind: PermTabs}))
	assert.True(t, back.Contains(Permission{Kind: PermDownloads, Optional: true}),
		"optional flag must survive the round trip")
	assert.True(t, back.Contains(Permission{Kind: PermHost, Value: "https://a.example/*", Optional: true}))
}

func TestRequiresConsent(t *testing.T) {
	safe := Extension{Permissions: NewPermissionSet(ParsePermission("storage"))}
	assert.False(t, safe.RequiresConsent())

	risky := Extension{Permissions: NewPermissionSet(ParsePermission("history"))}
	assert.True(t, risky.RequiresConsent())
}
