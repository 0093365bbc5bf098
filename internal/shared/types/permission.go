package types

import (
	"encoding/json"
	"sort"
	"strings"
)

// PermissionKind discriminates the permission union
type PermissionKind string

const (
	// Named capabilities from the manifest vocabulary
	PermActiveTab          PermissionKind = "activeTab"
	PermAlarms             PermissionKind = "alarms"
	PermBackground         PermissionKind = "background"
	PermBookmarks          PermissionKind = "bookmarks"
	PermBrowsingData       PermissionKind = "browsingData"
	PermClipboardRead      PermissionKind = "clipboardRead"
	PermClipboardWrite     PermissionKind = "clipboardWrite"
	PermContextMenus       PermissionKind = "contextMenus"
	PermCookies            PermissionKind = "cookies"
	PermDebugger           PermissionKind = "debugger"
	PermDeclarativeContent PermissionKind = "declarativeContent"
	PermDownloads          PermissionKind = "downloads"
	PermGeolocation        PermissionKind = "geolocation"
	PermHistory            PermissionKind = "history"
	PermIdentity           PermissionKind = "identity"
	PermIdle               PermissionKind = "idle"
	PermManagement         PermissionKind = "management"
	PermNativeMessaging    PermissionKind = "nativeMessaging"
	PermNotifications      PermissionKind = "notifications"
	PermPageCapture        PermissionKind = "pageCapture"
	PermPrivacy            PermissionKind = "privacy"
	PermProxy              PermissionKind = "proxy"
	PermScripting          PermissionKind = "scripting"
	PermSessions           PermissionKind = "sessions"
	PermStorage            PermissionKind = "storage"
	PermTabs               PermissionKind = "tabs"
	PermTopSites           PermissionKind = "topSites"
	PermTTS                PermissionKind = "tts"
	PermUnlimitedStorage   PermissionKind = "unlimitedStorage"
	PermWebNavigation      PermissionKind = "webNavigation"
	PermWebRequest         PermissionKind = "webRequest"
	PermWebRequestBlocking PermissionKind = "webRequestBlocking"

	// Structured variants
	PermHost    PermissionKind = "host"    // origin-scoped access, Value holds the pattern
	PermUnknown PermissionKind = "unknown" // forward compatibility, Value holds the raw token
)

// namedPermissions is the fixed manifest vocabulary.
var namedPermissions = map[string]PermissionKind{
	"activeTab":          PermActiveTab,
	"alarms":             PermAlarms,
	"background":         PermBackground,
	"bookmarks":          PermBookmarks,
	"browsingData":       PermBrowsingData,
	"clipboardRead":      PermClipboardRead,
	"clipboardWrite":     PermClipboardWrite,
	"contextMenus":       PermContextMenus,
	"cookies":            PermCookies,
	"debugger":           PermDebugger,
	"declarativeContent": PermDeclarativeContent,
	"downloads":          PermDownloads,
	"geolocation":        PermGeolocation,
	"history":            PermHistory,
	"identity":           PermIdentity,
	"idle":               PermIdle,
	"management":         PermManagement,
	"nativeMessaging":    PermNativeMessaging,
	"notifications":      PermNotifications,
	"pageCapture":        PermPageCapture,
	"privacy":            PermPrivacy,
	"proxy":              PermProxy,
	"scripting":          PermScripting,
	"sessions":           PermSessions,
	"storage":            PermStorage,
	"tabs":               PermTabs,
	"topSites":           PermTopSites,
	"tts":                PermTTS,
	"unlimitedStorage":   PermUnlimitedStorage,
	"webNavigation":      PermWebNavigation,
	"webRequest":         PermWebRequest,
	"webRequestBlocking": PermWebRequestBlocking,
}

// hostSchemes mark a manifest token as a host pattern rather than a capability
var hostSchemes = []string{"http://", "https://", "ftp://", "file://", "ws://", "wss://", "*://"}

// Permission is a structural value type; equality and hashing work through
// plain Go comparison, so PermissionSet de-duplicates correctly.
type Permission struct {
	Kind     PermissionKind `json:"kind"`
	Value    string         `json:"value,omitempty"` // host pattern or unknown token
	Optional bool           `json:"optional,omitempty"`
}

// ParsePermission parses a manifest token into a Permission.
// URL-like tokens become host permissions; unrecognized tokens become
// Unknown rather than failing the parse.
func ParsePermission(token string) Permission {
	if kind, ok := namedPermissions[token]; ok {
		return Permission{Kind: kind}
	}
	if token == AllURLs {
		return Permission{Kind: PermHost, Value: token}
	}
	for _, scheme := range hostSchemes {
		if strings.HasPrefix(token, scheme) {
			return Permission{Kind: PermHost, Value: token}
		}
	}
	return Permission{Kind: PermUnknown, Value: token}
}

// AsOptional returns the runtime-requestable wrapping of p.
func (p Permission) AsOptional() Permission {
	p.Optional = true
	return p
}

// ManifestString is the left inverse of ParsePermission for the fixed
// vocabulary; host and unknown tokens round-trip exactly.
func (p Permission) ManifestString() string {
	switch p.Kind {
	case PermHost, PermUnknown:
		return p.Value
	default:
		return string(p.Kind)
	}
}

// IsDangerous reports whether the permission grants cross-cutting
// visibility and therefore requires explicit user consent before the
// owning extension can be enabled.
func (p Permission) IsDangerous() bool {
	switch p.Kind {
	case PermHistory, PermDebugger, PermNativeMessaging, PermHost:
		return true
	}
	return false
}

// PermissionSet holds a de-duplicated set of permissions.
// Order is irrelevant; iteration is sorted by manifest string for
// deterministic output.
type PermissionSet struct {
	items map[Permission]struct{}
}

// NewPermissionSet creates a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	s := PermissionSet{items: make(map[Permission]struct{}, len(perms))}
	for _, p := range perms {
		s.items[p] = struct{}{}
	}
	return s
}

// Add inserts a permission.
func (s *PermissionSet) Add(p Permission) {
	if s.items == nil {
		s.items = make(map[Permission]struct{})
	}
	s.items[p] = struct{}{}
}

// Remove deletes a permission if present.
func (s *PermissionSet) Remove(p Permission) {
	delete(s.items, p)
}

// Contains reports set membership.
func (s PermissionSet) Contains(p Permission) bool {
	_, ok := s.items[p]
	return ok
}

// Len returns the number of distinct permissions.
func (s PermissionSet) Len() int {
	return len(s.items)
}

// All returns the permissions sorted by manifest string.
func (s PermissionSet) All() []Permission {
	out := make([]Permission, 0, len(s.items))
	for p := range s.items {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ManifestString() != out[j].ManifestString() {
			return out[i].ManifestString() < out[j].ManifestString()
		}
		return !out[i].Optional && out[j].Optional
	})
	return out
}

// Dangerous returns the subset requiring explicit user consent.
func (s PermissionSet) Dangerous() []Permission {
	var out []Permission
	for _, p := range s.All() {
		if p.IsDangerous() {
			out = append(out, p)
		}
	}
	return out
}

// HostPatterns returns the patterns of all host permissions.
func (s PermissionSet) HostPatterns() []string {
	var out []string
	for _, p := range s.All() {
		if p.Kind == PermHost {
			out = append(out, p.Value)
		}
	}
	return out
}

// optionalPrefix marks runtime-requestable entries in the set's wire
// encoding. The manifest keeps optionality in a separate section; a
// flat token array needs the marker to round-trip the flag.
const optionalPrefix = "optional:"

// wireToken is the set-encoding form of the permission, a manifest
// string carrying the optional marker.
func (p Permission) wireToken() string {
	if p.Optional {
		return optionalPrefix + p.ManifestString()
	}
	return p.ManifestString()
}

// MarshalJSON encodes the set as a sorted array of wire tokens.
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	tokens := make([]string, 0, len(s.items))
	for _, p := range s.All() {
		tokens = append(tokens, p.wireToken())
	}
	return json.Marshal(tokens)
}

// UnmarshalJSON decodes an array of wire tokens.
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var tokens []string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return err
	}
	*s = NewPermissionSet()
	for _, t := range tokens {
		if rest, ok := strings.CutPrefix(t, optionalPrefix); ok {
			s.Add(ParsePermission(rest).AsOptional())
			continue
		}
		s.Add(ParsePermission(t))
	}
	return nil
}
