// Package urlmatch implements the URL pattern primitive shared by the
// content script injector and the webRequest engine.
//
// Patterns use `*` as a multi-character wildcard and the sentinel
// `<all_urls>` for an unconditional match. Compilation never panics on
// malformed input: an uncompilable pattern matches nothing.
package urlmatch

import (
	"net/url"
	"strings"

	"github.com/gobwas/glob"

	"github.com/lumen-browser/extengine/internal/shared/types"
)

// Pattern is a compiled, anchored URL matcher.
type Pattern struct {
	raw string
	all bool
	g   glob.Glob
}

// Compile builds a matcher from a raw pattern string. Only `*` carries
// wildcard meaning; every other character matches literally.
func Compile(raw string) Pattern {
	p := Pattern{raw: raw}
	if raw == types.AllURLs {
		p.all = true
		return p
	}
	segments := strings.Split(raw, "*")
	for i, s := range segments {
		segments[i] = glob.QuoteMeta(s)
	}
	g, err := glob.Compile(strings.Join(segments, "*"))
	if err != nil {
		// Malformed patterns match nothing rather than erroring.
		return p
	}
	p.g = g
	return p
}

// Match tests a URL against the pattern. The URL is normalized so that a
// bare origin like https://x.com gets its implicit "/" path before
// matching.
func (p Pattern) Match(rawURL string) bool {
	if p.all {
		return true
	}
	if p.g == nil {
		return false
	}
	return p.g.Match(Normalize(rawURL))
}

// String returns the original pattern text.
func (p Pattern) String() string { return p.raw }

// List is an ordered group of compiled patterns.
type List []Pattern

// CompileList compiles each pattern, preserving order.
func CompileList(raws []string) List {
	out := make(List, 0, len(raws))
	for _, r := range raws {
		out = append(out, Compile(r))
	}
	return out
}

// MatchAny reports whether any pattern in the list matches the URL.
func (l List) MatchAny(rawURL string) bool {
	for _, p := range l {
		if p.Match(rawURL) {
			return true
		}
	}
	return false
}

// Normalize gives a URL its implicit root path so origin-only URLs match
// patterns of the form scheme://host/*. Unparseable input is returned
// unchanged; it will simply fail to match.
func Normalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || u.Path != "" {
		return rawURL
	}
	u.Path = "/"
	return u.String()
}
