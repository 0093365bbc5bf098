package urlmatch

import "testing"

func TestAllURLsMatchesEverything(t *testing.T) {
	p := Compile("<all_urls>")
	urls := []string{
		"https://example.com/",
		"http://localhost:8080/path?q=1",
		"file:///etc/hosts",
		"ftp://mirror.example.org/pub",
	}
	for _, u := range urls {
		if !p.Match(u) {
			t.Errorf("<all_urls> should match %s", u)
		}
	}
}

func TestWildcardMatching(t *testing.T) {
	p := Compile("https://example.com/*")

	if !p.Match("https://example.com/anything") {
		t.Error("should match path under example.com")
	}
	if !p.Match("https://example.com") {
		t.Error("should match bare origin via implicit root path")
	}
	if p.Match("https://other.com/x") {
		t.Error("should not match other.com")
	}
}

func TestHostWildcard(t *testing.T) {
	p := Compile("https://*/*")

	if !p.Match("https://x.com") {
		t.Error("should match any https origin")
	}
	if !p.Match("https://x.com/deep/path") {
		t.Error("should match any https path")
	}
	if p.Match("http://x.com/") {
		t.Error("should not match http scheme")
	}
}

func TestLiteralSpecialCharacters(t *testing.T) {
	// Characters that are glob metacharacters must match literally.
	p := Compile("https://example.com/a?b=[1]")
	if !p.Match("https://example.com/a?b=[1]") {
		t.Error("non-star metacharacters should match literally")
	}
	if p.Match("https://example.com/aXb=Y1Z") {
		t.Error("? and [] must not act as wildcards")
	}
}

func TestMalformedPatternMatchesNothing(t *testing.T) {
	// Compile must not panic and the result must reject every URL.
	p := Compile(string([]byte{0xff, 0xfe}))
	if p.Match("https://example.com/") {
		t.Error("malformed pattern should match nothing")
	}
}

func TestListMatchAny(t *testing.T) {
	l := CompileList([]string{"https://a.com/*", "https://b.com/*"})
	if !l.MatchAny("https://b.com/page") {
		t.Error("list should match second pattern")
	}
	if l.MatchAny("https://c.com/page") {
		t.Error("list should not match unlisted host")
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("https://x.com"); got != "https://x.com/" {
		t.Errorf("expected implicit root path, got %s", got)
	}
	if got := Normalize("https://x.com/a"); got != "https://x.com/a" {
		t.Errorf("path should be untouched, got %s", got)
	}
	if got := Normalize("::not a url::"); got != "::not a url::" {
		t.Errorf("unparseable input should pass through, got %s", got)
	}
}
