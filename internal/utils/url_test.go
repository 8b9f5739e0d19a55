package utils

import "testing"

func TestExtractURLs(t *testing.T) {
	urls := ExtractURLs("check https://example.com/a and http://other.net")
	if len(urls) != 2 {
		t.Fatalf("expected 2 urls, got %d", len(urls))
	}
	if urls := ExtractURLs("no links here"); len(urls) != 0 {
		t.Fatalf("expected no urls, got %v", urls)
	}
}

func TestHasInvite(t *testing.T) {
	cases := []struct {
		content string
		want    bool
	}{
		{"check my server discord.gg/abc123", true},
		{"join at discord.com/invite/xyz", true},
		{"old style discordapp.com/invite/xyz", true},
		{"hello world", false},
	}
	for _, c := range cases {
		if got := HasInvite(c.content); got != c.want {
			t.Fatalf("HasInvite(%q) = %t, want %t", c.content, got, c.want)
		}
	}
}

func TestNormalizeURL(t *testing.T) {
	normalized, domain, err := NormalizeURL("https://Example.COM/path?utm_source=x&b=1#frag")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if domain != "example.com" {
		t.Fatalf("expected domain example.com, got %q", domain)
	}
	if normalized != "https://example.com/path?b=1" {
		t.Fatalf("unexpected normalized url %q", normalized)
	}
}

func TestDomainMatch(t *testing.T) {
	allow := map[string]struct{}{"good.com": {}}
	block := map[string]struct{}{"bad.com": {}}
	if allowed, _ := DomainMatch("GOOD.com", allow, block); !allowed {
		t.Fatalf("expected allow")
	}
	if _, blocked := DomainMatch("bad.com", allow, block); !blocked {
		t.Fatalf("expected block")
	}
}
