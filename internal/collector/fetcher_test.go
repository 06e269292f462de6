package collector

import (
	"testing"
	"time"
)

func TestArticleValidate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		a    Article
		ok   bool
	}{
		{"valid", Article{Title: "AAPL rises", URL: "https://x.com/a", PublishedAt: now.Add(-time.Hour)}, true},
		{"unknown time", Article{Title: "AAPL rises", URL: "https://x.com/a"}, true},
		{"blank title", Article{Title: "   ", URL: "https://x.com/a"}, false},
		{"no url", Article{Title: "AAPL rises"}, false},
		{"within skew", Article{Title: "t", URL: "u", PublishedAt: now.Add(ClockSkew - time.Second)}, true},
		{"future", Article{Title: "t", URL: "u", PublishedAt: now.Add(time.Hour)}, false},
	}
	for _, c := range cases {
		err := c.a.Validate(now)
		if (err == nil) != c.ok {
			t.Fatalf("%s: Validate() = %v, want ok=%v", c.name, err, c.ok)
		}
	}
}

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"HTTPS://Example.COM/News/1/":                 "https://example.com/News/1",
		"https://example.com/a?utm_source=rss&id=3#x": "https://example.com/a?id=3",
		"https://example.com/":                        "https://example.com",
		"not a url":                                   "not a url",
	}
	for in, want := range cases {
		if got := NormalizeURL(in); got != want {
			t.Fatalf("NormalizeURL(%q) = %q, want %q", in, got, want)
		}
	}

	a := Article{URL: "https://example.com/a/"}
	b := Article{URL: "https://EXAMPLE.com/a#top"}
	if a.Key() != b.Key() {
		t.Fatalf("equivalent URLs should share a key")
	}
}

func TestParseTimeframe(t *testing.T) {
	for in, want := range map[string]time.Duration{
		"24h": 24 * time.Hour,
		"7D":  7 * 24 * time.Hour,
		"30d": 30 * 24 * time.Hour,
		"":    7 * 24 * time.Hour,
	} {
		tf, err := ParseTimeframe(in)
		if err != nil {
			t.Fatalf("ParseTimeframe(%q) error: %v", in, err)
		}
		if tf.Duration() != want {
			t.Fatalf("ParseTimeframe(%q).Duration() = %s, want %s", in, tf.Duration(), want)
		}
	}
	if _, err := ParseTimeframe("1y"); err == nil {
		t.Fatalf("ParseTimeframe(1y) should fail")
	}
}

func TestTimeframeContains(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tf := Timeframe24h
	if !tf.Contains(time.Time{}, now) {
		t.Fatalf("unknown time should be kept")
	}
	if !tf.Contains(now.Add(-23*time.Hour), now) {
		t.Fatalf("23h ago should be inside 24h")
	}
	if tf.Contains(now.Add(-25*time.Hour), now) {
		t.Fatalf("25h ago should be outside 24h")
	}
}

func TestCleanSnippet(t *testing.T) {
	got := cleanSnippet("<p>Apple <b>beats</b>\n\n estimates &amp; more</p>")
	if got != "Apple beats estimates & more" {
		t.Fatalf("cleanSnippet = %q", got)
	}

	long := make([]rune, MaxSnippetRunes+20)
	for i := range long {
		long[i] = '好'
	}
	out := []rune(cleanSnippet(string(long)))
	if len(out) != MaxSnippetRunes+1 || out[len(out)-1] != '…' {
		t.Fatalf("cleanSnippet length = %d", len(out))
	}
}

func TestHashURLIgnoresTrackingParams(t *testing.T) {
	a := Article{URL: "https://Example.com/a/?utm_source=x#top"}
	b := Article{URL: "https://example.com/a"}
	c := Article{URL: "https://example.com/b"}

	if a.Key() != b.Key() {
		t.Fatalf("keys differ for equivalent URLs: %q vs %q", a.Key(), b.Key())
	}
	if a.Key() == c.Key() {
		t.Fatalf("keys should differ for different URLs")
	}
	if hashURL("https://example.com/a") != hashURL("https://example.com/a") {
		t.Fatalf("hashURL not deterministic")
	}
}

func TestTruncateRunes(t *testing.T) {
	out := truncateRunes("Apple shares jump after earnings 苹果财报", 5)
	if out != "Apple…" {
		t.Fatalf("truncateRunes = %q", out)
	}
	if got := truncateRunes("苹果财报超预期", 3); got != "苹果财…" {
		t.Fatalf("truncateRunes multibyte = %q", got)
	}
	if got := truncateRunes("short", 10); got != "short" {
		t.Fatalf("under limit should be unchanged: %q", got)
	}
}
