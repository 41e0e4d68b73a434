package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/use-agent/splinter/models"
	"github.com/use-agent/splinter/transport"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>  Market Index  </title>
<style>body { color: red }</style>
<script>var hidden = "not text";</script>
</head>
<body>
<h1>Welcome</h1>
<p>Listings   updated
daily.</p>
<noscript>enable scripts</noscript>
<a href="/catalog">Catalog</a>
<a href="/catalog">Catalog again</a>
<a href="#top">Top</a>
<a href="mailto:admin@example.onion">Mail</a>
<a href="javascript:void(0)">JS</a>
<a href="/files/manual.pdf">Download manual</a>
<img src="/img/logo.png" alt="the logo">
<img src="/img/logo.png" alt="dup">
<video src="/vid/intro.mp4"></video>
<audio><source src="/snd/theme.mp3"></audio>
</body>
</html>`

func mustBase(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestParsePage(t *testing.T) {
	base := mustBase(t, "http://example.onion/start")
	rec, err := parsePage("http://example.onion/start", base, samplePage)
	if err != nil {
		t.Fatal(err)
	}

	if rec.Title != "Market Index" {
		t.Errorf("title = %q", rec.Title)
	}
	for _, hidden := range []string{"not text", "color: red", "enable scripts"} {
		if strings.Contains(rec.VisibleText, hidden) {
			t.Errorf("visible text leaked %q", hidden)
		}
	}
	if !strings.Contains(rec.VisibleText, "Listings updated daily.") {
		t.Errorf("whitespace not normalized: %q", rec.VisibleText)
	}

	wantLinks := []string{"http://example.onion/catalog"}
	if len(rec.Links) != len(wantLinks) {
		t.Fatalf("links = %v, want %v", rec.Links, wantLinks)
	}
	for i, want := range wantLinks {
		if rec.Links[i] != want {
			t.Errorf("link[%d] = %q, want %q", i, rec.Links[i], want)
		}
	}

	wantMedia := map[string]string{
		"http://example.onion/files/manual.pdf": models.CategoryDocument,
		"http://example.onion/img/logo.png":     models.CategoryImage,
		"http://example.onion/vid/intro.mp4":    models.CategoryVideo,
		"http://example.onion/snd/theme.mp3":    models.CategoryAudio,
	}
	if len(rec.Media) != len(wantMedia) {
		t.Fatalf("media = %+v, want %d refs", rec.Media, len(wantMedia))
	}
	for _, ref := range rec.Media {
		if kind, ok := wantMedia[ref.URL]; !ok || ref.Kind != kind {
			t.Errorf("unexpected media ref %+v", ref)
		}
	}
}

func TestParsePageMediaDescription(t *testing.T) {
	base := mustBase(t, "http://example.onion/")
	rec, err := parsePage("http://example.onion/", base, samplePage)
	if err != nil {
		t.Fatal(err)
	}
	for _, ref := range rec.Media {
		switch ref.Kind {
		case models.CategoryImage:
			if ref.AltText != "the logo" {
				t.Errorf("image alt = %q", ref.AltText)
			}
		case models.CategoryDocument:
			if ref.AltText != "Download manual" {
				t.Errorf("document anchor text = %q", ref.AltText)
			}
		}
	}
}

func TestParsePageEmptyTitle(t *testing.T) {
	rec, err := parsePage("http://x.i2p/", mustBase(t, "http://x.i2p/"), "<html><body>hi</body></html>")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Title != "No Title" {
		t.Errorf("title = %q, want No Title", rec.Title)
	}
}

func TestResolveRef(t *testing.T) {
	base := mustBase(t, "http://site.onion/dir/page.html")
	tests := []struct {
		ref  string
		want string
	}{
		{"other.html", "http://site.onion/dir/other.html"},
		{"/root.html", "http://site.onion/root.html"},
		{"http://elsewhere.i2p/x", "http://elsewhere.i2p/x"},
		{"https://secure.example/x", "https://secure.example/x"},
		{"page.html#section", "http://site.onion/dir/page.html"},
		{"#frag", ""},
		{"", ""},
		{"mailto:a@b", ""},
		{"tel:+123", ""},
		{"javascript:alert(1)", ""},
		{"ftp://files.example/x", ""},
	}
	for _, tt := range tests {
		if got := resolveRef(base, tt.ref); got != tt.want {
			t.Errorf("resolveRef(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}

func TestIsDocumentURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"http://a.onion/report.pdf", true},
		{"http://a.onion/Report.PDF", true},
		{"http://a.onion/archive.zip", true},
		{"http://a.onion/notes.txt", true},
		{"http://a.onion/page.html", false},
		{"http://a.onion/pdf", false},
	}
	for _, tt := range tests {
		if got := isDocumentURL(tt.url); got != tt.want {
			t.Errorf("isDocumentURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestTruncateUTF8(t *testing.T) {
	s := "héllo"
	got := truncateUTF8(s, 2)
	// 'é' is two bytes starting at index 1; cutting at 2 would split it.
	if got != "h" {
		t.Errorf("truncateUTF8 = %q, want %q", got, "h")
	}
	if truncateUTF8(s, 100) != s {
		t.Errorf("short strings must pass through unchanged")
	}
}

func TestFetchAndParseStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	// The default (clearnet) route selects the tor slot; pointing it at
	// a plain client keeps the test local.
	tor := &transport.Transport{Kind: transport.KindTor, Client: srv.Client()}
	f := New(transport.NewRegistry(nil, tor, nil, nil))

	_, err := f.FetchAndParse(context.Background(), srv.URL+"/missing")
	var ce *models.CrawlError
	if !errors.As(err, &ce) {
		t.Fatalf("want CrawlError, got %v", err)
	}
	if ce.Code != models.ErrCodeHTTPStatus || ce.StatusCode != http.StatusNotFound {
		t.Errorf("got code=%s status=%d", ce.Code, ce.StatusCode)
	}
}

func TestFetchAndParseNoTransport(t *testing.T) {
	f := New(transport.NewRegistry(nil, nil, nil, nil))
	_, err := f.FetchAndParse(context.Background(), "http://example.com/")
	var ce *models.CrawlError
	if !errors.As(err, &ce) {
		t.Fatalf("want CrawlError, got %v", err)
	}
	if ce.Code != models.ErrCodeNoTransport {
		t.Errorf("code = %s, want %s", ce.Code, models.ErrCodeNoTransport)
	}
}

func TestFetchAndParseSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	tor := &transport.Transport{Kind: transport.KindTor, Client: srv.Client()}
	f := New(transport.NewRegistry(nil, tor, nil, nil))

	rec, err := f.FetchAndParse(context.Background(), srv.URL+"/start")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Title != "Market Index" {
		t.Errorf("title = %q", rec.Title)
	}
	if len(rec.Links) == 0 || !strings.HasSuffix(rec.Links[0], "/catalog") {
		t.Errorf("links = %v", rec.Links)
	}
}
