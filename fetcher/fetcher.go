// Package fetcher turns a URL into a parsed PageRecord: title, visible
// text, raw HTML, outbound links, and media references, all extracted in
// one pass over the fetched document.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/use-agent/splinter/models"
	"github.com/use-agent/splinter/transport"
)

// maxContentBytes matches the MEDIUMTEXT column limit; page text and
// HTML are truncated to fit rather than failing the insert.
const maxContentBytes = 16777215

// maxBodyBytes caps how much of a page body is read at all.
const maxBodyBytes = 32 << 20

// documentExtensions marks anchor targets treated as document media
// rather than crawlable links.
var documentExtensions = []string{".pdf", ".doc", ".docx", ".txt", ".zip", ".rar"}

// Fetcher fetches and parses pages through the transport registry.
type Fetcher struct {
	registry *transport.Registry
}

// New creates a Fetcher on top of the given registry.
func New(registry *transport.Registry) *Fetcher {
	return &Fetcher{registry: registry}
}

// FetchAndParse fetches rawURL over the transport the registry selects
// and extracts the page record. Routing failures, transport failures,
// and non-2xx statuses are returned as classified CrawlErrors.
func (f *Fetcher) FetchAndParse(ctx context.Context, rawURL string) (*models.PageRecord, error) {
	tr, _, ok := f.registry.Select(rawURL)
	if !ok {
		return nil, models.NewCrawlError(models.ErrCodeNoTransport,
			fmt.Sprintf("no enabled transport for %s", rawURL), nil)
	}

	resp, err := tr.Get(ctx, rawURL)
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeTransport,
			fmt.Sprintf("fetch %s", rawURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, models.NewStatusError(resp.StatusCode, rawURL)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeTransport,
			fmt.Sprintf("read body of %s", rawURL), err)
	}

	// Pages with broken encodings are kept with replacement runes
	// rather than dropped.
	htmlText := strings.ToValidUTF8(string(raw), "�")

	// Redirects may have moved us; resolve links against where the
	// document actually came from.
	base := resp.Request.URL

	return parsePage(rawURL, base, htmlText)
}

func parsePage(pageURL string, base *url.URL, htmlText string) (*models.PageRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeParse,
			fmt.Sprintf("parse %s", pageURL), err)
	}

	rec := &models.PageRecord{
		URL:         pageURL,
		Title:       extractTitle(doc),
		VisibleText: truncateUTF8(extractVisibleText(doc), maxContentBytes),
		HTML:        truncateUTF8(htmlText, maxContentBytes),
	}
	rec.Links, rec.Media = extractRefs(doc, base)
	return rec, nil
}

func extractTitle(doc *goquery.Document) string {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		return "No Title"
	}
	return title
}

// extractVisibleText walks the node tree collecting text outside of
// script, style, and noscript elements, normalizing whitespace to
// single spaces.
func extractVisibleText(doc *goquery.Document) string {
	var parts []string
	for _, root := range doc.Nodes {
		collectText(root, &parts)
	}
	return strings.Join(parts, " ")
}

func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript":
			return
		}
	}
	if n.Type == html.TextNode {
		for _, field := range strings.Fields(n.Data) {
			*parts = append(*parts, field)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

// extractRefs walks anchors and media elements in DOM order, resolving
// every reference against base. Anchors pointing at known document
// types become media references instead of crawl links.
func extractRefs(doc *goquery.Document, base *url.URL) ([]string, []models.MediaRef) {
	var links []string
	var media []models.MediaRef
	seenLink := map[string]bool{}
	seenMedia := map[string]bool{}

	addMedia := func(rawRef, kind, alt string) {
		abs := resolveRef(base, rawRef)
		if abs == "" || seenMedia[abs] {
			return
		}
		seenMedia[abs] = true
		media = append(media, models.MediaRef{URL: abs, Kind: kind, AltText: alt})
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs := resolveRef(base, href)
		if abs == "" {
			return
		}
		if isDocumentURL(abs) {
			addMedia(href, models.CategoryDocument, strings.TrimSpace(s.Text()))
			return
		}
		if seenLink[abs] {
			return
		}
		seenLink[abs] = true
		links = append(links, abs)
	})

	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		alt, _ := s.Attr("alt")
		addMedia(src, models.CategoryImage, strings.TrimSpace(alt))
	})

	doc.Find("video[src], video source[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		addMedia(src, models.CategoryVideo, "")
	})

	doc.Find("audio[src], audio source[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		addMedia(src, models.CategoryAudio, "")
	})

	return links, media
}

// resolveRef turns a raw href/src into an absolute http(s) URL, or ""
// when the reference cannot be crawled.
func resolveRef(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return ""
	}
	lower := strings.ToLower(ref)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return ""
		}
	}

	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

// isDocumentURL reports whether a URL path ends in a document extension.
func isDocumentURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	for _, ext := range documentExtensions {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

// truncateUTF8 cuts s to at most max bytes without splitting a rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
