package store

import (
	"strings"
	"testing"
)

func TestObjectKey(t *testing.T) {
	key := ObjectKey(42, "http://example.onion/media/photo.JPG?size=large")

	if !strings.HasPrefix(key, "page_42/") {
		t.Errorf("key %q missing page prefix", key)
	}
	if !strings.HasSuffix(key, ".jpg") {
		t.Errorf("key %q should keep lowercased extension", key)
	}
	// prefix + unix ts + underscore + 32 hex chars + ext
	rest := strings.TrimPrefix(key, "page_42/")
	parts := strings.SplitN(rest, "_", 2)
	if len(parts) != 2 {
		t.Fatalf("key %q missing timestamp separator", key)
	}
	hash := strings.TrimSuffix(parts[1], ".jpg")
	if len(hash) != 32 {
		t.Errorf("hash part %q should be 32 hex chars", hash)
	}
}

func TestObjectKeyStableHashPerURL(t *testing.T) {
	a := ObjectKey(1, "http://site.i2p/a.png")
	b := ObjectKey(1, "http://site.i2p/a.png")

	hashOf := func(key string) string {
		i := strings.LastIndex(key, "_")
		return strings.TrimSuffix(key[i+1:], ".png")
	}
	if hashOf(a) != hashOf(b) {
		t.Errorf("same URL should hash identically: %q vs %q", a, b)
	}
}

func TestURLExt(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://example.com/a/b/image.png", ".png"},
		{"http://example.com/file.PDF", ".pdf"},
		{"http://example.com/track.mp3?session=abc", ".mp3"},
		{"http://example.com/page", ""},
		{"http://example.com/", ""},
		{"http://example.com/weird.averyverylongextension", ""},
	}
	for _, tt := range tests {
		if got := urlExt(tt.url); got != tt.want {
			t.Errorf("urlExt(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestFilenameFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://example.onion/downloads/report.pdf", "report.pdf"},
		{"http://example.com/img/photo.jpg?v=2", "photo.jpg"},
		{"http://example.com/", "file"},
		{"http://example.com", "file"},
	}
	for _, tt := range tests {
		if got := FilenameFromURL(tt.url); got != tt.want {
			t.Errorf("FilenameFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
