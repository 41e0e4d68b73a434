package crawler

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadSiteList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.txt")
	content := `# darknet seeds
http://abc123.onion

forum.i2p
http://example.com
# trailing comment
http://abc123.onion
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	sites, err := LoadSiteList(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"http://abc123.onion",
		"http://forum.i2p",
		"http://example.com",
	}
	if !reflect.DeepEqual(sites, want) {
		t.Errorf("sites = %v, want %v", sites, want)
	}
}

func TestLoadSiteListMissingFile(t *testing.T) {
	if _, err := LoadSiteList(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("want error for missing file")
	}
}

func TestClassifyHost(t *testing.T) {
	tests := []struct {
		url             string
		wantOnion, want bool
	}{
		{"http://abcdef.onion/page", true, false},
		{"http://forum.i2p", false, true},
		{"http://Forum.I2P", false, true},
		{"https://example.com", false, false},
		{"http://onion.example.com", false, false},
	}
	for _, tt := range tests {
		onion, i2p := classifyHost(tt.url)
		if onion != tt.wantOnion || i2p != tt.want {
			t.Errorf("classifyHost(%q) = (%v, %v), want (%v, %v)",
				tt.url, onion, i2p, tt.wantOnion, tt.want)
		}
	}
}

func TestSameHost(t *testing.T) {
	tests := []struct {
		seed, link string
		want       bool
	}{
		{"http://a.onion", "http://a.onion/deep/page", true},
		{"http://a.onion", "http://A.ONION/x", true},
		{"http://a.onion", "http://b.onion/x", false},
		{"http://a.onion", "http://sub.a.onion/x", false},
	}
	for _, tt := range tests {
		if got := sameHost(tt.seed, tt.link); got != tt.want {
			t.Errorf("sameHost(%q, %q) = %v, want %v", tt.seed, tt.link, got, tt.want)
		}
	}
}
