// Package crawler drives site crawls: the per-site BFS worker and the
// cycle orchestrator with its retry queues.
package crawler

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// LoadSiteList reads the newline-delimited seed list. Blank lines and
// '#' comments are skipped; entries without a scheme get http://.
// Duplicate seeds are collapsed, keeping first position.
func LoadSiteList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("crawler: open site list: %w", err)
	}
	defer f.Close()

	var sites []string
	seen := map[string]bool{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.Contains(line, "://") {
			line = "http://" + line
		}
		if seen[line] {
			continue
		}
		seen[line] = true
		sites = append(sites, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("crawler: read site list: %w", err)
	}
	return sites, nil
}

// classifyHost reports the overlay flags for a seed URL.
func classifyHost(rawURL string) (isOnion, isI2P bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, false
	}
	host := strings.ToLower(u.Hostname())
	return strings.HasSuffix(host, ".onion"), strings.HasSuffix(host, ".i2p")
}

// sameHost reports whether a candidate link stays on the seed's host.
// The crawl never leaves the site it was seeded with.
func sameHost(seedURL, linkURL string) bool {
	a, err := url.Parse(seedURL)
	if err != nil {
		return false
	}
	b, err := url.Parse(linkURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(a.Hostname(), b.Hostname())
}
