package crawler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type scriptedCrawler struct {
	mu sync.Mutex
	// failures remaining per site before it starts succeeding; -1 fails
	// forever.
	failures map[string]int
	attempts map[string]int
}

func newScriptedCrawler(failures map[string]int) *scriptedCrawler {
	return &scriptedCrawler{failures: failures, attempts: map[string]int{}}
}

func (s *scriptedCrawler) CrawlSite(_ context.Context, site string) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[site]++
	n := s.failures[site]
	if n == -1 {
		return Stats{}, errors.New("permanently down")
	}
	if n > 0 {
		s.failures[site] = n - 1
		return Stats{}, errors.New("temporarily down")
	}
	return Stats{PagesCrawled: 1}, nil
}

func TestRunCycleRetriesUntilSuccess(t *testing.T) {
	sc := newScriptedCrawler(map[string]int{
		"http://a.onion": 0,
		"http://b.onion": 2,
	})
	o := NewOrchestrator(sc, newMemStore(), crawlConfig(),
		[]string{"http://a.onion", "http://b.onion"})

	summary := o.RunCycle(context.Background())
	if summary.Succeeded != 2 || summary.Abandoned != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if sc.attempts["http://b.onion"] != 3 {
		t.Errorf("b attempts = %d, want 3", sc.attempts["http://b.onion"])
	}
	if sc.attempts["http://a.onion"] != 1 {
		t.Errorf("a attempts = %d, want 1", sc.attempts["http://a.onion"])
	}
}

func TestRunCycleAbandonsAfterMaxRetries(t *testing.T) {
	sc := newScriptedCrawler(map[string]int{"http://dead.onion": -1})
	cfg := crawlConfig()
	cfg.MaxSiteRetries = 4
	o := NewOrchestrator(sc, newMemStore(), cfg, []string{"http://dead.onion"})

	summary := o.RunCycle(context.Background())
	if summary.Abandoned != 1 || summary.Succeeded != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if sc.attempts["http://dead.onion"] != 4 {
		t.Errorf("attempts = %d, want 4", sc.attempts["http://dead.onion"])
	}
}

func TestRunCycleSkipsFreshSites(t *testing.T) {
	db := newMemStore()
	db.last["http://fresh.onion"] = time.Now().Add(-time.Hour)
	db.last["http://stale.onion"] = time.Now().Add(-48 * time.Hour)

	sc := newScriptedCrawler(map[string]int{
		"http://stale.onion": 0,
		"http://new.onion":   0,
	})
	o := NewOrchestrator(sc, db, crawlConfig(),
		[]string{"http://fresh.onion", "http://stale.onion", "http://new.onion"})

	summary := o.RunCycle(context.Background())
	if summary.SkippedFresh != 1 {
		t.Errorf("skippedFresh = %d, want 1", summary.SkippedFresh)
	}
	if summary.Succeeded != 2 {
		t.Errorf("succeeded = %d, want 2", summary.Succeeded)
	}
	if sc.attempts["http://fresh.onion"] != 0 {
		t.Error("fresh site must not be crawled")
	}
}

func TestRunCycleContextCancellation(t *testing.T) {
	sc := newScriptedCrawler(map[string]int{"http://dead.onion": -1})
	cfg := crawlConfig()
	cfg.MaxSiteRetries = 1000
	cfg.RetryRoundDelay = 10 * time.Millisecond
	o := NewOrchestrator(sc, newMemStore(), cfg, []string{"http://dead.onion"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan CycleSummary, 1)
	go func() { done <- o.RunCycle(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunCycle did not stop on context cancellation")
	}
}

func TestRunCycleAggregatesStats(t *testing.T) {
	sc := newScriptedCrawler(map[string]int{
		"http://a.onion": 0,
		"http://b.onion": 0,
		"http://c.onion": 0,
	})
	o := NewOrchestrator(sc, newMemStore(), crawlConfig(),
		[]string{"http://a.onion", "http://b.onion", "http://c.onion"})

	summary := o.RunCycle(context.Background())
	if summary.Pages != 3 {
		t.Errorf("pages = %d, want 3", summary.Pages)
	}
}
