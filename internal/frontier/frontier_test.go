package frontier

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestClassifyTier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want Tier
	}{
		{"https://crates.io/crates/serde", TierImportant},
		{"https://crates.io/categories/web-programming", TierImportant},
		{"https://example.com/docs/getting-started", TierImportant},
		{"https://example.com/blog/2024/release", TierImportant},
		{"https://example.com/products/widget", TierImportant},
		{"https://example.com/about", TierRegular},
		{"https://example.com/", TierRegular},
		{"https://example.com/contact?ref=docs", TierRegular},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := ClassifyTier(tt.url); got != tt.want {
				t.Errorf("ClassifyTier(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestRegisterOnce(t *testing.T) {
	t.Parallel()

	f := New()
	if !f.Register("https://example.com/page") {
		t.Fatal("first register should return true")
	}
	if f.Register("https://example.com/page") {
		t.Error("second register should return false")
	}
	if f.Register("https://example.com/page#section") {
		t.Error("fragment-only variant should be deduplicated")
	}
}

func TestRegisterConcurrent(t *testing.T) {
	t.Parallel()

	f := New()
	const goroutines = 50
	const urls = 20

	var wins atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < urls; i++ {
				if f.Register(fmt.Sprintf("https://example.com/p/%d", i)) {
					wins.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if wins.Load() != urls {
		t.Errorf("expected exactly %d successful registrations, got %d", urls, wins.Load())
	}
}

func TestNextBatchImportantFirst(t *testing.T) {
	t.Parallel()

	f := New()
	f.Enqueue("https://example.com/a", 1)
	f.Enqueue("https://example.com/docs/x", 1)
	f.Enqueue("https://example.com/b", 1)
	f.Enqueue("https://example.com/docs/y", 1)

	batch := f.NextBatch(10)
	if len(batch) != 2 {
		t.Fatalf("expected the important tier batch of 2, got %d", len(batch))
	}
	if batch[0].URL != "https://example.com/docs/x" || batch[1].URL != "https://example.com/docs/y" {
		t.Errorf("important tier should preserve insertion order, got %v", batch)
	}

	batch = f.NextBatch(10)
	if len(batch) != 2 {
		t.Fatalf("expected regular tier batch of 2, got %d", len(batch))
	}
	if batch[0].URL != "https://example.com/a" {
		t.Errorf("regular tier should preserve insertion order, got %v", batch)
	}

	if !f.Empty() {
		t.Error("frontier should be empty after draining")
	}
}

func TestNextBatchCap(t *testing.T) {
	t.Parallel()

	f := New()
	for i := 0; i < 25; i++ {
		f.Enqueue(fmt.Sprintf("https://example.com/p/%d", i), 1)
	}
	if got := len(f.NextBatch(10)); got != 10 {
		t.Errorf("batch should be capped at 10, got %d", got)
	}
	if got := f.Queued(); got != 15 {
		t.Errorf("expected 15 queued after one batch, got %d", got)
	}
}

func TestRecordDepthFirstSeenWins(t *testing.T) {
	t.Parallel()

	f := New()
	f.RecordDepth("https://example.com/x", 2)
	f.RecordDepth("https://example.com/x", 5)
	if got := f.Depth("https://example.com/x"); got != 2 {
		t.Errorf("expected first-recorded depth 2, got %d", got)
	}
	if got := f.Depth("https://example.com/unknown"); got != 0 {
		t.Errorf("unknown URL depth should default to 0, got %d", got)
	}
}
