package frontier

import (
	"net/url"
	"strings"
	"sync"
)

// Tier is the priority bucket a URL is queued into.
type Tier int

const (
	TierImportant Tier = iota
	TierRegular
)

// importanceMarkers route structurally significant paths to the important
// tier. Matching is plain substring, insertion order within a tier is kept.
var importanceMarkers = []string{
	"/crates/",
	"/categories/",
	"/keywords/",
	"/docs/",
	"/blog/",
	"/products/",
	"/articles/",
}

// ClassifyTier routes a URL to a tier by substring match against the
// importance markers.
func ClassifyTier(rawURL string) Tier {
	for _, marker := range importanceMarkers {
		if strings.Contains(rawURL, marker) {
			return TierImportant
		}
	}
	return TierRegular
}

// MatchesImportant reports whether a URL hits any importance marker. The
// crawl loop uses this as one of the render escalation conditions.
func MatchesImportant(rawURL string) bool {
	return ClassifyTier(rawURL) == TierImportant
}

// Entry is a queued URL with the depth it was discovered at.
type Entry struct {
	URL   string
	Depth int
}

// Frontier is the shared set of not-yet-fetched URLs, partitioned into two
// FIFO tiers, plus the visited registry and depth map. All methods are safe
// for concurrent use; the lock is held only for queue operations.
type Frontier struct {
	mu        sync.Mutex
	important []Entry
	regular   []Entry
	visited   map[string]struct{}
	depths    map[string]int
}

// New creates an empty frontier scoped to one crawl invocation.
func New() *Frontier {
	return &Frontier{
		visited: make(map[string]struct{}),
		depths:  make(map[string]int),
	}
}

// Normalize strips the URL fragment so equivalent pages deduplicate.
func Normalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	return u.String()
}

// Register atomically records a URL in the visited registry. It returns true
// for exactly one caller per URL; only that caller may enqueue it.
func (f *Frontier) Register(rawURL string) bool {
	key := Normalize(rawURL)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, seen := f.visited[key]; seen {
		return false
	}
	f.visited[key] = struct{}{}
	return true
}

// RecordDepth stores the first-seen depth for a URL. Later recordings of the
// same URL are ignored.
func (f *Frontier) RecordDepth(rawURL string, depth int) {
	key := Normalize(rawURL)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.depths[key]; !ok {
		f.depths[key] = depth
	}
}

// Depth returns the recorded depth for a URL, defaulting to 0.
func (f *Frontier) Depth(rawURL string) int {
	key := Normalize(rawURL)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.depths[key]
}

// Enqueue places a URL into its tier queue.
func (f *Frontier) Enqueue(rawURL string, depth int) {
	entry := Entry{URL: rawURL, Depth: depth}
	f.mu.Lock()
	defer f.mu.Unlock()
	if ClassifyTier(rawURL) == TierImportant {
		f.important = append(f.important, entry)
	} else {
		f.regular = append(f.regular, entry)
	}
}

// Requeue puts an already-registered URL back on its tier queue, used after
// a rate-limited fetch.
func (f *Frontier) Requeue(rawURL string, depth int) {
	f.Enqueue(rawURL, depth)
}

// NextBatch removes and returns up to max entries, draining the important
// tier first and falling back to the regular tier only when it is empty.
func (f *Frontier) NextBatch(max int) []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	queue := &f.important
	if len(*queue) == 0 {
		queue = &f.regular
	}
	n := len(*queue)
	if n == 0 {
		return nil
	}
	if n > max {
		n = max
	}
	batch := make([]Entry, n)
	copy(batch, (*queue)[:n])
	*queue = (*queue)[n:]
	return batch
}

// Empty reports whether both tier queues are drained.
func (f *Frontier) Empty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.important) == 0 && len(f.regular) == 0
}

// Queued returns the number of entries waiting across both tiers.
func (f *Frontier) Queued() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.important) + len(f.regular)
}
