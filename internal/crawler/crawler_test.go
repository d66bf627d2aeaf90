package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/user/cryptocrawl/internal/config"
	"github.com/user/cryptocrawl/internal/domain"
	"github.com/user/cryptocrawl/internal/robots"
)

func testConfig(workers int) *config.Config {
	return &config.Config{
		CrawlWorkers:   workers,
		MaxRetries:     3,
		RequestTimeout: 5,
		FetchDelayMS:   1,
		RenderTimeout:  5,
	}
}

func newTestEngine(cfg *config.Config) *Engine {
	logger := zap.NewNop()
	fetcher := NewFetcher("test-agent", cfg.RequestTimeoutDuration())
	rm := robots.NewManager(fetcher.Client(), "test-agent", logger)
	return NewEngine(cfg, fetcher, rm, nil, nil, nil, logger)
}

func TestCrawlSeedAndChildren(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body>
			<a href="/a">a</a>
			<a href="/b">b</a>
			<a href="%s/c">c</a>
			<a href="https://other.example/x">x</a>
			<a href="https://elsewhere.example/y">y</a>
		</body></html>`, server.URL)
	})
	for _, p := range []string{"/a", "/b", "/c"} {
		path := p
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprintf(w, `<html><body><a href="%s/deeper">deeper</a></body></html>`, path)
		})
	}
	server = httptest.NewServer(mux)
	defer server.Close()

	engine := newTestEngine(testConfig(3))
	task := domain.NewTask(server.URL+"/", 1, false, 5)

	result, err := engine.Crawl(context.Background(), task)
	if err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}
	if result.Status != domain.StatusCompleted {
		t.Errorf("expected status %s, got %s", domain.StatusCompleted, result.Status)
	}
	if result.PagesCount != 4 {
		t.Errorf("expected 4 pages (seed + 3 children), got %d", result.PagesCount)
	}

	seen := make(map[string]bool)
	for _, p := range result.Pages {
		seen[p.URL] = true
	}
	if !seen[server.URL+"/"] {
		t.Errorf("seed page missing from result: %v", seen)
	}
	for _, host := range []string{"other.example", "elsewhere.example"} {
		for u := range seen {
			parsed, _ := url.Parse(u)
			if parsed != nil && parsed.Hostname() == host {
				t.Errorf("cross-domain page %s should not have been crawled", u)
			}
		}
	}
	// Depth-1 children must not be expanded further.
	for u := range seen {
		if u == server.URL+"/a/deeper" || u == server.URL+"/b/deeper" {
			t.Errorf("depth-2 page %s crawled despite max_depth=1", u)
		}
	}
}

func TestCrawlStopsAtBudget(t *testing.T) {
	var n atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Every page links to two fresh pages, so the frontier never
		// drains on its own.
		i := n.Add(1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body><a href="/p%d">n</a><a href="/p%d">m</a></body></html>`, i*2, i*2+1)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	const budget = 5
	const workers = 2
	engine := newTestEngine(testConfig(workers))
	task := domain.NewTask(server.URL+"/", 10, false, budget)

	done := make(chan struct{})
	var result *domain.CrawlResult
	var err error
	go func() {
		result, err = engine.Crawl(context.Background(), task)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("crawl did not terminate at the page budget")
	}
	if err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}
	if result.PagesCount < budget {
		t.Errorf("expected at least %d pages, got %d", budget, result.PagesCount)
	}
	if result.PagesCount > budget+workers {
		t.Errorf("overshoot beyond in-flight fetches: %d pages for budget %d", result.PagesCount, budget)
	}
}

func TestCrawlInvalidSeed(t *testing.T) {
	engine := newTestEngine(testConfig(1))

	cases := []struct {
		name string
		url  string
	}{
		{"unparsable", "http://[::1"},
		{"bad scheme", "ftp://example.com/"},
		{"no host", "http:///path-only"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := domain.NewTask(tc.url, 1, false, 10)
			if _, err := engine.Crawl(context.Background(), task); err == nil {
				t.Errorf("expected error for seed %q", tc.url)
			}
		})
	}
}

func TestCrawlZeroBudgetIsValid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>hello</body></html>")
	}))
	defer server.Close()

	engine := newTestEngine(testConfig(2))
	task := domain.NewTask(server.URL+"/", 1, false, 0)

	result, err := engine.Crawl(context.Background(), task)
	if err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}
	if result.PagesCount != 0 {
		t.Errorf("expected 0 pages, got %d", result.PagesCount)
	}
	if result.Status != domain.StatusCompleted {
		t.Errorf("zero-page crawl should complete, got status %s", result.Status)
	}
}

func TestCrawlCountsDeadLinks(t *testing.T) {
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/gone">gone</a></body></html>`)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		// Kill the connection to simulate a network failure.
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("response writer does not support hijacking")
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Errorf("hijack failed: %v", err)
			return
		}
		conn.Close()
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	engine := newTestEngine(testConfig(1))
	task := domain.NewTask(server.URL+"/", 2, false, 10)

	result, err := engine.Crawl(context.Background(), task)
	if err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}
	if result.PagesCount != 2 {
		t.Fatalf("expected 2 pages (seed + dead link attempt), got %d", result.PagesCount)
	}
	var dead *domain.CrawledPage
	for i := range result.Pages {
		if result.Pages[i].URL == server.URL+"/gone" {
			dead = &result.Pages[i]
		}
	}
	if dead == nil {
		t.Fatal("dead link not recorded as an attempt")
	}
	if dead.Size != 0 || dead.StatusCode != nil {
		t.Errorf("dead link should record a zero-size page without status, got size=%d status=%v", dead.Size, dead.StatusCode)
	}
}

func TestCrawlRetryCapFromConfig(t *testing.T) {
	var broken atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/broken">broken</a></body></html>`)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		broken.Add(1)
		// Claims gzip but ships plain bytes, so body decoding fails.
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Encoding", "gzip")
		fmt.Fprint(w, "not gzip at all")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(1)
	cfg.MaxRetries = 1
	engine := newTestEngine(cfg)
	task := domain.NewTask(server.URL+"/", 1, false, 10)

	result, err := engine.Crawl(context.Background(), task)
	if err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}
	if got := broken.Load(); got != 2 {
		t.Errorf("expected 2 fetches of the broken page (initial + 1 retry), got %d", got)
	}
	if result.PagesCount != 1 {
		t.Errorf("decode failures must not be recorded as pages, got %d pages", result.PagesCount)
	}
}

type fakeRenderer struct {
	html  string
	links []string
}

func (f *fakeRenderer) Start() error { return nil }
func (f *fakeRenderer) Stop() error  { return nil }
func (f *fakeRenderer) RenderContent(ctx context.Context, url string, timeout time.Duration) (string, error) {
	return f.html, nil
}
func (f *fakeRenderer) ExtractLinks(ctx context.Context, url string, timeout time.Duration) ([]string, error) {
	return f.links, nil
}

func TestCrawlEscalatesJSDependentPages(t *testing.T) {
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><div id="root"></div><script src="/static/js/main.chunk.js"></script></body></html>`)
	})
	mux.HandleFunc("/hydrated", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><article>plenty of server rendered words here for everyone to read</article></body></html>`)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	renderedHTML := `<html><body><div id="root"><h1>App</h1></div></body></html>`
	cfg := testConfig(1)
	cfg.RenderEnabled = true
	logger := zap.NewNop()
	fetcher := NewFetcher("test-agent", cfg.RequestTimeoutDuration())
	rm := robots.NewManager(fetcher.Client(), "test-agent", logger)
	renderer := &fakeRenderer{
		html:  renderedHTML,
		links: []string{server.URL + "/hydrated"},
	}
	engine := NewEngine(cfg, fetcher, rm, renderer, nil, nil, logger)

	task := domain.NewTask(server.URL+"/", 2, false, 10)
	result, err := engine.Crawl(context.Background(), task)
	if err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}

	var seedPage *domain.CrawledPage
	seen := make(map[string]bool)
	for i := range result.Pages {
		seen[result.Pages[i].URL] = true
		if result.Pages[i].URL == server.URL+"/" {
			seedPage = &result.Pages[i]
		}
	}
	if seedPage == nil {
		t.Fatal("seed page missing from result")
	}
	if seedPage.Body != renderedHTML {
		t.Errorf("seed page should carry rendered HTML, got %q", seedPage.Body)
	}
	if !seen[server.URL+"/hydrated"] {
		t.Errorf("link discovered by the renderer was not crawled: %v", seen)
	}
}
