package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/user/cryptocrawl/internal/config"
	"github.com/user/cryptocrawl/internal/domain"
	"github.com/user/cryptocrawl/internal/frontier"
	"github.com/user/cryptocrawl/internal/jsdetect"
	"github.com/user/cryptocrawl/internal/monitoring"
	"github.com/user/cryptocrawl/internal/render"
	"github.com/user/cryptocrawl/internal/robots"
	"github.com/user/cryptocrawl/internal/storage"
)

const (
	batchSize         = 10
	idlePoll          = 100 * time.Millisecond
	rateLimitBackoff  = 60 * time.Second
	defaultRetryLimit = 3
	defaultFetchDelay = 50 * time.Millisecond
)

// Engine runs crawl tasks with a fixed-size worker pool. One Engine is
// shared across tasks; all per-crawl state lives in a run.
type Engine struct {
	cfg      *config.Config
	fetcher  *Fetcher
	robots   *robots.Manager
	renderer render.Renderer
	store    storage.Store
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewEngine wires the crawl loop to its collaborators. renderer and
// store may be nil; the loop degrades to static fetching and skips
// persistence respectively.
func NewEngine(cfg *config.Config, fetcher *Fetcher, rm *robots.Manager, renderer render.Renderer, store storage.Store, m *monitoring.Metrics, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		fetcher:  fetcher,
		robots:   rm,
		renderer: renderer,
		store:    store,
		metrics:  m,
		logger:   logger,
	}
}

// Crawl executes a task to completion and returns the aggregated
// result. Only seed validation and pool join failures surface as
// errors; per-URL failures are absorbed into retries, skips, or
// zero-size page records.
func (e *Engine) Crawl(ctx context.Context, task *domain.CrawlTask) (*domain.CrawlResult, error) {
	seed, err := url.Parse(task.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL %q: %w", task.TargetURL, err)
	}
	if seed.Scheme != "http" && seed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", seed.Scheme)
	}
	if seed.Hostname() == "" {
		return nil, errors.New("target URL has no host")
	}
	root := seed.Hostname()

	if e.store != nil {
		if err := e.store.SaveTask(ctx, task); err != nil {
			e.logger.Error("failed to save task", zap.String("task_id", task.ID), zap.Error(err))
		}
	}

	r := &run{
		engine: e,
		task:   task,
		root:   root,
		front:  frontier.New(),
		result: domain.NewCrawlResult(task.ID, root),
	}

	seedURL := frontier.Normalize(task.TargetURL)
	r.front.Register(seedURL)
	r.front.RecordDepth(seedURL, 0)
	r.front.Enqueue(seedURL, 0)
	r.seedFromSitemaps(ctx)

	workers := e.cfg.CrawlWorkers
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		id := i
		g.Go(func() error {
			return r.worker(gctx, id)
		})
	}
	if err := g.Wait(); err != nil {
		r.result.Fail()
		if e.store != nil {
			e.saveResult(r.result)
		}
		return nil, fmt.Errorf("worker pool: %w", err)
	}

	r.result.Complete()
	if e.store != nil {
		e.saveResult(r.result)
	}
	e.logger.Info("crawl finished",
		zap.String("task_id", task.ID),
		zap.String("domain", root),
		zap.Int("pages", r.result.PagesCount),
		zap.Int64("bytes", r.result.TotalSize),
		zap.Int("frontier_remaining", r.front.Queued()),
	)
	return r.result, nil
}

func (e *Engine) saveResult(result *domain.CrawlResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.store.SaveCrawlResult(ctx, result); err != nil {
		e.logger.Error("failed to save crawl result", zap.String("task_id", result.TaskID), zap.Error(err))
	}
}

// run is the state of one crawl invocation, shared by its workers.
type run struct {
	engine *Engine
	task   *domain.CrawlTask
	root   string
	front  *frontier.Frontier

	mu     sync.Mutex
	result *domain.CrawlResult

	processed atomic.Int64
}

// retryLimit caps per-worker decode retries, configurable via MAX_RETRIES.
func (r *run) retryLimit() int {
	if r.engine.cfg.MaxRetries > 0 {
		return r.engine.cfg.MaxRetries
	}
	return defaultRetryLimit
}

// seedFromSitemaps enqueues in-scope sitemap URLs at depth 1 so the
// crawl starts with broad coverage of the site.
func (r *run) seedFromSitemaps(ctx context.Context) {
	urls, err := r.engine.robots.SitemapURLs(ctx, r.root)
	if err != nil {
		r.engine.logger.Warn("sitemap discovery failed", zap.String("domain", r.root), zap.Error(err))
		return
	}
	seeded := 0
	for raw := range urls {
		if seeded >= r.task.MaxLinks {
			break
		}
		norm := frontier.Normalize(raw)
		if len(filterScope([]string{norm}, r.root, r.task.FollowSubdomains)) == 0 {
			continue
		}
		if r.front.Register(norm) {
			r.front.RecordDepth(norm, 1)
			r.front.Enqueue(norm, 1)
			seeded++
		}
	}
	if seeded > 0 {
		r.engine.logger.Info("seeded from sitemaps", zap.String("domain", r.root), zap.Int("urls", seeded))
	}
}

type retryEntry struct {
	entry    frontier.Entry
	attempts int
}

// worker drains the frontier until the page budget is reached or all
// queues are empty. Each worker keeps a private retry queue for pages
// whose body failed to decode.
func (r *run) worker(ctx context.Context, id int) error {
	delay := time.Duration(r.engine.cfg.FetchDelayMS) * time.Millisecond
	if delay <= 0 {
		delay = defaultFetchDelay
	}
	limiter := rate.NewLimiter(rate.Every(delay), 1)

	var retries []retryEntry
	var pending []frontier.Entry

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if r.processed.Load() >= int64(r.task.MaxLinks) {
			return nil
		}

		var item frontier.Entry
		attempts := 0
		switch {
		case len(retries) > 0:
			next := retries[0]
			retries = retries[1:]
			item, attempts = next.entry, next.attempts
		case len(pending) > 0:
			item = pending[0]
			pending = pending[1:]
		default:
			pending = r.front.NextBatch(batchSize)
			if len(pending) == 0 {
				if r.front.Empty() && r.processed.Load() > 0 {
					return nil
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(idlePoll):
				}
			}
			continue
		}

		r.processOne(ctx, id, item, attempts, limiter, &retries)
	}
}

func (r *run) processOne(ctx context.Context, workerID int, item frontier.Entry, attempts int, limiter *rate.Limiter, retries *[]retryEntry) {
	log := r.engine.logger
	depth := r.front.Depth(item.URL)
	if depth > r.task.MaxDepth {
		return
	}

	parsed, err := url.Parse(item.URL)
	if err != nil {
		return
	}

	// Live robots checks on every third worker keep policy pressure on
	// the target low; the remaining workers assume the cached verdict.
	if workerID%3 == 0 {
		allowed, err := r.engine.robots.IsAllowed(ctx, parsed)
		if err == nil && !allowed {
			log.Debug("robots disallowed", zap.String("url", item.URL))
			r.engine.metrics.IncRobotsDenied()
			return
		}
	}

	if err := limiter.Wait(ctx); err != nil {
		return
	}

	resp, err := r.engine.fetcher.Get(ctx, item.URL)
	if err != nil {
		if errors.Is(err, ErrBodyDecode) {
			if attempts+1 <= r.retryLimit() {
				log.Debug("body decode failed, retrying",
					zap.String("url", item.URL), zap.Int("attempt", attempts+1))
				r.engine.metrics.IncRetries()
				*retries = append(*retries, retryEntry{entry: item, attempts: attempts + 1})
			} else {
				log.Warn("abandoning URL after repeated decode failures", zap.String("url", item.URL))
			}
			return
		}
		// A dead URL still consumes budget so the crawl cannot stall
		// on permanently broken links.
		log.Warn("fetch failed", zap.String("url", item.URL), zap.Error(err))
		r.engine.metrics.IncErrors("fetch")
		r.recordPage(domain.CrawledPage{
			URL:       item.URL,
			Size:      0,
			Timestamp: time.Now().Unix(),
		}, nil, false, nil)
		return
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		log.Warn("rate limited, backing off", zap.String("url", item.URL))
		r.engine.metrics.IncErrors("rate_limited")
		select {
		case <-ctx.Done():
			return
		case <-time.After(rateLimitBackoff):
		}
		r.front.Requeue(item.URL, depth)
		return
	}

	if !isHTML(resp.ContentType) {
		log.Debug("skipping non-HTML content",
			zap.String("url", item.URL), zap.String("content_type", resp.ContentType))
		return
	}

	html := resp.Body
	dependent, reasons := jsdetect.Classify(html)
	var renderedLinks []string
	if dependent && r.shouldEscalate(item.URL, depth) {
		html, renderedLinks = r.escalate(ctx, item.URL, html)
	}

	status := resp.StatusCode
	contentType := resp.ContentType
	page := domain.CrawledPage{
		URL:         item.URL,
		Size:        len(html),
		Timestamp:   time.Now().Unix(),
		ContentType: &contentType,
		StatusCode:  &status,
		Body:        html,
	}

	links := renderedLinks
	if links == nil {
		links, err = ExtractLinks(parsed, html)
		if err != nil {
			log.Warn("link extraction failed", zap.String("url", item.URL), zap.Error(err))
		}
	}
	inScope := filterScope(links, r.root, r.task.FollowSubdomains)

	r.recordPage(page, reasons, dependent, inScope)

	if depth >= r.task.MaxDepth {
		return
	}
	for _, link := range inScope {
		if r.front.Register(link) {
			r.front.RecordDepth(link, depth+1)
			r.front.Enqueue(link, depth+1)
		}
	}
}

func (r *run) shouldEscalate(rawURL string, depth int) bool {
	if r.engine.renderer == nil || !r.engine.cfg.RenderEnabled {
		return false
	}
	return frontier.MatchesImportant(rawURL) || depth <= 1
}

// escalate re-fetches a page through the headless browser. Renderer
// failures fall back to the static HTML; a down renderer never aborts
// the crawl.
func (r *run) escalate(ctx context.Context, rawURL, staticHTML string) (string, []string) {
	log := r.engine.logger
	timeout := r.engine.cfg.RenderTimeoutDuration()
	r.engine.metrics.IncEscalations()

	html, err := r.engine.renderer.RenderContent(ctx, rawURL, timeout)
	if err != nil {
		log.Warn("render failed, using static HTML", zap.String("url", rawURL), zap.Error(err))
		return staticHTML, nil
	}
	links, err := r.engine.renderer.ExtractLinks(ctx, rawURL, timeout)
	if err != nil {
		log.Warn("rendered link extraction failed", zap.String("url", rawURL), zap.Error(err))
		return html, nil
	}
	normalized := make([]string, 0, len(links))
	for _, l := range links {
		normalized = append(normalized, frontier.Normalize(l))
	}
	return html, normalized
}

// recordPage appends a page to the shared result, bumps the processed
// counter, and persists the page asynchronously. Write failures are
// logged and never affect in-memory progress.
func (r *run) recordPage(page domain.CrawledPage, reasons []string, dependent bool, links []string) {
	r.mu.Lock()
	r.result.AddPage(page)
	r.mu.Unlock()
	r.processed.Add(1)

	r.engine.metrics.IncPages()
	r.engine.metrics.AddBytes(page.Size)

	if r.engine.store == nil {
		return
	}
	record := storage.PageRecord{
		TaskID:        r.task.ID,
		URL:           page.URL,
		Domain:        r.root,
		Status:        "crawled",
		ContentType:   page.ContentType,
		Size:          page.Size,
		HTML:          page.Body,
		IsJSDependent: dependent,
		Reasons:       reasons,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := r.engine.store.SaveCrawledPage(ctx, record); err != nil {
			r.engine.logger.Error("failed to save page", zap.String("url", page.URL), zap.Error(err))
			r.engine.metrics.IncErrors("db_save_failed")
			return
		}
		if len(links) > 0 {
			if err := r.engine.store.UpdatePageLinks(ctx, page.URL, links); err != nil {
				r.engine.logger.Error("failed to save page links", zap.String("url", page.URL), zap.Error(err))
			}
		}
	}()
}
