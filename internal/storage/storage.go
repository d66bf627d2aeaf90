package storage

import (
	"context"

	"github.com/user/cryptocrawl/internal/domain"
)

// PageRecord is the per-page write handed to the store during a crawl.
type PageRecord struct {
	TaskID        string
	URL           string
	Domain        string
	Status        string
	ContentType   *string
	Size          int
	HTML          string
	IsJSDependent bool
	Reasons       []string
}

// Store is the persistence collaborator for tasks, results, and pages.
// Implementations must treat writes as best-effort from the crawl's point
// of view: the engine logs failures and keeps going.
type Store interface {
	SaveTask(ctx context.Context, task *domain.CrawlTask) error
	SaveCrawlResult(ctx context.Context, result *domain.CrawlResult) error
	SaveCrawledPage(ctx context.Context, page PageRecord) error
	UpdatePageLinks(ctx context.Context, url string, links []string) error
	GetTask(ctx context.Context, id string) (*domain.CrawlTask, error)
	GetCrawlResult(ctx context.Context, taskID string) (*domain.CrawlResult, error)
}
