package domain

import (
	"time"

	"github.com/google/uuid"
)

// CrawlTask describes a single crawl assignment. Tasks are created once,
// either locally or by the manager, and consumed by exactly one crawl.
type CrawlTask struct {
	ID               string `json:"id"`
	TargetURL        string `json:"target_url"`
	MaxDepth         int    `json:"max_depth"`
	FollowSubdomains bool   `json:"follow_subdomains"`
	MaxLinks         int    `json:"max_links"`
	CreatedAt        int64  `json:"created_at"`
}

// NewTask creates a task with a fresh ID for a locally initiated crawl.
func NewTask(targetURL string, maxDepth int, followSubdomains bool, maxLinks int) *CrawlTask {
	return &CrawlTask{
		ID:               uuid.NewString(),
		TargetURL:        targetURL,
		MaxDepth:         maxDepth,
		FollowSubdomains: followSubdomains,
		MaxLinks:         maxLinks,
		CreatedAt:        time.Now().Unix(),
	}
}

// CrawledPage is the record kept for every attempted page.
type CrawledPage struct {
	URL         string  `json:"url"`
	Size        int     `json:"size"`
	Timestamp   int64   `json:"timestamp"`
	ContentType *string `json:"content_type,omitempty"`
	StatusCode  *int    `json:"status_code,omitempty"`
	Body        string  `json:"body,omitempty"`
}

// CrawlStatus tracks the lifecycle of a crawl result.
type CrawlStatus string

const (
	StatusInProgress CrawlStatus = "InProgress"
	StatusCompleted  CrawlStatus = "Completed"
	StatusFailed     CrawlStatus = "Failed"
	// Manager-side verdicts on a submitted report.
	StatusVerified CrawlStatus = "Verified"
	StatusRejected CrawlStatus = "Rejected"
)

// CrawlResult is the full outcome of one crawl invocation.
type CrawlResult struct {
	TaskID     string        `json:"task_id"`
	Domain     string        `json:"domain"`
	Status     CrawlStatus   `json:"status"`
	Pages      []CrawledPage `json:"pages"`
	PagesCount int           `json:"pages_count"`
	TotalSize  int64         `json:"total_size"`
	StartTime  int64         `json:"start_time"`
	EndTime    *int64        `json:"end_time,omitempty"`
}

// NewCrawlResult starts an in-progress result for a task and domain.
func NewCrawlResult(taskID, domain string) *CrawlResult {
	return &CrawlResult{
		TaskID:    taskID,
		Domain:    domain,
		Status:    StatusInProgress,
		Pages:     []CrawledPage{},
		StartTime: time.Now().Unix(),
	}
}

// AddPage appends a page and keeps the aggregate counters consistent.
func (r *CrawlResult) AddPage(page CrawledPage) {
	r.Pages = append(r.Pages, page)
	r.PagesCount = len(r.Pages)
	r.TotalSize += int64(page.Size)
}

// Complete marks the crawl finished.
func (r *CrawlResult) Complete() {
	now := time.Now().Unix()
	r.Status = StatusCompleted
	r.EndTime = &now
}

// Fail marks a crawl that could not start or finish.
func (r *CrawlResult) Fail() {
	now := time.Now().Unix()
	r.Status = StatusFailed
	r.EndTime = &now
}

// CrawlReport is the compact projection submitted to the manager.
type CrawlReport struct {
	TaskID               string        `json:"task_id"`
	Pages                []CrawledPage `json:"pages"`
	TransactionSignature *string       `json:"transaction_signature,omitempty"`
	PagesCrawled         int           `json:"pages_crawled"`
	TotalSizeBytes       int64         `json:"total_size_bytes"`
	CrawlDurationMS      int64         `json:"crawl_duration_ms"`
}

// ToReport converts a result to its report projection.
func (r *CrawlResult) ToReport() CrawlReport {
	var durationMS int64
	if r.EndTime != nil {
		durationMS = (*r.EndTime - r.StartTime) * 1000
	}
	return CrawlReport{
		TaskID:          r.TaskID,
		Pages:           r.Pages,
		PagesCrawled:    r.PagesCount,
		TotalSizeBytes:  r.TotalSize,
		CrawlDurationMS: durationMS,
	}
}
