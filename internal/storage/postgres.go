package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/cryptocrawl/internal/domain"
)

// ErrNotFound is returned when a task or result does not exist.
var ErrNotFound = errors.New("not found")

// PostgresStore persists tasks, results, and pages in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

func (s *PostgresStore) SaveTask(ctx context.Context, task *domain.CrawlTask) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tasks (id, target_url, max_depth, follow_subdomains, max_links, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		task.ID, task.TargetURL, task.MaxDepth, task.FollowSubdomains, task.MaxLinks, task.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (*domain.CrawlTask, error) {
	var task domain.CrawlTask
	err := s.db.QueryRow(ctx,
		`SELECT id, target_url, max_depth, follow_subdomains, max_links, created_at
		 FROM tasks WHERE id = $1`, id,
	).Scan(&task.ID, &task.TargetURL, &task.MaxDepth, &task.FollowSubdomains, &task.MaxLinks, &task.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// SaveCrawlResult upserts the result header and its pages in one transaction.
func (s *PostgresStore) SaveCrawlResult(ctx context.Context, result *domain.CrawlResult) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO crawl_results (task_id, domain, status, pages_count, total_size, start_time, end_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (task_id) DO UPDATE SET
		   status = EXCLUDED.status, pages_count = EXCLUDED.pages_count,
		   total_size = EXCLUDED.total_size, end_time = EXCLUDED.end_time`,
		result.TaskID, result.Domain, string(result.Status),
		result.PagesCount, result.TotalSize, result.StartTime, result.EndTime,
	)
	if err != nil {
		return err
	}

	if len(result.Pages) > 0 {
		batch := &pgx.Batch{}
		for _, page := range result.Pages {
			batch.Queue(
				`INSERT INTO result_pages (task_id, url, size, crawled_at, content_type, status_code)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (task_id, url) DO UPDATE SET
				   size = EXCLUDED.size, crawled_at = EXCLUDED.crawled_at,
				   content_type = EXCLUDED.content_type, status_code = EXCLUDED.status_code`,
				result.TaskID, page.URL, page.Size, page.Timestamp, page.ContentType, page.StatusCode,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) GetCrawlResult(ctx context.Context, taskID string) (*domain.CrawlResult, error) {
	result := &domain.CrawlResult{TaskID: taskID}
	var status string
	err := s.db.QueryRow(ctx,
		`SELECT domain, status, pages_count, total_size, start_time, end_time
		 FROM crawl_results WHERE task_id = $1`, taskID,
	).Scan(&result.Domain, &status, &result.PagesCount, &result.TotalSize, &result.StartTime, &result.EndTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	result.Status = domain.CrawlStatus(status)

	rows, err := s.db.Query(ctx,
		`SELECT url, size, crawled_at, content_type, status_code
		 FROM result_pages WHERE task_id = $1 ORDER BY crawled_at`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var page domain.CrawledPage
		if err := rows.Scan(&page.URL, &page.Size, &page.Timestamp, &page.ContentType, &page.StatusCode); err != nil {
			return nil, err
		}
		result.Pages = append(result.Pages, page)
	}
	return result, rows.Err()
}

// SaveCrawledPage records one attempted page, including the JS classification.
func (s *PostgresStore) SaveCrawledPage(ctx context.Context, page PageRecord) error {
	reasons, err := json.Marshal(page.Reasons)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO crawled_pages (task_id, url, domain, status, content_type, size, html, is_js_dependent, js_reasons, crawled_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		 ON CONFLICT (url) DO UPDATE SET
		   task_id = EXCLUDED.task_id, status = EXCLUDED.status,
		   content_type = EXCLUDED.content_type, size = EXCLUDED.size,
		   html = EXCLUDED.html, is_js_dependent = EXCLUDED.is_js_dependent,
		   js_reasons = EXCLUDED.js_reasons, crawled_at = NOW()`,
		page.TaskID, page.URL, page.Domain, page.Status,
		page.ContentType, page.Size, page.HTML, page.IsJSDependent, reasons,
	)
	return err
}

// UpdatePageLinks replaces the outgoing link set recorded for a page.
func (s *PostgresStore) UpdatePageLinks(ctx context.Context, url string, links []string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM page_links WHERE source_url = $1`, url); err != nil {
		return err
	}
	if len(links) > 0 {
		batch := &pgx.Batch{}
		for _, link := range links {
			batch.Queue(`INSERT INTO page_links (source_url, target_url) VALUES ($1, $2)
			             ON CONFLICT DO NOTHING`, url, link)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
