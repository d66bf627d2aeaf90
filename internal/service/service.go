package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/user/cryptocrawl/internal/crawler"
	"github.com/user/cryptocrawl/internal/domain"
	"github.com/user/cryptocrawl/internal/storage"
)

// Service connects the crawl engine to a remote manager: it registers,
// polls for assigned tasks, runs them, and submits reports.
type Service struct {
	clientID     string
	managerURL   string
	pollInterval time.Duration
	client       *http.Client
	engine       *crawler.Engine
	store        storage.Store
	redis        *storage.RedisStore
	dedupTTL     time.Duration
	logger       *zap.Logger
}

func New(clientID, managerURL string, pollInterval time.Duration, engine *crawler.Engine, store storage.Store, redis *storage.RedisStore, dedupTTL time.Duration, logger *zap.Logger) *Service {
	return &Service{
		clientID:     clientID,
		managerURL:   managerURL,
		pollInterval: pollInterval,
		client:       &http.Client{Timeout: 30 * time.Second},
		engine:       engine,
		store:        store,
		redis:        redis,
		dedupTTL:     dedupTTL,
		logger:       logger,
	}
}

// Run registers with the manager and polls for tasks until the context
// is cancelled. Per-task failures are logged and retried on the next
// poll; only context cancellation stops the loop.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting crawler service",
		zap.String("client_id", s.clientID),
		zap.String("manager_url", s.managerURL))

	if err := s.register(ctx); err != nil {
		s.logger.Warn("manager registration failed, continuing anyway", zap.Error(err))
	}

	for {
		processed, err := s.processNextTask(ctx)
		if err != nil {
			s.logger.Error("task processing failed", zap.Error(err))
		}
		if processed && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

// processNextTask fetches and runs one task. It returns false when the
// manager had nothing to assign.
func (s *Service) processNextTask(ctx context.Context) (bool, error) {
	task, err := s.fetchTask(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	if s.redis != nil {
		recent, err := s.redis.IsRecentlyCrawled(ctx, task.TargetURL)
		if err != nil {
			s.logger.Error("failed to check dedup cache", zap.String("url", task.TargetURL), zap.Error(err))
		}
		if recent {
			s.logger.Info("skipping recently crawled target", zap.String("url", task.TargetURL))
			return true, nil
		}
	}

	s.logger.Info("processing task",
		zap.String("task_id", task.ID),
		zap.String("url", task.TargetURL))

	result, err := s.engine.Crawl(ctx, task)
	if err != nil {
		return true, fmt.Errorf("crawl failed: %w", err)
	}
	s.logger.Info("crawl completed",
		zap.String("task_id", task.ID),
		zap.Int("pages", result.PagesCount),
		zap.Int64("bytes", result.TotalSize))

	if s.redis != nil {
		if err := s.redis.MarkCrawled(ctx, task.TargetURL, s.dedupTTL); err != nil {
			s.logger.Error("failed to mark target as crawled", zap.String("url", task.TargetURL), zap.Error(err))
		}
	}

	if err := s.submitReport(ctx, result); err != nil {
		return true, fmt.Errorf("report submission failed: %w", err)
	}
	return true, nil
}

func (s *Service) register(ctx context.Context) error {
	body := map[string]interface{}{
		"client_id": s.clientID,
		"capabilities": map[string]interface{}{
			"max_depth":         10,
			"follow_subdomains": true,
			"smart_mode":        true,
		},
	}
	resp, err := s.postJSON(ctx, s.managerURL+"/api/crawlers/register", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		// Registration issues are not fatal; the manager may already
		// know this client.
		s.logger.Warn("registration returned non-success status", zap.Int("status", resp.StatusCode))
	}
	return nil
}

func (s *Service) fetchTask(ctx context.Context) (*domain.CrawlTask, error) {
	resp, err := s.postJSON(ctx, s.managerURL+"/api/tasks/assign", map[string]string{
		"client_id": s.clientID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to request task: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("task assignment returned status %d", resp.StatusCode)
	}

	var task domain.CrawlTask
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, fmt.Errorf("failed to parse task response: %w", err)
	}
	if task.ID == "" || task.TargetURL == "" {
		return nil, fmt.Errorf("manager returned incomplete task: %+v", task)
	}

	if s.store != nil {
		if err := s.store.SaveTask(ctx, &task); err != nil {
			s.logger.Warn("failed to save assigned task", zap.String("task_id", task.ID), zap.Error(err))
		}
	}
	return &task, nil
}

func (s *Service) submitReport(ctx context.Context, result *domain.CrawlResult) error {
	report := result.ToReport()
	var endTime int64
	if result.EndTime != nil {
		endTime = *result.EndTime
	}
	body := map[string]interface{}{
		"task_id":    report.TaskID,
		"client_id":  s.clientID,
		"domain":     result.Domain,
		"pages":      report.Pages,
		"start_time": result.StartTime,
		"end_time":   endTime,
	}
	resp, err := s.postJSON(ctx, s.managerURL+"/api/reports", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("report submission returned status %d", resp.StatusCode)
	}

	var verification struct {
		Verified bool    `json:"verified"`
		Score    float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&verification); err != nil {
		return fmt.Errorf("failed to parse verification response: %w", err)
	}
	if verification.Verified {
		s.logger.Info("report verified",
			zap.String("task_id", report.TaskID),
			zap.Float64("score", verification.Score))
	} else {
		s.logger.Warn("report was not verified",
			zap.String("task_id", report.TaskID),
			zap.Float64("score", verification.Score))
	}
	return nil
}

func (s *Service) postJSON(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.client.Do(req)
}
