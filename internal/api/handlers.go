package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/user/cryptocrawl/internal/domain"
	"github.com/user/cryptocrawl/internal/storage"
)

// CrawlRequest is the body of POST /api/crawl.
type CrawlRequest struct {
	TargetURL        string `json:"target_url"`
	MaxDepth         int    `json:"max_depth"`
	FollowSubdomains bool   `json:"follow_subdomains"`
	MaxLinks         int    `json:"max_links"`
}

func (s *Server) handleCrawlRequest(w http.ResponseWriter, r *http.Request) {
	var req CrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if _, err := url.ParseRequestURI(req.TargetURL); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid target_url: "+req.TargetURL)
		return
	}
	if req.MaxDepth <= 0 {
		req.MaxDepth = 2
	}
	if req.MaxLinks <= 0 {
		req.MaxLinks = 100
	}

	task := domain.NewTask(req.TargetURL, req.MaxDepth, req.FollowSubdomains, req.MaxLinks)
	s.mu.Lock()
	s.running[task.ID] = task
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.running, task.ID)
			s.mu.Unlock()
		}()
		if _, err := s.engine.Crawl(context.Background(), task); err != nil {
			s.logger.Error("crawl failed", zap.String("task_id", task.ID), zap.Error(err))
		}
	}()

	s.respondWithJSON(w, http.StatusAccepted, map[string]string{
		"task_id": task.ID,
		"status":  string(domain.StatusInProgress),
	})
}

func (s *Server) handleStatusRequest(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("task_id")
	if taskID == "" {
		s.respondWithError(w, http.StatusBadRequest, "task_id query parameter is required")
		return
	}

	s.mu.Lock()
	_, active := s.running[taskID]
	s.mu.Unlock()
	if active {
		s.respondWithJSON(w, http.StatusOK, map[string]string{
			"task_id": taskID,
			"status":  string(domain.StatusInProgress),
		})
		return
	}

	result, err := s.pgStore.GetCrawlResult(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Task not found")
			return
		}
		s.logger.Error("failed to get crawl result", zap.String("task_id", taskID), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not retrieve status")
		return
	}

	s.respondWithJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	healthStatus := make(map[string]string)

	if err := s.pgStore.Ping(ctx); err != nil {
		healthStatus["postgres"] = "unhealthy"
		s.logger.Error("health check failed for postgres", zap.Error(err))
	} else {
		healthStatus["postgres"] = "healthy"
	}

	if err := s.redisStore.Ping(ctx); err != nil {
		healthStatus["redis"] = "unhealthy"
		s.logger.Error("health check failed for redis", zap.Error(err))
	} else {
		healthStatus["redis"] = "healthy"
	}

	if healthStatus["postgres"] != "healthy" || healthStatus["redis"] != "healthy" {
		s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
