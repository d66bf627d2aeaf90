package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/cryptocrawl/internal/config"
	"github.com/user/cryptocrawl/internal/crawler"
	"github.com/user/cryptocrawl/internal/domain"
	"github.com/user/cryptocrawl/internal/storage"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	config     *config.Config
	router     http.Handler
	httpServer *http.Server
	engine     *crawler.Engine
	pgStore    *storage.PostgresStore
	redisStore *storage.RedisStore
	logger     *zap.Logger

	mu      sync.Mutex
	running map[string]*domain.CrawlTask
}

func NewServer(cfg *config.Config, engine *crawler.Engine, ps *storage.PostgresStore, rs *storage.RedisStore, l *zap.Logger) *Server {
	s := &Server{
		config:     cfg,
		engine:     engine,
		pgStore:    ps,
		redisStore: rs,
		logger:     l,
		running:    make(map[string]*domain.CrawlTask),
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.config.ServerPort),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
