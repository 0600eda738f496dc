// Package worker provides the status server for ideahunter daemons.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	dbgorm "github.com/thebtf/ideahunter/internal/db/gorm"
	"github.com/thebtf/ideahunter/internal/pipeline"
	"github.com/thebtf/ideahunter/internal/worker/sse"
	"github.com/thebtf/ideahunter/pkg/models"
)

// RunReader reads pipeline run history.
type RunReader interface {
	LatestRun(ctx context.Context) (*models.PipelineRun, error)
	RecentRuns(ctx context.Context, limit int) ([]*models.PipelineRun, error)
}

// ProblemReader reads scored problems.
type ProblemReader interface {
	TopProblems(ctx context.Context, limit int) ([]*models.Problem, error)
	CountProblems(ctx context.Context) (int64, error)
}

// PostCounter counts stored posts.
type PostCounter interface {
	CountPosts(ctx context.Context) (int64, error)
}

// ClusterStatter reports clustering statistics.
type ClusterStatter interface {
	Stats(ctx context.Context) (*dbgorm.ClusterStats, error)
}

// Pipeline is the runner the service triggers and reports on.
type Pipeline interface {
	Run(ctx context.Context) (*models.PipelineRun, error)
	Running() bool
	Metrics() *pipeline.Metrics
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping() error
}

// Options are the collaborators of a Service.
type Options struct {
	DB          Pinger
	Runs        RunReader
	Problems    ProblemReader
	Posts       PostCounter
	Clusters    ClusterStatter
	Pipeline    Pipeline
	Broadcaster *sse.Broadcaster
	NextRun     func() time.Time
	Version     string
}

// Service serves health, stats and live pipeline events over HTTP.
type Service struct {
	startTime      time.Time
	db             Pinger
	runs           RunReader
	problems       ProblemReader
	posts          PostCounter
	clusters       ClusterStatter
	pipeline       Pipeline
	sseBroadcaster *sse.Broadcaster
	nextRun        func() time.Time
	router         chi.Router
	server         *http.Server
	ctx            context.Context
	cancel         context.CancelFunc
	version        string
	wg             sync.WaitGroup
	ready          atomic.Bool
}

// NewService creates a status service.
func NewService(opts Options) *Service {
	if opts.Broadcaster == nil {
		opts.Broadcaster = sse.NewBroadcaster()
	}
	ctx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		version:        opts.Version,
		db:             opts.DB,
		runs:           opts.Runs,
		problems:       opts.Problems,
		posts:          opts.Posts,
		clusters:       opts.Clusters,
		pipeline:       opts.Pipeline,
		sseBroadcaster: opts.Broadcaster,
		nextRun:        opts.NextRun,
		router:         chi.NewRouter(),
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
	}
	svc.setupRoutes()
	return svc
}

// Broadcaster returns the SSE broadcaster pipeline events should go to.
func (s *Service) Broadcaster() *sse.Broadcaster {
	return s.sseBroadcaster
}

// Handler returns the HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

// SetReady marks the service ready or not.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/ready", s.handleReady)
	s.router.Get("/api/version", s.handleVersion)

	s.router.Group(func(r chi.Router) {
		r.Use(s.requireReady)
		r.Get("/api/stats", s.handleStats)
		r.Get("/api/runs", s.handleRuns)
		r.Get("/api/runs/latest", s.handleLatestRun)
		r.Post("/api/runs", s.handleTriggerRun)
		r.Get("/api/problems/top", s.handleTopProblems)
		r.Get("/api/events", s.sseBroadcaster.HandleSSE)
	})
}

// Start listens on addr and serves until Shutdown.
func (s *Service) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}
	s.ready.Store(true)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Info().Str("addr", ln.Addr().String()).Msg("Status server listening")
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Status server failed")
		}
	}()
	return nil
}

// Shutdown stops the server and waits for triggered runs to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	s.cancel()

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}
