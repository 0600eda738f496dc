package worker

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	dbgorm "github.com/thebtf/ideahunter/internal/db/gorm"
	"github.com/thebtf/ideahunter/internal/pipeline"
	"github.com/thebtf/ideahunter/pkg/models"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func listLimit(r *http.Request) int {
	return min(dbgorm.ParseLimitParam(r, defaultListLimit), maxListLimit)
}

// requireReady rejects requests until the service is ready.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeError(w, http.StatusServiceUnavailable, "service not ready")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "starting"
	if s.ready.Load() {
		status = "ready"
	}
	resp := map[string]interface{}{
		"status":  status,
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	}
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			resp["status"] = "degraded"
			resp["db_error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeError(w, http.StatusServiceUnavailable, "service not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	NextRun  *time.Time           `json:"next_run,omitempty"`
	Clusters *dbgorm.ClusterStats `json:"clusters"`
	Pipeline pipeline.Snapshot    `json:"pipeline"`
	Posts    int64                `json:"posts"`
	Problems int64                `json:"problems"`
	Running  bool                 `json:"running"`
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var resp StatsResponse

	var err error
	if resp.Posts, err = s.posts.CountPosts(ctx); err != nil {
		s.internalError(w, "count posts", err)
		return
	}
	if resp.Problems, err = s.problems.CountProblems(ctx); err != nil {
		s.internalError(w, "count problems", err)
		return
	}
	if resp.Clusters, err = s.clusters.Stats(ctx); err != nil {
		s.internalError(w, "cluster stats", err)
		return
	}
	if s.pipeline != nil {
		resp.Pipeline = s.pipeline.Metrics().Snapshot()
		resp.Running = s.pipeline.Running()
	}
	if s.nextRun != nil {
		if next := s.nextRun(); !next.IsZero() {
			resp.NextRun = &next
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.RecentRuns(r.Context(), listLimit(r))
	if err != nil {
		s.internalError(w, "recent runs", err)
		return
	}
	if runs == nil {
		runs = []*models.PipelineRun{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (s *Service) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.LatestRun(r.Context())
	if err != nil {
		s.internalError(w, "latest run", err)
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "no runs recorded")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Service) handleTopProblems(w http.ResponseWriter, r *http.Request) {
	problems, err := s.problems.TopProblems(r.Context(), listLimit(r))
	if err != nil {
		s.internalError(w, "top problems", err)
		return
	}
	if problems == nil {
		problems = []*models.Problem{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"problems": problems})
}

// handleTriggerRun starts a pipeline run in the background.
func (s *Service) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not configured")
		return
	}
	if s.pipeline.Running() {
		writeError(w, http.StatusConflict, pipeline.ErrRunInProgress.Error())
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.pipeline.Run(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Triggered pipeline run failed")
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Service) internalError(w http.ResponseWriter, op string, err error) {
	log.Error().Err(err).Str("op", op).Msg("Status request failed")
	writeError(w, http.StatusInternalServerError, op+" failed")
}
