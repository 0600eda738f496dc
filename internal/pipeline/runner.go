// Package pipeline runs ingestion end to end: fetch, dedup, extract, embed,
// cluster and score.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/ideahunter/internal/embedding"
	"github.com/thebtf/ideahunter/internal/extraction"
	"github.com/thebtf/ideahunter/internal/sources"
	"github.com/thebtf/ideahunter/pkg/models"
)

// progressEvery is the number of items between progress log lines.
const progressEvery = 10

var (
	// ErrNoSources is returned when no source is configured or every source failed.
	ErrNoSources = errors.New("no sources available")

	// ErrRunInProgress is returned when Run is called while a run is active.
	ErrRunInProgress = errors.New("pipeline run already in progress")

	// ErrPanic wraps a panic recovered while processing one item.
	ErrPanic = errors.New("panic while processing post")
)

// Processing stages, used in logs and StageError.
const (
	StageStorePost      = "store_post"
	StageExtract        = "extract"
	StageStoreProblem   = "store_problem"
	StageEmbed          = "embed"
	StageStoreEmbedding = "store_embedding"
	StageCluster        = "cluster"
	StageScore          = "score"
)

// StageError is a per-item failure tagged with the stage it happened in.
type StageError struct {
	Err   error
	Stage string
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// PostStore persists raw posts.
type PostStore interface {
	StorePost(ctx context.Context, post *models.RawPost) (bool, error)
}

// ProblemStore persists extracted problems and their embeddings.
type ProblemStore interface {
	StoreProblem(ctx context.Context, postID string, p *models.StructuredProblem) (int64, error)
	StoreEmbedding(ctx context.Context, problemID int64, vec []float32, model string) error
}

// RunStore records pipeline runs.
type RunStore interface {
	StartRun(ctx context.Context, startedAt time.Time) (*models.PipelineRun, error)
	FinishRun(ctx context.Context, run *models.PipelineRun) error
}

// Deduper filters already ingested posts.
type Deduper interface {
	FilterNew(ctx context.Context, posts []models.RawPost) ([]models.RawPost, error)
	MarkStored(ctx context.Context, ids ...string)
}

// Clusterer assigns a problem vector to a cluster.
type Clusterer interface {
	Assign(ctx context.Context, problemID int64, vec []float32) (int64, error)
}

// Scorer computes and persists a problem's score.
type Scorer interface {
	Score(ctx context.Context, problemID int64) (float64, error)
}

// Notifier receives pipeline events.
type Notifier interface {
	Broadcast(data interface{})
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Gate      Deduper
	Posts     PostStore
	Problems  ProblemStore
	Runs      RunStore
	Extractor extraction.Extractor
	Embedder  embedding.Embedder
	Clusterer Clusterer
	Scorer    Scorer
	Sources   []sources.Source
}

// Runner executes pipeline runs. Items within a run are processed
// sequentially; concurrent Run calls are rejected.
type Runner struct {
	notifier Notifier
	metrics  *Metrics
	now      func() time.Time
	deps     Deps
	running  atomic.Bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics sets the metrics tracker.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithNotifier sets the event sink.
func WithNotifier(n Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a runner.
func NewRunner(deps Deps, opts ...Option) *Runner {
	r := &Runner{deps: deps, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics()
	}
	return r
}

// Metrics returns the runner's metrics tracker.
func (r *Runner) Metrics() *Metrics {
	return r.metrics
}

// Running reports whether a run is in progress.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Run fetches from all sources, drops known posts and processes the rest.
// The returned run record is persisted whether the run completed or aborted.
func (r *Runner) Run(ctx context.Context) (*models.PipelineRun, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	run, err := r.deps.Runs.StartRun(ctx, r.now())
	if err != nil {
		return nil, fmt.Errorf("starting run: %w", err)
	}
	log.Info().Str("runId", run.ID).Int("sources", len(r.deps.Sources)).Msg("Pipeline run started")
	r.notify(Event{Type: EventRunStarted, RunID: run.ID})

	posts, err := r.fetch(ctx)
	if err != nil {
		return r.finish(ctx, run, err)
	}
	run.Fetched = len(posts)

	fresh, err := r.deps.Gate.FilterNew(ctx, posts)
	if err != nil {
		return r.finish(ctx, run, fmt.Errorf("dedup: %w", err))
	}
	run.New = len(fresh)
	log.Info().
		Str("runId", run.ID).
		Int("fetched", run.Fetched).
		Int("new", run.New).
		Msg("Processing new posts")

	for i := range fresh {
		if err := ctx.Err(); err != nil {
			return r.finish(ctx, run, err)
		}

		outcome, err := r.ProcessPost(ctx, fresh[i])
		switch outcome {
		case OutcomeProcessed:
			run.Processed++
		case OutcomeNoProblem:
			run.NoProblem++
		case OutcomeExtractFailed:
			run.ExtractFailed++
		default:
			run.Errors++
		}
		if err != nil {
			stage := ""
			var se *StageError
			if errors.As(err, &se) {
				stage = se.Stage
			}
			log.Warn().Err(err).
				Str("postId", fresh[i].ID).
				Str("stage", stage).
				Msg("Skipping post")
		}

		if (i+1)%progressEvery == 0 {
			log.Info().
				Str("runId", run.ID).
				Int("done", i+1).
				Int("total", len(fresh)).
				Int("processed", run.Processed).
				Int("errors", run.Errors).
				Msg("Pipeline progress")
			stats := run.RunStats
			r.notify(Event{Type: EventProgress, RunID: run.ID, Stats: &stats, Done: i + 1, Total: len(fresh)})
		}
	}

	return r.finish(ctx, run, nil)
}

// ProcessPost runs one post through storage, extraction, embedding,
// clustering and scoring. It returns the item outcome; a non-nil error is a
// *StageError.
func (r *Runner) ProcessPost(ctx context.Context, post models.RawPost) (string, error) {
	start := r.now()
	outcome, err := r.processPost(ctx, &post)
	r.metrics.RecordItem(ctx, outcome, r.now().Sub(start))
	return outcome, err
}

func (r *Runner) processPost(ctx context.Context, post *models.RawPost) (outcome string, err error) {
	stage := StageStorePost
	defer func() {
		if p := recover(); p != nil {
			log.Error().
				Str("postId", post.ID).
				Str("stage", stage).
				Interface("panic", p).
				Bytes("stack", debug.Stack()).
				Msg("Recovered panic")
			outcome, err = OutcomeError, &StageError{Stage: stage, Err: fmt.Errorf("%w: %v", ErrPanic, p)}
		}
	}()

	if _, err := r.deps.Posts.StorePost(ctx, post); err != nil {
		return OutcomeError, &StageError{Stage: stage, Err: err}
	}
	r.deps.Gate.MarkStored(ctx, post.ID)

	stage = StageExtract
	problem, err := r.deps.Extractor.Extract(ctx, post.Title, post.Body)
	if err != nil {
		if errors.Is(err, extraction.ErrExtractionFailed) {
			return OutcomeExtractFailed, &StageError{Stage: stage, Err: err}
		}
		return OutcomeError, &StageError{Stage: stage, Err: err}
	}
	if problem == nil {
		log.Debug().Str("postId", post.ID).Msg("No clear problem identified")
		return OutcomeNoProblem, nil
	}

	stage = StageStoreProblem
	problemID, err := r.deps.Problems.StoreProblem(ctx, post.ID, problem)
	if err != nil {
		return OutcomeError, &StageError{Stage: stage, Err: err}
	}

	stage = StageEmbed
	vec, err := r.deps.Embedder.Embed(ctx, problem.EmbeddingText())
	if err != nil {
		return OutcomeError, &StageError{Stage: stage, Err: err}
	}
	stage = StageStoreEmbedding
	if err := r.deps.Problems.StoreEmbedding(ctx, problemID, vec, r.deps.Embedder.Model()); err != nil {
		return OutcomeError, &StageError{Stage: stage, Err: err}
	}

	stage = StageCluster
	clusterID, err := r.deps.Clusterer.Assign(ctx, problemID, vec)
	if err != nil {
		return OutcomeError, &StageError{Stage: stage, Err: err}
	}

	stage = StageScore
	score, err := r.deps.Scorer.Score(ctx, problemID)
	if err != nil {
		return OutcomeError, &StageError{Stage: stage, Err: err}
	}

	log.Debug().
		Str("postId", post.ID).
		Int64("problemId", problemID).
		Int64("clusterId", clusterID).
		Float64("score", score).
		Msg("Post processed")
	r.notify(Event{Type: EventProblemScored, ProblemID: problemID, ClusterID: clusterID, Score: score})
	return OutcomeProcessed, nil
}

// fetch queries all sources concurrently. A failing source is logged and
// skipped; results keep source order.
func (r *Runner) fetch(ctx context.Context) ([]models.RawPost, error) {
	if len(r.deps.Sources) == 0 {
		return nil, ErrNoSources
	}

	results := make([][]models.RawPost, len(r.deps.Sources))
	errs := make([]error, len(r.deps.Sources))

	var g errgroup.Group
	for i, src := range r.deps.Sources {
		g.Go(func() error {
			posts, err := src.Fetch(ctx)
			if err != nil {
				log.Error().Err(err).Str("source", src.Name()).Msg("Source fetch failed")
				errs[i] = fmt.Errorf("%s: %w", src.Name(), err)
				return nil
			}
			log.Info().Str("source", src.Name()).Int("posts", len(posts)).Msg("Source fetched")
			results[i] = posts
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		all    []models.RawPost
		failed int
	)
	for i := range results {
		if errs[i] != nil {
			failed++
			continue
		}
		all = append(all, results[i]...)
	}
	if failed == len(r.deps.Sources) {
		return nil, fmt.Errorf("%w: %w", ErrNoSources, errors.Join(errs...))
	}
	return all, nil
}

// finish stamps and persists the run. The record is written even when ctx
// is already cancelled.
func (r *Runner) finish(ctx context.Context, run *models.PipelineRun, runErr error) (*models.PipelineRun, error) {
	finishedAt := r.now()
	run.FinishedAt = &finishedAt
	run.Status = models.RunStatusCompleted
	if runErr != nil {
		run.Status = models.RunStatusAborted
		run.Error = runErr.Error()
	}

	if err := r.deps.Runs.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		log.Error().Err(err).Str("runId", run.ID).Msg("Failed to record pipeline run")
	}
	r.metrics.RecordRun(ctx, run.Status, finishedAt)

	event := log.Info()
	if runErr != nil {
		event = log.Error().Err(runErr)
	}
	event.
		Str("runId", run.ID).
		Str("status", string(run.Status)).
		Int("fetched", run.Fetched).
		Int("new", run.New).
		Int("processed", run.Processed).
		Int("noProblem", run.NoProblem).
		Int("extractFailed", run.ExtractFailed).
		Int("errors", run.Errors).
		Dur("elapsed", run.Elapsed()).
		Msg("Pipeline run finished")

	stats := run.RunStats
	r.notify(Event{Type: EventRunFinished, RunID: run.ID, Status: run.Status, Stats: &stats, Error: run.Error})
	return run, runErr
}

func (r *Runner) notify(e Event) {
	if r.notifier != nil {
		r.notifier.Broadcast(e)
	}
}
