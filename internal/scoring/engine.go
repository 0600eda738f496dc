package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/ideahunter/pkg/models"
)

// MomentumWindow is how far back a cluster member counts as recent.
const MomentumWindow = 7 * 24 * time.Hour

// ProblemStore reads problems and writes their derived scores.
type ProblemStore interface {
	GetProblem(ctx context.Context, id int64) (*models.Problem, error)
	UpdateScores(ctx context.Context, id int64, scores models.Scores, scoredAt time.Time) (bool, error)
}

// PostLookup reads originating posts.
type PostLookup interface {
	GetPost(ctx context.Context, id string) (*models.RawPost, error)
}

// ClusterLookup reads cluster membership and sizes.
type ClusterLookup interface {
	ClusterForProblem(ctx context.Context, problemID int64) (int64, bool, error)
	ClusterSize(ctx context.Context, clusterID int64) (int, bool, error)
	CountRecentMembers(ctx context.Context, clusterID int64, since time.Time) (int64, error)
}

// Engine scores problems and persists the result.
type Engine struct {
	problems ProblemStore
	posts    PostLookup
	clusters ClusterLookup
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for the momentum window and ScoredAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a scoring engine.
func NewEngine(problems ProblemStore, posts PostLookup, clusters ClusterLookup, opts ...Option) *Engine {
	e := &Engine{
		problems: problems,
		posts:    posts,
		clusters: clusters,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score computes and stores the scores of one problem and returns the final
// score. A problem that does not exist scores 0 and nothing is written.
func (e *Engine) Score(ctx context.Context, problemID int64) (float64, error) {
	problem, err := e.problems.GetProblem(ctx, problemID)
	if err != nil {
		return 0, fmt.Errorf("get problem %d: %w", problemID, err)
	}
	if problem == nil {
		return 0, nil
	}

	now := e.now()
	scores, err := e.compute(ctx, problem, now)
	if err != nil {
		return 0, err
	}

	if _, err := e.problems.UpdateScores(ctx, problemID, scores, now); err != nil {
		return 0, fmt.Errorf("update scores for problem %d: %w", problemID, err)
	}

	log.Debug().
		Int64("problemId", problemID).
		Float64("engagement", scores.Engagement).
		Float64("pain", scores.Pain).
		Float64("monetization", scores.Monetization).
		Float64("frequency", scores.Frequency).
		Float64("momentum", scores.Momentum).
		Float64("final", scores.Final).
		Msg("Scored problem")

	return scores.Final, nil
}

func (e *Engine) compute(ctx context.Context, p *models.Problem, now time.Time) (models.Scores, error) {
	var upvotes, comments int
	post, err := e.posts.GetPost(ctx, p.PostID)
	if err != nil {
		return models.Scores{}, fmt.Errorf("get post %s: %w", p.PostID, err)
	}
	if post != nil {
		upvotes, comments = post.Upvotes, post.Comments
	}

	clusterSize, recent := 1, 0
	clusterID, clustered, err := e.clusters.ClusterForProblem(ctx, p.ID)
	if err != nil {
		return models.Scores{}, fmt.Errorf("get cluster for problem %d: %w", p.ID, err)
	}
	if clustered {
		size, ok, err := e.clusters.ClusterSize(ctx, clusterID)
		if err != nil {
			return models.Scores{}, fmt.Errorf("get size of cluster %d: %w", clusterID, err)
		}
		if ok {
			clusterSize = size
		}

		n, err := e.clusters.CountRecentMembers(ctx, clusterID, now.Add(-MomentumWindow))
		if err != nil {
			return models.Scores{}, fmt.Errorf("count recent members of cluster %d: %w", clusterID, err)
		}
		recent = int(n)
	}

	s := models.Scores{
		Engagement:   Engagement(upvotes, comments),
		Pain:         Pain(p.PainScore),
		Monetization: Monetization(p.MonetizationScore),
		Frequency:    Frequency(clusterSize),
		Momentum:     Momentum(recent),
	}
	s.Final = Total(s.Engagement, s.Pain, s.Monetization, s.Frequency, s.Momentum)
	return s, nil
}
