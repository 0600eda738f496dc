// Package clustering assigns problem embeddings to clusters incrementally.
//
// Each new vector is compared against every cluster centroid. The closest
// cluster at or above the similarity threshold absorbs the vector and its
// centroid is moved toward it; otherwise the vector seeds a new cluster.
// Clusters are never merged, split or re-clustered.
package clustering

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/ideahunter/internal/vector"
	"github.com/thebtf/ideahunter/pkg/similarity"
)

// DefaultThreshold is the minimum cosine similarity for joining a cluster.
const DefaultThreshold = 0.85

var (
	// ErrDimensionMismatch is returned when a vector's length differs from the
	// configured dimension or from a stored centroid.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidVector is returned for a vector with a zero norm or a
	// non-finite component. Such a vector cannot become a unit centroid.
	ErrInvalidVector = errors.New("invalid embedding vector")

	// ErrAlreadyAssigned is returned when the problem already has a cluster.
	ErrAlreadyAssigned = vector.ErrAlreadyAssigned
)

// Config configures an Engine.
type Config struct {
	// Threshold is the minimum cosine similarity for joining a cluster.
	// Zero means DefaultThreshold.
	Threshold float64
	// Dimension is the expected vector length. Zero disables the check
	// against a fixed dimension; centroids are still checked.
	Dimension int
}

// Result describes the outcome of one assignment.
type Result struct {
	ClusterID  int64
	Similarity float64
	Created    bool
}

// Engine performs incremental online clustering over a vector.Store.
type Engine struct {
	store     vector.Store
	locks     *keyedMutex
	threshold float64
	dim       int
}

// New creates a clustering engine.
func New(store vector.Store, cfg Config) *Engine {
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	return &Engine{
		store:     store,
		threshold: threshold,
		dim:       cfg.Dimension,
		locks:     newKeyedMutex(),
	}
}

// Threshold returns the similarity threshold in use.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// Assign places problemID in the best matching cluster, or a new one, and
// returns the cluster id.
func (e *Engine) Assign(ctx context.Context, problemID int64, vec []float32) (int64, error) {
	res, err := e.AssignDetailed(ctx, problemID, vec)
	if err != nil {
		return 0, err
	}
	return res.ClusterID, nil
}

// AssignDetailed is Assign but also reports the matched similarity and
// whether a new cluster was created.
func (e *Engine) AssignDetailed(ctx context.Context, problemID int64, vec []float32) (Result, error) {
	if len(vec) == 0 || (e.dim > 0 && len(vec) != e.dim) {
		err := fmt.Errorf("%w: problem %d has %d dimensions, want %d", ErrDimensionMismatch, problemID, len(vec), e.dim)
		log.Error().Err(err).Int64("problemId", problemID).Msg("Rejected embedding")
		return Result{}, err
	}
	if !similarity.Usable(vec) {
		err := fmt.Errorf("%w: problem %d has a zero or non-finite vector", ErrInvalidVector, problemID)
		log.Error().Err(err).Int64("problemId", problemID).Msg("Rejected embedding")
		return Result{}, err
	}

	centroids, err := e.store.LoadCentroids(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load centroids: %w", err)
	}

	best, bestSim, err := bestMatch(centroids, vec, e.threshold)
	if err != nil {
		log.Error().Err(err).Int64("problemId", problemID).Msg("Centroid dimension mismatch")
		return Result{}, err
	}

	if best == nil {
		clusterID, err := e.store.CreateCluster(ctx, problemID, similarity.Normalize(vec))
		if err != nil {
			return Result{}, fmt.Errorf("create cluster: %w", err)
		}
		log.Debug().
			Int64("problemId", problemID).
			Int64("clusterId", clusterID).
			Msg("Created cluster")
		return Result{ClusterID: clusterID, Created: true}, nil
	}

	unlock := e.locks.Lock(best.ClusterID)
	defer unlock()

	// The store re-reads the centroid inside its transaction; fold the vector
	// into whatever is current, not into the snapshot used for matching.
	err = e.store.AddMember(ctx, best.ClusterID, problemID, func(current []float32, size int) ([]float32, error) {
		if len(current) != len(vec) {
			return nil, fmt.Errorf("%w: cluster %d has %d dimensions, vector has %d",
				ErrDimensionMismatch, best.ClusterID, len(current), len(vec))
		}
		return similarity.FoldCentroid(current, size, vec)
	})
	if err != nil {
		if errors.Is(err, ErrDimensionMismatch) {
			log.Error().Err(err).Int64("problemId", problemID).Msg("Centroid dimension mismatch")
		}
		return Result{}, fmt.Errorf("add to cluster %d: %w", best.ClusterID, err)
	}

	log.Debug().
		Int64("problemId", problemID).
		Int64("clusterId", best.ClusterID).
		Float64("similarity", bestSim).
		Msg("Joined cluster")
	return Result{ClusterID: best.ClusterID, Similarity: bestSim}, nil
}

// bestMatch returns the centroid with the strictly greatest similarity at or
// above threshold. Centroids arrive in ascending id order, so among equal
// similarities the oldest cluster wins. This tie-break is a convention, not a
// property of the data.
func bestMatch(centroids []vector.Centroid, vec []float32, threshold float64) (*vector.Centroid, float64, error) {
	var best *vector.Centroid
	bestSim := math.Inf(-1)

	for i := range centroids {
		c := &centroids[i]
		if len(c.Vector) != len(vec) {
			return nil, 0, fmt.Errorf("%w: cluster %d has %d dimensions, vector has %d",
				ErrDimensionMismatch, c.ClusterID, len(c.Vector), len(vec))
		}
		sim := similarity.Cosine(vec, c.Vector)
		if sim >= threshold && sim > bestSim {
			best, bestSim = c, sim
		}
	}

	if best == nil {
		return nil, 0, nil
	}
	return best, bestSim, nil
}
