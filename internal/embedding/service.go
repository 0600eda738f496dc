// Package embedding turns problem text into unit-length vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/ideahunter/pkg/similarity"
)

// DefaultDimension is the vector length used for clustering.
const DefaultDimension = 384

// ErrEmptyText is returned when asked to embed blank text.
var ErrEmptyText = errors.New("cannot embed empty text")

// ErrInvalidVector is returned when the backend yields a zero or non-finite
// vector.
var ErrInvalidVector = errors.New("backend returned an unusable vector")

// Embedder produces unit-normalized vectors of a fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Model() string
}

// Backend is a raw embedding provider.
type Backend interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// BackendFactory builds a Backend on first use.
type BackendFactory func() (Backend, error)

// Service is the process-wide Embedder. The backend is created lazily on the
// first Embed call and reused for the life of the process.
type Service struct {
	backend Backend
	initErr error
	factory BackendFactory
	model   string
	dim     int
	once    sync.Once
}

// NewService creates a lazily initialized embedding service.
func NewService(factory BackendFactory, model string, dim int) *Service {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Service{factory: factory, model: model, dim: dim}
}

// Dimension returns the vector length produced by Embed.
func (s *Service) Dimension() int {
	return s.dim
}

// Model returns the configured model name.
func (s *Service) Model() string {
	return s.model
}

func (s *Service) load() (Backend, error) {
	s.once.Do(func() {
		start := time.Now()
		log.Info().Str("model", s.model).Msg("Loading embedding backend")
		s.backend, s.initErr = s.factory()
		if s.initErr != nil {
			log.Error().Err(s.initErr).Str("model", s.model).Msg("Embedding backend failed to load")
			return
		}
		log.Info().Str("model", s.model).Dur("took", time.Since(start)).Msg("Embedding backend loaded")
	})
	return s.backend, s.initErr
}

// Embed returns the unit-normalized embedding of text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds several texts in one backend call.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for i, t := range texts {
		if t == "" {
			return nil, fmt.Errorf("text %d: %w", i, ErrEmptyText)
		}
	}

	backend, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("load embedding backend: %w", err)
	}

	raw, err := backend.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(raw) != len(texts) {
		return nil, fmt.Errorf("embed: got %d vectors for %d texts", len(raw), len(texts))
	}

	out := make([][]float32, len(raw))
	for i, v := range raw {
		if len(v) != s.dim {
			return nil, fmt.Errorf("embed: vector %d has %d dimensions, want %d", i, len(v), s.dim)
		}
		if !similarity.Usable(v) {
			return nil, fmt.Errorf("embed: vector %d: %w", i, ErrInvalidVector)
		}
		out[i] = similarity.Normalize(v)
	}
	return out, nil
}
