package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/thebtf/ideahunter/internal/clustering"
	"github.com/thebtf/ideahunter/internal/config"
	dbgorm "github.com/thebtf/ideahunter/internal/db/gorm"
	"github.com/thebtf/ideahunter/internal/dedup"
	"github.com/thebtf/ideahunter/internal/embedding"
	"github.com/thebtf/ideahunter/internal/extraction"
	"github.com/thebtf/ideahunter/internal/pipeline"
	"github.com/thebtf/ideahunter/internal/scoring"
	"github.com/thebtf/ideahunter/internal/sources"
	"github.com/thebtf/ideahunter/internal/worker/sse"
)

// app holds the wired components of one process.
type app struct {
	store       *dbgorm.Store
	posts       *dbgorm.PostStore
	problems    *dbgorm.ProblemStore
	runs        *dbgorm.RunStore
	clusters    *dbgorm.ClusterStore
	cache       *dedup.RedisCache
	broadcaster *sse.Broadcaster
	runner      *pipeline.Runner
}

func newApp(ctx context.Context, cfg *config.Config, debug bool) (*app, error) {
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Warn
	}
	store, err := dbgorm.NewStore(dbgorm.Config{
		Driver:   cfg.DBDriver,
		Path:     cfg.DBPath,
		DSN:      cfg.DBDSN,
		MaxConns: cfg.MaxConns,
		LogLevel: logLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &app{
		store:       store,
		posts:       dbgorm.NewPostStore(store),
		problems:    dbgorm.NewProblemStore(store),
		runs:        dbgorm.NewRunStore(store),
		clusters:    dbgorm.NewClusterStore(store),
		broadcaster: sse.NewBroadcaster(),
	}

	var gateOpts []dedup.Option
	if cfg.RedisAddr != "" {
		cache := dedup.NewRedisCache(dedup.NewRedisPool(cfg.RedisAddr), dedup.SeenKey(storeNamespace(cfg)))
		if err := cache.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unavailable, deduplicating against the store only")
			_ = cache.Close()
		} else {
			a.cache = cache
			gateOpts = append(gateOpts, dedup.WithCache(cache))
		}
	}

	completer, err := newCompleter(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	embedder := embedding.NewService(func() (embedding.Backend, error) {
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for embeddings")
		}
		return embedding.NewOpenAIBackend(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDim), nil
	}, cfg.EmbeddingModel, cfg.EmbeddingDim)

	a.runner = pipeline.NewRunner(pipeline.Deps{
		Gate:     dedup.NewGate(a.posts, gateOpts...),
		Posts:    a.posts,
		Problems: a.problems,
		Runs:     a.runs,
		Extractor: extraction.NewLLMExtractor(completer, extraction.Config{
			Timeout:     cfg.LLMTimeout,
			MaxRetries:  cfg.LLMMaxRetries,
			MaxBackoff:  cfg.LLMMaxBackoff,
			TokenBudget: cfg.TokenBudget,
		}),
		Embedder: embedder,
		Clusterer: clustering.New(a.clusters, clustering.Config{
			Threshold: cfg.SimilarityThreshold,
			Dimension: cfg.EmbeddingDim,
		}),
		Scorer:  scoring.NewEngine(a.problems, a.posts, a.clusters),
		Sources: buildSources(cfg, nil),
	}, pipeline.WithNotifier(a.broadcaster))

	return a, nil
}

// storeNamespace identifies the database a seen-set belongs to.
func storeNamespace(cfg *config.Config) string {
	if cfg.DBDriver == dbgorm.DriverPostgres {
		return cfg.DBDriver + ":" + cfg.DBDSN
	}
	path := cfg.DBPath
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return dbgorm.DriverSQLite + ":" + path
}

func newCompleter(cfg *config.Config) (extraction.Completer, error) {
	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			log.Warn().Msg("ANTHROPIC_API_KEY is not set, extraction will fail")
		}
		return extraction.NewAnthropicCompleter(cfg.AnthropicAPIKey, cfg.LLMModel()), nil
	case config.ProviderOpenAI, "":
		if cfg.OpenAIAPIKey == "" {
			log.Warn().Msg("OPENAI_API_KEY is not set, extraction will fail")
		}
		return extraction.NewOpenAICompleter(cfg.OpenAIAPIKey, cfg.LLMModel()), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
}

// buildSources returns the enabled sources in fixed order: Reddit, then Ask HN.
func buildSources(cfg *config.Config, client *http.Client) []sources.Source {
	var out []sources.Source
	if !cfg.DisableReddit {
		out = append(out, sources.NewReddit(client, sources.RedditConfig{
			ClientID:   cfg.RedditClientID,
			Secret:     cfg.RedditSecret,
			UserAgent:  cfg.RedditUserAgent,
			Subreddits: cfg.Subreddits,
			Limit:      cfg.RedditFetchLimit,
			MinUpvotes: cfg.MinUpvotes,
		}))
	}
	if !cfg.DisableAskHN {
		out = append(out, sources.NewAskHN(client, sources.AskHNConfig{
			URL:        cfg.AskHNURL,
			Limit:      cfg.AskHNFetchLimit,
			MinUpvotes: cfg.MinUpvotes,
		}))
	}
	return out
}

// Close releases the store and the Redis pool.
func (a *app) Close() error {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis pool")
		}
	}
	return a.store.Close()
}
