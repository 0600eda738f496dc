package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/ideahunter/internal/sanitize"
	"github.com/thebtf/ideahunter/pkg/models"
)

// ErrExtractionFailed is returned when every attempt failed or a
// non-retryable error ended the attempts early.
var ErrExtractionFailed = errors.New("problem extraction failed")

const systemPrompt = `You are a startup problem analyst. Given a post from an online community, extract the core business problem or pain point being described.

Respond ONLY with a valid JSON object. No markdown, no code fences, no extra text.

Schema:
{
  "problem_summary": "One concise sentence describing the problem",
  "target_group": "Who experiences this problem",
  "market_type": "B2B | Consumer | Tech | Hybrid",
  "buyer_type": "Who would pay for a solution",
  "pain_score": <integer 1-10>,
  "monetization_score": <integer 1-10>,
  "complexity_score": <integer 1-10>
}

If the post does not describe a clear problem or pain point, set all scores to 0 and problem_summary to "` + models.NoProblemSummary + `".`

// Defaults for Config fields left zero.
const (
	DefaultTimeout    = 60 * time.Second
	DefaultMaxRetries = 5
	DefaultMaxBackoff = 60 * time.Second
)

// Extractor extracts a structured problem from a post. It returns nil, nil
// when the post describes no clear problem.
type Extractor interface {
	Extract(ctx context.Context, title, body string) (*models.StructuredProblem, error)
}

// Config configures an LLMExtractor.
type Config struct {
	Timeout     time.Duration // per attempt
	MaxRetries  int           // total attempts
	MaxBackoff  time.Duration
	TokenBudget int // body tokens sent to the model
}

// LLMExtractor implements Extractor on top of a Completer with per-attempt
// timeouts and bounded exponential backoff.
type LLMExtractor struct {
	completer Completer
	sleep     func(ctx context.Context, d time.Duration) error
	cfg       Config
}

// NewLLMExtractor creates an extractor.
func NewLLMExtractor(completer Completer, cfg Config) *LLMExtractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = DefaultTokenBudget
	}
	return &LLMExtractor{
		completer: completer,
		cfg:       cfg,
		sleep:     sleepContext,
	}
}

// Model returns the underlying model name.
func (e *LLMExtractor) Model() string {
	return e.completer.Model()
}

// Extract implements Extractor.
func (e *LLMExtractor) Extract(ctx context.Context, title, body string) (*models.StructuredProblem, error) {
	user := e.userContent(title, body)

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		problem, err := e.attempt(ctx, user)
		if err == nil {
			if !problem.HasProblem() {
				return nil, nil
			}
			return problem, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		switch {
		case errors.Is(err, ErrMalformed):
			// Malformed output gets another attempt straight away.
			log.Warn().Err(err).Int("attempt", attempt).Msg("LLM returned invalid JSON")
			continue
		case !isRetryable(err):
			log.Error().Err(err).Int("attempt", attempt).Msg("LLM request failed, not retrying")
			return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
		}

		if attempt == e.cfg.MaxRetries {
			break
		}
		wait := e.backoff(attempt)
		log.Warn().Err(err).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("LLM request failed, retrying")
		if err := e.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	log.Error().Err(lastErr).Int("attempts", e.cfg.MaxRetries).Msg("LLM extraction failed")
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrExtractionFailed, e.cfg.MaxRetries, lastErr)
}

func (e *LLMExtractor) attempt(ctx context.Context, user string) (*models.StructuredProblem, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	raw, err := e.completer.Complete(attemptCtx, systemPrompt, user)
	if err != nil {
		return nil, err
	}
	return ParseProblem(raw)
}

// backoff returns min(2^attempt seconds, MaxBackoff).
func (e *LLMExtractor) backoff(attempt int) time.Duration {
	if attempt >= 30 {
		return e.cfg.MaxBackoff
	}
	return min(time.Duration(1<<attempt)*time.Second, e.cfg.MaxBackoff)
}

func (e *LLMExtractor) userContent(title, body string) string {
	body = TruncateTokens(sanitize.Clean(body), e.cfg.TokenBudget)
	title = sanitize.Clean(title)
	if body == "" {
		return "Title: " + title
	}
	return "Title: " + title + "\n\nBody: " + body
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
