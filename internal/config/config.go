// Package config provides configuration management for ideahunter.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultStatusPort          = 37800
	DefaultDBDriver            = "sqlite"
	DefaultLLMProvider         = ProviderOpenAI
	DefaultModel               = "gpt-4o-mini"
	DefaultAnthropicModel      = "claude-haiku-4-5"
	DefaultEmbeddingModel      = "text-embedding-3-small"
	DefaultEmbeddingDim        = 384
	DefaultSimilarityThreshold = 0.85
	DefaultLLMTimeout          = 60 * time.Second
	DefaultLLMMaxRetries       = 5
	DefaultLLMMaxBackoff       = 60 * time.Second
	DefaultTokenBudget         = 750
	DefaultFetchLimit          = 100
	DefaultMinUpvotes          = 5
	DefaultAskHNURL            = "https://hn.algolia.com/api/v1/search_by_date"
	DefaultRedditUserAgent     = "ideahunter/1.0"
	DefaultSchedule            = "@every 6h"
	DefaultMaxConns            = 4
)

// LLM providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// DefaultSubreddits are the communities polled when none are configured.
var DefaultSubreddits = []string{"SaaS", "startups", "Entrepreneur", "smallbusiness", "indiehackers"}

// Config holds the ideahunter configuration.
type Config struct {
	DBDriver            string        `yaml:"db_driver"`
	DBPath              string        `yaml:"db_path"`
	DBDSN               string        `yaml:"db_dsn"`
	LLMProvider         string        `yaml:"llm_provider"`
	Model               string        `yaml:"model"`
	EmbeddingModel      string        `yaml:"embedding_model"`
	RedditUserAgent     string        `yaml:"reddit_user_agent"`
	AskHNURL            string        `yaml:"askhn_url"`
	RedisAddr           string        `yaml:"redis_addr"`
	Schedule            string        `yaml:"schedule"`
	OpenAIAPIKey        string        `yaml:"-"`
	AnthropicAPIKey     string        `yaml:"-"`
	RedditClientID      string        `yaml:"-"`
	RedditSecret        string        `yaml:"-"`
	Subreddits          []string      `yaml:"subreddits"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	LLMTimeout          time.Duration `yaml:"llm_timeout"`
	LLMMaxBackoff       time.Duration `yaml:"llm_max_backoff"`
	MaxConns            int           `yaml:"db_max_conns"`
	EmbeddingDim        int           `yaml:"embedding_dim"`
	LLMMaxRetries       int           `yaml:"llm_max_retries"`
	TokenBudget         int           `yaml:"token_budget"`
	RedditFetchLimit    int           `yaml:"reddit_fetch_limit"`
	AskHNFetchLimit     int           `yaml:"askhn_fetch_limit"`
	MinUpvotes          int           `yaml:"min_upvotes"`
	StatusPort          int           `yaml:"status_port"`
	DisableReddit       bool          `yaml:"disable_reddit"`
	DisableAskHN        bool          `yaml:"disable_askhn"`
}

var (
	globalConfig *Config
	configMu     sync.RWMutex

	dataDirOverride string
	dataDirMu       sync.RWMutex
)

// SetDataDir overrides the data directory for this process.
func SetDataDir(dir string) {
	dataDirMu.Lock()
	dataDirOverride = dir
	dataDirMu.Unlock()
}

// DataDir returns the data directory path.
// Precedence: SetDataDir, IDEAHUNTER_DATA_DIR, ~/.ideahunter.
func DataDir() string {
	dataDirMu.RLock()
	override := dataDirOverride
	dataDirMu.RUnlock()
	if override != "" {
		return override
	}
	if dir := os.Getenv("IDEAHUNTER_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".ideahunter")
}

// DBPath returns the default SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), "ideahunter.db")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.yaml")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// EnsureSettings writes a settings file with defaults if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encoding default settings: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureAll creates the data directory and the settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DBDriver:            DefaultDBDriver,
		MaxConns:            DefaultMaxConns,
		LLMProvider:         DefaultLLMProvider,
		Model:               DefaultModel,
		LLMTimeout:          DefaultLLMTimeout,
		LLMMaxRetries:       DefaultLLMMaxRetries,
		LLMMaxBackoff:       DefaultLLMMaxBackoff,
		TokenBudget:         DefaultTokenBudget,
		EmbeddingModel:      DefaultEmbeddingModel,
		EmbeddingDim:        DefaultEmbeddingDim,
		SimilarityThreshold: DefaultSimilarityThreshold,
		Subreddits:          append([]string(nil), DefaultSubreddits...),
		RedditUserAgent:     DefaultRedditUserAgent,
		RedditFetchLimit:    DefaultFetchLimit,
		AskHNURL:            DefaultAskHNURL,
		AskHNFetchLimit:     DefaultFetchLimit,
		MinUpvotes:          DefaultMinUpvotes,
		Schedule:            DefaultSchedule,
		StatusPort:          DefaultStatusPort,
	}
}

// Load reads configuration from the default settings file.
func Load() (*Config, error) {
	return LoadFrom(SettingsPath())
}

// LoadFrom reads configuration from path, then applies .env and the
// environment. A missing file yields defaults; an unreadable or invalid file
// is logged and ignored.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Invalid settings file, using defaults")
		} else {
			cfg.merge(&fileCfg)
			cfg.applyExplicitZeros(data)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		log.Warn().Err(err).Str("path", path).Msg("Failed to read settings file, using defaults")
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to load .env")
	}
	cfg.applyEnv()

	if cfg.DBPath == "" && cfg.DBDriver == DefaultDBDriver {
		cfg.DBPath = DBPath()
	}
	return cfg, nil
}

// zeroable lists settings where an explicit 0 is meaningful and must not be
// mistaken for an absent key.
type zeroable struct {
	MinUpvotes *int `yaml:"min_upvotes"`
}

// applyExplicitZeros applies the zeroable settings present in data.
func (c *Config) applyExplicitZeros(data []byte) {
	var z zeroable
	if err := yaml.Unmarshal(data, &z); err != nil {
		return
	}
	if z.MinUpvotes != nil && *z.MinUpvotes >= 0 {
		c.MinUpvotes = *z.MinUpvotes
	}
}

// merge copies the non-zero values of other into c.
func (c *Config) merge(other *Config) {
	setString(&c.DBDriver, other.DBDriver)
	setString(&c.DBPath, other.DBPath)
	setString(&c.DBDSN, other.DBDSN)
	setString(&c.LLMProvider, other.LLMProvider)
	setString(&c.Model, other.Model)
	setString(&c.EmbeddingModel, other.EmbeddingModel)
	setString(&c.RedditUserAgent, other.RedditUserAgent)
	setString(&c.AskHNURL, other.AskHNURL)
	setString(&c.RedisAddr, other.RedisAddr)
	setString(&c.Schedule, other.Schedule)
	setInt(&c.MaxConns, other.MaxConns)
	setInt(&c.EmbeddingDim, other.EmbeddingDim)
	setInt(&c.LLMMaxRetries, other.LLMMaxRetries)
	setInt(&c.TokenBudget, other.TokenBudget)
	setInt(&c.RedditFetchLimit, other.RedditFetchLimit)
	setInt(&c.AskHNFetchLimit, other.AskHNFetchLimit)
	setInt(&c.MinUpvotes, other.MinUpvotes)
	setInt(&c.StatusPort, other.StatusPort)
	if other.SimilarityThreshold > 0 {
		c.SimilarityThreshold = other.SimilarityThreshold
	}
	if other.LLMTimeout > 0 {
		c.LLMTimeout = other.LLMTimeout
	}
	if other.LLMMaxBackoff > 0 {
		c.LLMMaxBackoff = other.LLMMaxBackoff
	}
	if len(other.Subreddits) > 0 {
		c.Subreddits = other.Subreddits
	}
	c.DisableReddit = c.DisableReddit || other.DisableReddit
	c.DisableAskHN = c.DisableAskHN || other.DisableAskHN
}

func (c *Config) applyEnv() {
	setString(&c.DBDriver, os.Getenv("IDEAHUNTER_DB_DRIVER"))
	setString(&c.DBPath, os.Getenv("IDEAHUNTER_DB_PATH"))
	setString(&c.DBDSN, os.Getenv("IDEAHUNTER_DB_DSN"))
	setString(&c.LLMProvider, os.Getenv("IDEAHUNTER_LLM_PROVIDER"))
	setString(&c.Model, os.Getenv("IDEAHUNTER_MODEL"))
	setString(&c.EmbeddingModel, os.Getenv("IDEAHUNTER_EMBEDDING_MODEL"))
	setString(&c.AskHNURL, os.Getenv("IDEAHUNTER_ASKHN_URL"))
	setString(&c.RedisAddr, os.Getenv("IDEAHUNTER_REDIS_ADDR"))
	setString(&c.Schedule, os.Getenv("IDEAHUNTER_SCHEDULE"))
	setString(&c.OpenAIAPIKey, os.Getenv("OPENAI_API_KEY"))
	setString(&c.AnthropicAPIKey, os.Getenv("ANTHROPIC_API_KEY"))
	setString(&c.RedditClientID, os.Getenv("REDDIT_CLIENT_ID"))
	setString(&c.RedditSecret, os.Getenv("REDDIT_SECRET"))
	setString(&c.RedditUserAgent, os.Getenv("REDDIT_USER_AGENT"))

	if subs := splitTrim(os.Getenv("REDDIT_SUBREDDITS")); len(subs) > 0 {
		c.Subreddits = subs
	}
	if v, err := strconv.ParseFloat(os.Getenv("SIMILARITY_THRESHOLD"), 64); err == nil && v > 0 && v <= 1 {
		c.SimilarityThreshold = v
	}
	if v, err := strconv.Atoi(os.Getenv("MIN_UPVOTES")); err == nil && v >= 0 {
		c.MinUpvotes = v
	}
	if v, err := strconv.Atoi(os.Getenv("IDEAHUNTER_STATUS_PORT")); err == nil && v > 0 {
		c.StatusPort = v
	}
	if v, err := strconv.Atoi(os.Getenv("IDEAHUNTER_EMBEDDING_DIM")); err == nil && v > 0 {
		c.EmbeddingDim = v
	}
	if v, err := time.ParseDuration(os.Getenv("IDEAHUNTER_LLM_TIMEOUT")); err == nil && v > 0 {
		c.LLMTimeout = v
	}
}

// Validate reports configuration errors that make a run impossible.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported db_driver %q", c.DBDriver)
	}
	if c.DBDriver == "postgres" && c.DBDSN == "" {
		return errors.New("db_dsn is required for postgres")
	}
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unsupported llm_provider %q", c.LLMProvider)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold %v out of range (0,1]", c.SimilarityThreshold)
	}
	return nil
}

// LLMModel returns the configured model, or the provider default when the
// model was left at the OpenAI default for the Anthropic provider.
func (c *Config) LLMModel() string {
	if c.LLMProvider == ProviderAnthropic && (c.Model == "" || c.Model == DefaultModel) {
		return DefaultAnthropicModel
	}
	return c.Model
}

// Get returns the process-wide configuration, loading it on first use.
func Get() *Config {
	configMu.RLock()
	if globalConfig != nil {
		defer configMu.RUnlock()
		return globalConfig
	}
	configMu.RUnlock()

	configMu.Lock()
	defer configMu.Unlock()
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		globalConfig = cfg
	}
	return globalConfig
}

// Set replaces the process-wide configuration.
func Set(cfg *Config) {
	configMu.Lock()
	globalConfig = cfg
	configMu.Unlock()
}

// GetStatusPort returns the status server port, honouring
// IDEAHUNTER_STATUS_PORT.
func GetStatusPort() int {
	if v, err := strconv.Atoi(os.Getenv("IDEAHUNTER_STATUS_PORT")); err == nil && v > 0 {
		return v
	}
	return Get().StatusPort
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}
