package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigSuite is a test suite for config operations.
type ConfigSuite struct {
	suite.Suite
	tempDir string
}

func (s *ConfigSuite) SetupTest() {
	s.tempDir = s.T().TempDir()
	s.T().Setenv("IDEAHUNTER_DATA_DIR", s.tempDir)
	for _, key := range []string{
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "REDDIT_CLIENT_ID", "REDDIT_SECRET",
		"REDDIT_SUBREDDITS", "SIMILARITY_THRESHOLD", "MIN_UPVOTES", "IDEAHUNTER_STATUS_PORT",
		"IDEAHUNTER_DB_DRIVER", "IDEAHUNTER_MODEL", "IDEAHUNTER_LLM_TIMEOUT",
	} {
		s.T().Setenv(key, "")
	}
	SetDataDir("")
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

// TestDefault tests default configuration values.
func (s *ConfigSuite) TestDefault() {
	cfg := Default()

	s.Equal(DefaultStatusPort, cfg.StatusPort)
	s.Equal(DefaultModel, cfg.Model)
	s.Equal("sqlite", cfg.DBDriver)
	s.Equal(4, cfg.MaxConns)
	s.Equal(0.85, cfg.SimilarityThreshold)
	s.Equal(384, cfg.EmbeddingDim)
	s.Equal(60*time.Second, cfg.LLMTimeout)
	s.Equal(5, cfg.LLMMaxRetries)
	s.Equal(60*time.Second, cfg.LLMMaxBackoff)
	s.Equal(750, cfg.TokenBudget)
	s.Equal(100, cfg.RedditFetchLimit)
	s.Equal(100, cfg.AskHNFetchLimit)
	s.Equal(5, cfg.MinUpvotes)
	s.Equal(DefaultSubreddits, cfg.Subreddits)
	s.NoError(cfg.Validate())
}

func (s *ConfigSuite) TestPaths() {
	s.Equal(s.tempDir, DataDir())
	s.Equal(filepath.Join(s.tempDir, "ideahunter.db"), DBPath())
	s.Equal(filepath.Join(s.tempDir, "settings.yaml"), SettingsPath())

	override := filepath.Join(s.tempDir, "other")
	SetDataDir(override)
	defer SetDataDir("")
	s.Equal(override, DataDir())
}

// TestEnsureAll tests full initialization.
func (s *ConfigSuite) TestEnsureAll() {
	s.T().Setenv("IDEAHUNTER_DATA_DIR", filepath.Join(s.tempDir, "nested"))
	s.Require().NoError(EnsureAll())

	info, err := os.Stat(DataDir())
	s.Require().NoError(err)
	s.True(info.IsDir())
	_, err = os.Stat(SettingsPath())
	s.NoError(err)

	// Second call keeps the existing file.
	s.Require().NoError(os.WriteFile(SettingsPath(), []byte("model: custom\n"), 0600))
	s.Require().NoError(EnsureSettings())
	data, err := os.ReadFile(SettingsPath())
	s.Require().NoError(err)
	s.Equal("model: custom\n", string(data))
}

func (s *ConfigSuite) TestEnsureSettings_RoundTrips() {
	s.Require().NoError(EnsureAll())

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal(DefaultLLMTimeout, cfg.LLMTimeout)
	s.Equal(DefaultSubreddits, cfg.Subreddits)
	s.Equal(DBPath(), cfg.DBPath)
}

// TestLoad_TableDriven tests configuration loading with various scenarios.
func (s *ConfigSuite) TestLoad_TableDriven() {
	tests := []struct {
		name              string
		settingsYAML      string
		expectedModel     string
		expectedPort      int
		expectedThreshold float64
	}{
		{
			name:              "no settings file",
			expectedPort:      DefaultStatusPort,
			expectedModel:     DefaultModel,
			expectedThreshold: DefaultSimilarityThreshold,
		},
		{
			name:              "custom port",
			settingsYAML:      "status_port: 38888\n",
			expectedPort:      38888,
			expectedModel:     DefaultModel,
			expectedThreshold: DefaultSimilarityThreshold,
		},
		{
			name:              "custom model and threshold",
			settingsYAML:      "model: gpt-4o\nsimilarity_threshold: 0.9\n",
			expectedPort:      DefaultStatusPort,
			expectedModel:     "gpt-4o",
			expectedThreshold: 0.9,
		},
		{
			name:              "invalid YAML returns defaults",
			settingsYAML:      "model: [unclosed\n",
			expectedPort:      DefaultStatusPort,
			expectedModel:     DefaultModel,
			expectedThreshold: DefaultSimilarityThreshold,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			dir := s.T().TempDir()
			path := filepath.Join(dir, "settings.yaml")
			if tt.settingsYAML != "" {
				s.Require().NoError(os.WriteFile(path, []byte(tt.settingsYAML), 0600))
			}

			cfg, err := LoadFrom(path)
			s.NoError(err)
			s.Require().NotNil(cfg)
			s.Equal(tt.expectedPort, cfg.StatusPort)
			s.Equal(tt.expectedModel, cfg.Model)
			s.Equal(tt.expectedThreshold, cfg.SimilarityThreshold)
		})
	}
}

func (s *ConfigSuite) TestLoad_FileSettings() {
	path := filepath.Join(s.tempDir, "settings.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(`
db_driver: postgres
db_dsn: postgres://localhost/ideahunter
llm_timeout: 30s
subreddits: [SaaS, webdev]
redis_addr: localhost:6379
schedule: "0 */2 * * *"
disable_askhn: true
`), 0600))

	cfg, err := LoadFrom(path)
	s.Require().NoError(err)
	s.Equal("postgres", cfg.DBDriver)
	s.Equal("postgres://localhost/ideahunter", cfg.DBDSN)
	s.Empty(cfg.DBPath)
	s.Equal(30*time.Second, cfg.LLMTimeout)
	s.Equal([]string{"SaaS", "webdev"}, cfg.Subreddits)
	s.Equal("localhost:6379", cfg.RedisAddr)
	s.Equal("0 */2 * * *", cfg.Schedule)
	s.True(cfg.DisableAskHN)
	s.False(cfg.DisableReddit)
	s.NoError(cfg.Validate())
}

func (s *ConfigSuite) TestLoad_EnvOverrides() {
	path := filepath.Join(s.tempDir, "settings.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("min_upvotes: 20\n"), 0600))

	s.T().Setenv("OPENAI_API_KEY", "sk-test")
	s.T().Setenv("REDDIT_CLIENT_ID", "client")
	s.T().Setenv("REDDIT_SECRET", "secret")
	s.T().Setenv("REDDIT_SUBREDDITS", " SaaS , startups ,")
	s.T().Setenv("SIMILARITY_THRESHOLD", "0.8")
	s.T().Setenv("MIN_UPVOTES", "0")
	s.T().Setenv("IDEAHUNTER_LLM_TIMEOUT", "15s")

	cfg, err := LoadFrom(path)
	s.Require().NoError(err)
	s.Equal("sk-test", cfg.OpenAIAPIKey)
	s.Equal("client", cfg.RedditClientID)
	s.Equal("secret", cfg.RedditSecret)
	s.Equal([]string{"SaaS", "startups"}, cfg.Subreddits)
	s.Equal(0.8, cfg.SimilarityThreshold)
	s.Equal(0, cfg.MinUpvotes)
	s.Equal(15*time.Second, cfg.LLMTimeout)
}

func (s *ConfigSuite) TestLoad_MinUpvotesZero() {
	tests := []struct {
		name     string
		settings string
		env      string
		want     int
	}{
		{"file zero disables filter", "min_upvotes: 0\n", "", 0},
		{"file negative ignored", "min_upvotes: -3\n", "", DefaultMinUpvotes},
		{"file absent keeps default", "model: gpt-4o\n", "", DefaultMinUpvotes},
		{"env zero disables filter", "min_upvotes: 20\n", "0", 0},
		{"env overrides file zero", "min_upvotes: 0\n", "7", 7},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.T().Setenv("MIN_UPVOTES", tt.env)
			path := filepath.Join(s.T().TempDir(), "settings.yaml")
			s.Require().NoError(os.WriteFile(path, []byte(tt.settings), 0600))

			cfg, err := LoadFrom(path)
			s.Require().NoError(err)
			s.Equal(tt.want, cfg.MinUpvotes)
		})
	}
}

func (s *ConfigSuite) TestLoad_InvalidEnvIgnored() {
	s.T().Setenv("SIMILARITY_THRESHOLD", "1.5")
	s.T().Setenv("MIN_UPVOTES", "many")

	cfg, err := LoadFrom(filepath.Join(s.tempDir, "missing.yaml"))
	s.Require().NoError(err)
	s.Equal(DefaultSimilarityThreshold, cfg.SimilarityThreshold)
	s.Equal(DefaultMinUpvotes, cfg.MinUpvotes)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, true},
		{"postgres without dsn", func(c *Config) { c.DBDriver = "postgres" }, true},
		{"unknown provider", func(c *Config) { c.LLMProvider = "local" }, true},
		{"threshold zero", func(c *Config) { c.SimilarityThreshold = 0 }, true},
		{"threshold above one", func(c *Config) { c.SimilarityThreshold = 1.2 }, true},
		{"anthropic", func(c *Config) { c.LLMProvider = "anthropic" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLLMModel(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultModel, cfg.LLMModel())

	cfg.LLMProvider = "anthropic"
	assert.Equal(t, DefaultAnthropicModel, cfg.LLMModel())

	cfg.Model = "claude-sonnet-4-5"
	assert.Equal(t, "claude-sonnet-4-5", cfg.LLMModel())
}

// TestSplitTrim tests the splitTrim helper function.
func TestSplitTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty string", "", []string{}},
		{"single value", "SaaS", []string{"SaaS"}},
		{"multiple values", "SaaS,startups,Entrepreneur", []string{"SaaS", "startups", "Entrepreneur"}},
		{"values with spaces", " SaaS , startups ", []string{"SaaS", "startups"}},
		{"empty values filtered", "SaaS,,startups,,", []string{"SaaS", "startups"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, splitTrim(tt.input))
		})
	}
}

// TestGet tests the global config getter.
func TestGet(t *testing.T) {
	t.Setenv("IDEAHUNTER_DATA_DIR", t.TempDir())
	Set(nil)
	t.Cleanup(func() { Set(nil) })

	cfg := Get()
	require.NotNil(t, cfg)
	assert.Same(t, cfg, Get())
	assert.Greater(t, cfg.StatusPort, 0)

	custom := Default()
	custom.StatusPort = 40000
	Set(custom)
	assert.Equal(t, 40000, Get().StatusPort)
}

// TestGetStatusPort_WithEnv tests GetStatusPort with environment variable.
func TestGetStatusPort_WithEnv(t *testing.T) {
	t.Setenv("IDEAHUNTER_DATA_DIR", t.TempDir())
	Set(Default())
	t.Cleanup(func() { Set(nil) })

	t.Setenv("IDEAHUNTER_STATUS_PORT", "45678")
	assert.Equal(t, 45678, GetStatusPort())

	t.Setenv("IDEAHUNTER_STATUS_PORT", "not-a-number")
	assert.Equal(t, DefaultStatusPort, GetStatusPort())

	t.Setenv("IDEAHUNTER_STATUS_PORT", "0")
	assert.Equal(t, DefaultStatusPort, GetStatusPort())
}
