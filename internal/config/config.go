package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envConfigFile = "CONFIG_FILE"

	DefaultOutputFilename = "generated_mesh"
)

// Config holds the configuration for the API server.
// Precedence: defaults, then the optional YAML file, then environment variables.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Model   ModelConfig   `yaml:"model"`
	Engine  EngineConfig  `yaml:"engine"`
	Storage StorageConfig `yaml:"storage"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	// RateLimitRPS limits pipeline requests per client IP. Zero disables limiting.
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
	// APIKeys guards /api/v1 when non-empty. Entries are plaintext keys,
	// "sha256:<hex>" digests or bcrypt hashes.
	APIKeys []string `yaml:"api_keys"`
	// AuthRateLimitRPS limits requests per client IP ahead of key checks, so
	// bad keys cannot be used to burn bcrypt time. Zero disables it.
	AuthRateLimitRPS   float64 `yaml:"auth_rate_limit_rps"`
	AuthRateLimitBurst int     `yaml:"auth_rate_limit_burst"`
}

type ModelConfig struct {
	// BackendURL is the base URL of an OpenAI-compatible completion server.
	// Empty means no model can be loaded and every pipeline run uses templates.
	BackendURL         string        `yaml:"backend_url"`
	Name               string        `yaml:"name"`
	APIKey             string        `yaml:"api_key"`
	LoadOnStartup      bool          `yaml:"load_on_startup"`
	FallbackEnabled    bool          `yaml:"fallback_enabled"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	SynthesisTimeout   time.Duration `yaml:"synthesis_timeout"`
	MaxConcurrent      int           `yaml:"max_concurrent"`
	DefaultMaxTokens   int           `yaml:"default_max_tokens"`
	MaxTokensLimit     int           `yaml:"max_tokens_limit"`
	DefaultTemperature float64       `yaml:"default_temperature"`
}

type EngineConfig struct {
	Binary           string        `yaml:"binary"`
	Timeout          time.Duration `yaml:"timeout"`
	TerminationGrace time.Duration `yaml:"termination_grace"`
	SurfaceExport    bool          `yaml:"surface_export"`
	OutputTailBytes  int           `yaml:"output_tail_bytes"`
	WorkspaceDir     string        `yaml:"workspace_dir"`
}

type StorageConfig struct {
	DataDir   string `yaml:"data_dir"`
	OutputDir string `yaml:"output_dir"`
	// HistoryRetention drops run history older than this. Zero keeps everything.
	HistoryRetention time.Duration `yaml:"history_retention"`
}

// DBPath returns the location of the run history database.
func (s StorageConfig) DBPath() string {
	return filepath.Join(s.DataDir, "gmshgen.db")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    5 * time.Minute,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitRPS:    0,
			RateLimitBurst:  5,

			AuthRateLimitRPS:   10,
			AuthRateLimitBurst: 20,
		},
		Model: ModelConfig{
			Name:               "gmsh-coder",
			FallbackEnabled:    true,
			RequestTimeout:     2 * time.Minute,
			SynthesisTimeout:   2 * time.Minute,
			MaxConcurrent:      1,
			DefaultMaxTokens:   2000,
			MaxTokensLimit:     8192,
			DefaultTemperature: 0.7,
		},
		Engine: EngineConfig{
			Binary:           "gmsh",
			Timeout:          60 * time.Second,
			TerminationGrace: 2 * time.Second,
			OutputTailBytes:  64 << 10,
		},
		Storage: StorageConfig{
			DataDir:          "./data",
			OutputDir:        "./output",
			HistoryRetention: 30 * 24 * time.Hour,
		},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE (if any) and environment overrides.
func Load() (*Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv(envConfigFile)); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile merges a YAML file over the current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from the environment. getenv is os.Getenv in production.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	e := envReader{getenv: getenv}

	e.str("PORT", &c.Server.Port)
	e.duration("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	e.duration("WRITE_TIMEOUT", &c.Server.WriteTimeout)
	e.list("CORS_ORIGINS", &c.Server.CORSOrigins)
	e.float("RATE_LIMIT_RPS", &c.Server.RateLimitRPS)
	e.int("RATE_LIMIT_BURST", &c.Server.RateLimitBurst)
	e.list("API_KEYS", &c.Server.APIKeys)
	e.float("AUTH_RATE_LIMIT_RPS", &c.Server.AuthRateLimitRPS)
	e.int("AUTH_RATE_LIMIT_BURST", &c.Server.AuthRateLimitBurst)

	e.str("MODEL_BACKEND_URL", &c.Model.BackendURL)
	e.str("MODEL_NAME", &c.Model.Name)
	e.str("MODEL_API_KEY", &c.Model.APIKey)
	e.bool("LOAD_MODEL_ON_STARTUP", &c.Model.LoadOnStartup)
	e.bool("FALLBACK_ENABLED", &c.Model.FallbackEnabled)
	e.duration("MODEL_REQUEST_TIMEOUT", &c.Model.RequestTimeout)
	e.duration("SYNTHESIS_TIMEOUT", &c.Model.SynthesisTimeout)
	e.int("MODEL_MAX_CONCURRENT", &c.Model.MaxConcurrent)
	e.int("DEFAULT_MAX_TOKENS", &c.Model.DefaultMaxTokens)
	e.int("MAX_TOKENS_LIMIT", &c.Model.MaxTokensLimit)
	e.float("DEFAULT_TEMPERATURE", &c.Model.DefaultTemperature)

	e.str("GMSH_BINARY", &c.Engine.Binary)
	e.duration("GMSH_TIMEOUT", &c.Engine.Timeout)
	e.duration("GMSH_TERMINATION_GRACE", &c.Engine.TerminationGrace)
	e.bool("GMSH_SURFACE_EXPORT", &c.Engine.SurfaceExport)
	e.str("WORKSPACE_DIR", &c.Engine.WorkspaceDir)

	e.str("DATA_DIR", &c.Storage.DataDir)
	e.str("OUTPUT_DIR", &c.Storage.OutputDir)
	e.duration("HISTORY_RETENTION", &c.Storage.HistoryRetention)

	return e.err
}

// Validate checks value ranges after all sources are merged.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Engine.Binary == "" {
		return fmt.Errorf("engine binary is required")
	}
	if c.Engine.Timeout <= 0 {
		return fmt.Errorf("engine timeout must be positive, got %s", c.Engine.Timeout)
	}
	if c.Model.MaxConcurrent <= 0 {
		return fmt.Errorf("model max_concurrent must be positive, got %d", c.Model.MaxConcurrent)
	}
	if c.Model.DefaultMaxTokens <= 0 || c.Model.DefaultMaxTokens > c.Model.MaxTokensLimit {
		return fmt.Errorf("default_max_tokens must be in (0, %d], got %d", c.Model.MaxTokensLimit, c.Model.DefaultMaxTokens)
	}
	if c.Model.DefaultTemperature < 0 || c.Model.DefaultTemperature > 2 {
		return fmt.Errorf("default_temperature must be in [0, 2], got %v", c.Model.DefaultTemperature)
	}
	if c.Storage.OutputDir == "" || c.Storage.DataDir == "" {
		return fmt.Errorf("storage data_dir and output_dir are required")
	}
	return nil
}

type envReader struct {
	getenv func(string) string
	err    error
}

func (e *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(e.getenv(key))
	return v, v != ""
}

func (e *envReader) fail(key, value string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (e *envReader) bool(key string, dst *bool) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = parsed
}

func (e *envReader) int(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = parsed
}

func (e *envReader) float(key string, dst *float64) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = parsed
}

// duration accepts Go durations ("90s") or a plain number of seconds.
func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = time.Duration(secs * float64(time.Second))
}
