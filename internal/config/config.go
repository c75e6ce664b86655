package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// PlantUMLConfig configures the PlantUML backend.
type PlantUMLConfig struct {
	ServerURL  string        `yaml:"server_url"`
	Format     string        `yaml:"format"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	// RateLimit caps outbound render fetches per second; 0 disables the cap.
	RateLimit float64 `yaml:"rate_limit"`
	// Verify fetches every render before returning its URL so syntax errors
	// surface as render errors instead of an error image.
	Verify bool `yaml:"verify"`
}

// MermaidConfig configures the Mermaid backend.
type MermaidConfig struct {
	Theme   string `yaml:"theme"`
	InkURL  string `yaml:"ink_url"`
	LiveURL string `yaml:"live_url"`
}

// D2Config configures the D2 backend and its headless browser.
type D2Config struct {
	PlaygroundURL string         `yaml:"playground_url"`
	RenderURL     string         `yaml:"render_url"`
	BrowserPath   string         `yaml:"browser_path"`
	Headless      bool           `yaml:"headless"`
	Timeout       time.Duration  `yaml:"timeout"`
	MaxSessions   int            `yaml:"max_sessions"`
	Compiler      string         `yaml:"compiler"`
	Themes        map[string]int `yaml:"themes"`
}

// CacheConfig configures the optional compiled-script cache.
type CacheConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Enabled     bool    `yaml:"enabled"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Config holds the application configuration.
type Config struct {
	ListenPort      int            `yaml:"listen_port"`
	MetricsPort     int            `yaml:"metrics_port"`
	LogLevel        string         `yaml:"log_level"`
	LogFormat       string         `yaml:"log_format"`
	ShutdownTimeout time.Duration  `yaml:"shutdown_timeout"`
	PlantUML        PlantUMLConfig `yaml:"plantuml"`
	Mermaid         MermaidConfig  `yaml:"mermaid"`
	D2              D2Config       `yaml:"d2"`
	Cache           CacheConfig    `yaml:"cache"`
	Tracing         TracingConfig  `yaml:"tracing"`
}

const (
	CompilerBrowser = "browser"
	CompilerLocal   = "local"
)

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		ListenPort:      8080,
		MetricsPort:     9090,
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: 30 * time.Second,
		PlantUML: PlantUMLConfig{
			ServerURL:  "https://www.plantuml.com/plantuml",
			Format:     "png",
			Timeout:    15 * time.Second,
			MaxRetries: 2,
		},
		Mermaid: MermaidConfig{
			Theme:   "dark",
			InkURL:  "https://mermaid.ink",
			LiveURL: "https://mermaid.live",
		},
		D2: D2Config{
			PlaygroundURL: "https://play.d2lang.com",
			RenderURL:     "https://api.d2lang.com/render/svg",
			Headless:      true,
			Timeout:       45 * time.Second,
			MaxSessions:   4,
			Compiler:      CompilerBrowser,
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Tracing: TracingConfig{
			Endpoint:    "localhost:4318",
			SampleRatio: 1,
		},
	}
}

// Load loads the configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		// A missing file means env vars and defaults only
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		err = yaml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	}

	if err := applyEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func applyEnv(config *Config) error {
	strs := map[string]*string{
		"LOG_LEVEL":           &config.LogLevel,
		"LOG_FORMAT":          &config.LogFormat,
		"PLANTUML_SERVER_URL": &config.PlantUML.ServerURL,
		"PLANTUML_FORMAT":     &config.PlantUML.Format,
		"MERMAID_THEME":       &config.Mermaid.Theme,
		"D2_PLAYGROUND_URL":   &config.D2.PlaygroundURL,
		"D2_RENDER_URL":       &config.D2.RenderURL,
		"BROWSER_PATH":        &config.D2.BrowserPath,
		"D2_COMPILER":         &config.D2.Compiler,
		"REDIS_ADDR":          &config.Cache.RedisAddr,
		"OTEL_ENDPOINT":       &config.Tracing.Endpoint,
	}
	for key, dst := range strs {
		if v, exists := os.LookupEnv(key); exists {
			*dst = v
		}
	}

	ints := map[string]*int{
		"LISTEN_PORT":          &config.ListenPort,
		"METRICS_PORT":         &config.MetricsPort,
		"PLANTUML_MAX_RETRIES": &config.PlantUML.MaxRetries,
		"D2_MAX_SESSIONS":      &config.D2.MaxSessions,
	}
	for key, dst := range ints {
		if v, exists := os.LookupEnv(key); exists {
			val, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = val
		}
	}

	durations := map[string]*time.Duration{
		"SHUTDOWN_TIMEOUT": &config.ShutdownTimeout,
		"PLANTUML_TIMEOUT": &config.PlantUML.Timeout,
		"D2_TIMEOUT":       &config.D2.Timeout,
		"CACHE_TTL":        &config.Cache.TTL,
	}
	for key, dst := range durations {
		if v, exists := os.LookupEnv(key); exists {
			val, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = val
		}
	}

	bools := map[string]*bool{
		"D2_HEADLESS":     &config.D2.Headless,
		"PLANTUML_VERIFY": &config.PlantUML.Verify,
		"TRACING_ENABLED": &config.Tracing.Enabled,
	}
	for key, dst := range bools {
		if v, exists := os.LookupEnv(key); exists {
			val, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = val
		}
	}

	floats := map[string]*float64{
		"PLANTUML_RATE_LIMIT":  &config.PlantUML.RateLimit,
		"TRACING_SAMPLE_RATIO": &config.Tracing.SampleRatio,
	}
	for key, dst := range floats {
		if v, exists := os.LookupEnv(key); exists {
			val, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = val
		}
	}

	return nil
}

// Validate rejects configurations the backends cannot run with.
func (c *Config) Validate() error {
	if c.PlantUML.ServerURL == "" {
		return fmt.Errorf("plantuml.server_url is required")
	}
	if c.PlantUML.Timeout <= 0 {
		return fmt.Errorf("plantuml.timeout must be positive")
	}
	if c.PlantUML.MaxRetries < 0 {
		return fmt.Errorf("plantuml.max_retries must not be negative")
	}
	if c.D2.Timeout <= 0 {
		return fmt.Errorf("d2.timeout must be positive")
	}
	if c.D2.MaxSessions <= 0 {
		return fmt.Errorf("d2.max_sessions must be positive")
	}
	switch c.D2.Compiler {
	case CompilerBrowser, CompilerLocal:
	default:
		return fmt.Errorf("d2.compiler must be %q or %q, got %q", CompilerBrowser, CompilerLocal, c.D2.Compiler)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}
