// Package config handles loading and validating service configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix marks environment variables that override config values.
// The rest of the name is the koanf path with dots written as
// underscores, so SGENIUS_GENERATION_TEXT_TOP_K sets generation.text.top_k.
// Underscores are ambiguous on their own; names are resolved against the
// keys Config actually declares, and a prefixed variable that matches none
// of them fails Load instead of being dropped silently.
const envPrefix = "SGENIUS_"

// Backends the model adapter can be built from.
const (
	BackendREST  = "rest"
	BackendGenAI = "genai"
)

// Chat response formats.
const (
	ChatFormatText = "text"
	ChatFormatJSON = "json"
)

// Config is the top-level configuration for the sgenius service.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Model      ModelConfig      `koanf:"model"`
	Generation GenerationConfig `koanf:"generation"`
	Chat       ChatConfig       `koanf:"chat"`
	Log        LogConfig        `koanf:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes"`

	// AllowedOrigins is the CORS allow-list for the browser frontend.
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// ModelConfig describes the remote generation service.
type ModelConfig struct {
	Backend string        `koanf:"backend"` // "rest" or "genai"
	Name    string        `koanf:"name"`    // e.g. "gemini-2.0-flash"
	BaseURL string        `koanf:"base_url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"` // bound on a single outbound call
}

// GenerationConfig holds sampling parameters per response format.
type GenerationConfig struct {
	Text SamplingConfig `koanf:"text"`
	JSON SamplingConfig `koanf:"json"`
}

// SamplingConfig is a set of generation parameters. Zero values mean
// "let the remote service pick".
type SamplingConfig struct {
	Temperature     float32 `koanf:"temperature"`
	TopP            float32 `koanf:"top_p"`
	TopK            int32   `koanf:"top_k"`
	MaxOutputTokens int32   `koanf:"max_output_tokens"`
}

// ChatConfig controls the /chat endpoint.
type ChatConfig struct {
	Format string `koanf:"format"` // "text" or "json"
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    64 * 1024,
			AllowedOrigins: []string{
				"https://sgenius.netlify.app",
				"http://127.0.0.1:5500",
				"http://localhost:5500",
			},
		},
		Model: ModelConfig{
			Backend: BackendREST,
			Name:    "gemini-2.0-flash",
			BaseURL: "https://generativelanguage.googleapis.com/v1beta",
			APIKey:  "${API_KEY}",
			Timeout: 30 * time.Second,
		},
		Generation: GenerationConfig{
			Text: SamplingConfig{Temperature: 0.8, TopP: 0.9, TopK: 35, MaxOutputTokens: 4096},
			JSON: SamplingConfig{Temperature: 0.7},
		},
		Chat: ChatConfig{Format: ChatFormatText},
		Log:  LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads configuration from a YAML file, layers environment variable
// overrides on top, and returns a fully populated Config. A missing file
// is not an error: defaults plus environment are enough to run.
func Load(path string) (*Config, error) {
	// Load .env file into the process environment (ignored if not present).
	_ = godotenv.Load()

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("loading config file: %w", err)
			}
		}
	}

	known := envKeys()
	var unknown []string
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key, ok := known[strings.ToLower(strings.TrimPrefix(s, envPrefix))]
		if !ok {
			unknown = append(unknown, s)
			return "" // koanf skips empty keys
		}
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown config environment variables: %s", strings.Join(unknown, ", "))
	}

	// Start from the defaults; koanf only overwrites keys it actually has.
	cfg := Default()
	if k.Exists("server.allowed_origins") {
		// A configured allow-list replaces the default one outright.
		cfg.Server.AllowedOrigins = nil
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Model.APIKey = expandEnv(cfg.Model.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKeys maps every leaf key of Config, written with underscores
// ("generation_text_top_k"), to its koanf path ("generation.text.top_k").
func envKeys() map[string]string {
	keys := make(map[string]string)
	var walk func(t reflect.Type, path []string)
	walk = func(t reflect.Type, path []string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			tag := f.Tag.Get("koanf")
			if tag == "" {
				continue
			}
			p := append(path[:len(path):len(path)], tag)
			if f.Type.Kind() == reflect.Struct {
				walk(f.Type, p)
				continue
			}
			keys[strings.Join(p, "_")] = strings.Join(p, ".")
		}
	}
	walk(reflect.TypeOf(Config{}), nil)
	return keys
}

// expandEnv resolves a ${VAR_NAME} placeholder. Anything else is
// returned unchanged.
func expandEnv(v string) string {
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		return os.Getenv(v[2 : len(v)-1])
	}
	return v
}

// Validate rejects settings the service cannot start with. An empty API
// key is deliberately allowed: it is reported per request instead.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be positive, got %d", c.Server.Port))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes))
	}
	if c.Model.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("model.timeout must be positive, got %s", c.Model.Timeout))
	}
	if c.Model.Name == "" {
		errs = append(errs, errors.New("model.name is required"))
	}
	switch c.Model.Backend {
	case BackendREST:
		if c.Model.BaseURL == "" {
			errs = append(errs, errors.New("model.base_url is required for the rest backend"))
		}
	case BackendGenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown model.backend %q", c.Model.Backend))
	}
	switch c.Chat.Format {
	case ChatFormatText, ChatFormatJSON:
	default:
		errs = append(errs, fmt.Errorf("unknown chat.format %q", c.Chat.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
