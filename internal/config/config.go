package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Bind, h.Port)
}

type SynthesisConfig struct {
	Provider         string  `yaml:"provider"` // deepgram, openai, exec, stub
	APIKey           string  `yaml:"api_key"`
	BaseURL          string  `yaml:"base_url"`
	Model            string  `yaml:"model"`
	Voice            string  `yaml:"voice"`
	Encoding         string  `yaml:"encoding"`
	Container        string  `yaml:"container"`
	SampleRate       int     `yaml:"sample_rate"`
	Speed            float64 `yaml:"speed"`
	Command          string  `yaml:"command"`
	RequestTimeoutMS int     `yaml:"request_timeout_ms"`
}

func (s SynthesisConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutMS) * time.Millisecond
}

type PipelineConfig struct {
	MaxChunkChars  int `yaml:"max_chunk_chars"`
	Concurrency    int `yaml:"concurrency"`
	MaxTextChars   int `yaml:"max_text_chars"`
	WordsPerMinute int `yaml:"words_per_minute"`
}

type ConcatConfig struct {
	Engine     string `yaml:"engine"` // native, ffmpeg
	ScratchDir string `yaml:"scratch_dir"`
	FFmpegPath string `yaml:"ffmpeg_path"`
}

type CleanerConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

type Config struct {
	LogLevel  string          `yaml:"log_level"`
	HTTP      HTTPConfig      `yaml:"http"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Concat    ConcatConfig    `yaml:"concat"`
	Cleaner   CleanerConfig   `yaml:"cleaner"`
	SentryDSN string          `yaml:"sentry_dsn"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8081,
		},
		Synthesis: SynthesisConfig{
			Provider:         "deepgram",
			Voice:            "aura-asteria-en",
			Encoding:         "linear16",
			Container:        "wav",
			SampleRate:       24000,
			Speed:            1.0,
			RequestTimeoutMS: 60000,
		},
		Pipeline: PipelineConfig{
			MaxChunkChars:  2000,
			Concurrency:    3,
			MaxTextChars:   1000000,
			WordsPerMinute: 150,
		},
		Concat: ConcatConfig{
			Engine:     "native",
			FFmpegPath: "ffmpeg",
		},
		Cleaner: CleanerConfig{
			Model: "gpt-4o-mini",
		},
	}
}

// Load layers: defaults, then the yaml file, then .env, then NARRATOR_* variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// A missing .env is the norm in production.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	applyKeyFallbacks(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.LogLevel, "NARRATOR_LOG_LEVEL")
	overrideString(&cfg.HTTP.Bind, "NARRATOR_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "NARRATOR_HTTP_PORT")
	overrideString(&cfg.Synthesis.Provider, "NARRATOR_SYNTHESIS_PROVIDER")
	overrideString(&cfg.Synthesis.APIKey, "NARRATOR_SYNTHESIS_API_KEY")
	overrideString(&cfg.Synthesis.BaseURL, "NARRATOR_SYNTHESIS_BASE_URL")
	overrideString(&cfg.Synthesis.Model, "NARRATOR_SYNTHESIS_MODEL")
	overrideString(&cfg.Synthesis.Voice, "NARRATOR_SYNTHESIS_VOICE")
	overrideString(&cfg.Synthesis.Encoding, "NARRATOR_SYNTHESIS_ENCODING")
	overrideString(&cfg.Synthesis.Container, "NARRATOR_SYNTHESIS_CONTAINER")
	overrideInt(&cfg.Synthesis.SampleRate, "NARRATOR_SYNTHESIS_SAMPLE_RATE")
	overrideFloat(&cfg.Synthesis.Speed, "NARRATOR_SYNTHESIS_SPEED")
	overrideString(&cfg.Synthesis.Command, "NARRATOR_SYNTHESIS_COMMAND")
	overrideInt(&cfg.Synthesis.RequestTimeoutMS, "NARRATOR_SYNTHESIS_REQUEST_TIMEOUT_MS")
	overrideInt(&cfg.Pipeline.MaxChunkChars, "NARRATOR_PIPELINE_MAX_CHUNK_CHARS")
	overrideInt(&cfg.Pipeline.Concurrency, "NARRATOR_PIPELINE_CONCURRENCY")
	overrideInt(&cfg.Pipeline.MaxTextChars, "NARRATOR_PIPELINE_MAX_TEXT_CHARS")
	overrideInt(&cfg.Pipeline.WordsPerMinute, "NARRATOR_PIPELINE_WORDS_PER_MINUTE")
	overrideString(&cfg.Concat.Engine, "NARRATOR_CONCAT_ENGINE")
	overrideString(&cfg.Concat.ScratchDir, "NARRATOR_CONCAT_SCRATCH_DIR")
	overrideString(&cfg.Concat.FFmpegPath, "NARRATOR_CONCAT_FFMPEG_PATH")
	overrideBool(&cfg.Cleaner.Enabled, "NARRATOR_CLEANER_ENABLED")
	overrideString(&cfg.Cleaner.APIKey, "NARRATOR_CLEANER_API_KEY")
	overrideString(&cfg.Cleaner.Model, "NARRATOR_CLEANER_MODEL")
	overrideString(&cfg.SentryDSN, "NARRATOR_SENTRY_DSN")
}

// applyKeyFallbacks picks up the vendor variables people already have in their environment.
func applyKeyFallbacks(cfg *Config) {
	if cfg.Synthesis.APIKey == "" {
		switch cfg.Synthesis.Provider {
		case "deepgram":
			cfg.Synthesis.APIKey = os.Getenv("DEEPGRAM_API_KEY")
		case "openai":
			cfg.Synthesis.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if cfg.Cleaner.APIKey == "" {
		cfg.Cleaner.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.SentryDSN == "" {
		cfg.SentryDSN = os.Getenv("SENTRY_DSN")
	}
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch cfg.Synthesis.Provider {
	case "deepgram", "openai":
		if cfg.Synthesis.APIKey == "" {
			return fmt.Errorf("synthesis.api_key must be set for provider %s", cfg.Synthesis.Provider)
		}
	case "exec":
		if cfg.Synthesis.Command == "" {
			return errors.New("synthesis.command must be set when provider=exec")
		}
	case "stub":
	default:
		return errors.New("synthesis.provider must be one of deepgram|openai|exec|stub")
	}
	if cfg.Synthesis.SampleRate <= 0 {
		return errors.New("synthesis.sample_rate must be positive")
	}
	if cfg.Synthesis.Speed <= 0 {
		return errors.New("synthesis.speed must be positive")
	}
	if cfg.Synthesis.RequestTimeoutMS <= 0 {
		return errors.New("synthesis.request_timeout_ms must be positive")
	}
	if cfg.Pipeline.MaxChunkChars <= 0 || cfg.Pipeline.MaxChunkChars > 2000 {
		return errors.New("pipeline.max_chunk_chars must be between 1 and 2000")
	}
	if cfg.Pipeline.Concurrency < 1 {
		return errors.New("pipeline.concurrency must be >= 1")
	}
	if cfg.Pipeline.MaxTextChars <= 0 {
		return errors.New("pipeline.max_text_chars must be positive")
	}
	if cfg.Pipeline.WordsPerMinute <= 0 {
		return errors.New("pipeline.words_per_minute must be positive")
	}
	switch cfg.Concat.Engine {
	case "native":
	case "ffmpeg":
		if cfg.Concat.ScratchDir == "" {
			return errors.New("concat.scratch_dir must be set when engine=ffmpeg")
		}
		if cfg.Concat.FFmpegPath == "" {
			return errors.New("concat.ffmpeg_path must not be empty when engine=ffmpeg")
		}
	default:
		return errors.New("concat.engine must be one of native|ffmpeg")
	}
	if cfg.Cleaner.Enabled && cfg.Cleaner.APIKey == "" {
		return errors.New("cleaner.api_key must be set when the cleaner is enabled")
	}
	return nil
}
