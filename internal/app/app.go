// Package app wires a loaded config into a ready to use narrator.
package app

import (
	"fmt"

	"github.com/petrzlen/narrator/internal/config"
	"github.com/petrzlen/narrator/internal/metrics"
	"github.com/petrzlen/narrator/pkg/cleaner"
	"github.com/petrzlen/narrator/pkg/concatenator"
	"github.com/petrzlen/narrator/pkg/models"
	"github.com/petrzlen/narrator/pkg/narrator"
	"github.com/petrzlen/narrator/pkg/synthesizer"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

type App struct {
	Narrator *narrator.Narrator
	Metrics  *metrics.Metrics
	// Voice is the default every request starts from.
	Voice models.VoiceParams
}

func New(cfg config.Config) (*App, error) {
	m := metrics.New()

	synth, err := synthesizer.New(synthesizer.Options{
		Provider: cfg.Synthesis.Provider,
		APIKey:   cfg.Synthesis.APIKey,
		BaseURL:  cfg.Synthesis.BaseURL,
		Model:    cfg.Synthesis.Model,
		Command:  cfg.Synthesis.Command,
		Timeout:  cfg.Synthesis.RequestTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("init synthesizer: %w", err)
	}
	synth = synthesizer.Instrument(cfg.Synthesis.Provider, synth, m.ObserveSynthesis)

	concat, err := NewConcatenator(cfg.Concat)
	if err != nil {
		return nil, err
	}

	n := narrator.New(synth, concat, narrator.Options{
		MaxChunkChars:  cfg.Pipeline.MaxChunkChars,
		Concurrency:    cfg.Pipeline.Concurrency,
		MaxTextChars:   cfg.Pipeline.MaxTextChars,
		WordsPerMinute: cfg.Pipeline.WordsPerMinute,
		RequestTimeout: cfg.Synthesis.RequestTimeout(),
	}).WithRunObserver(m.ObserveRun)

	if cfg.Cleaner.Enabled {
		client := openai.NewClient(cfg.Cleaner.APIKey)
		n.WithCleaner(cleaner.NewLLMCleaner(cleaner.NewOpenAIChatAgent(client), cfg.Cleaner.Model, cfg.Pipeline.MaxChunkChars))
		log.Info().Str("model", cfg.Cleaner.Model).Msg("text cleaner enabled")
	}

	log.Info().Str("provider", cfg.Synthesis.Provider).Str("voice", cfg.Synthesis.Voice).Int("concurrency", cfg.Pipeline.Concurrency).Str("concat_engine", cfg.Concat.Engine).Msg("narrator ready")
	return &App{
		Narrator: n,
		Metrics:  m,
		Voice:    VoiceFromConfig(cfg.Synthesis),
	}, nil
}

func NewConcatenator(cfg config.ConcatConfig) (*concatenator.Concatenator, error) {
	engine, err := concatenator.NewEngine(cfg.Engine, cfg.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("init concatenator: %w", err)
	}
	return concatenator.New(engine, cfg.ScratchDir), nil
}

func VoiceFromConfig(cfg config.SynthesisConfig) models.VoiceParams {
	return models.VoiceParams{
		VoiceID:    cfg.Voice,
		Encoding:   cfg.Encoding,
		Container:  cfg.Container,
		SampleRate: cfg.SampleRate,
		Speed:      cfg.Speed,
	}
}
