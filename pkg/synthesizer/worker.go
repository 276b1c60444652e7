package synthesizer

import (
	"context"
	"time"

	"github.com/petrzlen/narrator/pkg/models"
	"github.com/rs/zerolog/log"
)

// ObserveFunc receives the outcome of every synthesis call, e.g. to feed metrics.
type ObserveFunc func(provider string, took time.Duration, err error)

type instrumented struct {
	provider string
	inner    Synthesizer
	observe  ObserveFunc
}

// Instrument wraps a Synthesizer with logging and an optional observer.
func Instrument(provider string, inner Synthesizer, observe ObserveFunc) Synthesizer {
	return &instrumented{provider: provider, inner: inner, observe: observe}
}

func (i *instrumented) CreateSpeech(ctx context.Context, text string, voice models.VoiceParams) (audioOutput models.AudioData, err error) {
	started := time.Now()
	audioOutput, err = i.inner.CreateSpeech(ctx, text, voice)
	took := time.Since(started)
	if i.observe != nil {
		i.observe(i.provider, took, err)
	}
	if err != nil {
		log.Debug().Err(err).Str("provider", i.provider).Dur("took", took).Msg("create speech failed")
		return
	}
	audioOutput.Trace.ReceivedAt = time.Now()
	audioOutput.Trace.Log()
	log.Trace().Str("provider", i.provider).Dur("took", took).Int("byte_size", len(audioOutput.ByteData)).Str("format", string(audioOutput.Format)).Msg("create speech done")
	return
}

func dbg(err error) {
	if err != nil {
		log.Debug().Err(err).Msg("sth non-essential failed")
	}
}
