// Package duration knows how long narrated audio is, or will be.
package duration

import (
	"strings"

	"github.com/petrzlen/narrator/pkg/audio_utils"
	"github.com/rs/zerolog/log"
)

// DefaultWordsPerMinute is a typical narration pace.
const DefaultWordsPerMinute = 150

// Estimate is a rough guess available before any audio exists.
func Estimate(text string, wordsPerMinute int) float64 {
	if wordsPerMinute <= 0 {
		wordsPerMinute = DefaultWordsPerMinute
	}
	words := len(strings.Fields(text))
	return float64(words) / float64(wordsPerMinute) * 60
}

// Probe reads the authoritative duration from the wav header.
func Probe(wavBytes []byte) (float64, error) {
	info, err := audio_utils.ProbeWav(wavBytes)
	if err != nil {
		return 0, err
	}
	return info.DurationSeconds, nil
}

// Resolve prefers the probed duration and falls back to the estimate when probing fails.
func Resolve(wavBytes []byte, estimate float64) float64 {
	probed, err := Probe(wavBytes)
	if err != nil {
		log.Warn().Err(err).Float64("estimated_seconds", estimate).Msg("cannot probe artifact duration, using the estimate")
		return estimate
	}
	if estimate > 0 {
		log.Debug().Float64("probed_seconds", probed).Float64("estimated_seconds", estimate).Float64("drift_seconds", probed-estimate).Msg("duration resolved")
	}
	return probed
}
