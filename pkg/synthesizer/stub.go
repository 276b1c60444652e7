package synthesizer

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/petrzlen/narrator/pkg/audio_utils"
	"github.com/petrzlen/narrator/pkg/models"
)

// Stub synthesizes a constant tone per chunk, so results are deterministic and
// the order of chunks in a concatenated file can be read back from the samples.
// Used for dry runs and by tests.
type Stub struct {
	SampleRate     int
	SamplesPerChar int
	// Delay and Fail are keyed by the chunk text.
	Delay func(text string) time.Duration
	Fail  func(text string) error

	calls       atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func NewStub() *Stub {
	return &Stub{
		SampleRate:     24000,
		SamplesPerChar: 240, // 10ms per character
	}
}

// SampleValue is the amplitude the stub uses for text.
func SampleValue(text string) int16 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	return int16(h.Sum32()&0x3fff) + 1
}

func (s *Stub) Calls() int {
	return int(s.calls.Load())
}

// MaxInFlight is the highest number of concurrent CreateSpeech calls observed.
func (s *Stub) MaxInFlight() int {
	return int(s.maxInFlight.Load())
}

func (s *Stub) CreateSpeech(ctx context.Context, text string, voice models.VoiceParams) (audioOutput models.AudioData, err error) {
	if err = checkInput(text); err != nil {
		return
	}
	s.calls.Add(1)
	current := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		seen := s.maxInFlight.Load()
		if current <= seen || s.maxInFlight.CompareAndSwap(seen, current) {
			break
		}
	}

	if s.Delay != nil {
		if delay := s.Delay(text); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				err = errorForTransport(ctx, ProviderStub, ctx.Err())
				return
			case <-timer.C:
			}
		}
	}
	if s.Fail != nil {
		if err = s.Fail(text); err != nil {
			return
		}
	}
	if err = ctx.Err(); err != nil {
		err = errorForTransport(ctx, ProviderStub, err)
		return
	}

	sampleRate := s.SampleRate
	if voice.SampleRate > 0 {
		sampleRate = voice.SampleRate
	}
	value := SampleValue(text)
	pcm := make([]byte, utf8.RuneCountInString(text)*s.SamplesPerChar*2)
	for i := 0; i < len(pcm); i += 2 {
		binary.LittleEndian.PutUint16(pcm[i:], uint16(value))
	}

	trace := models.NewTrace(ProviderStub)
	audioOutput = models.AudioData{
		SampleRate: sampleRate,
		Text:       text,
		Trace:      trace,
	}
	if formatFor(voice) == models.FormatPCM {
		audioOutput.ByteData = pcm
		audioOutput.Format = models.FormatPCM
		audioOutput.ContentType = "audio/l16"
	} else {
		audioOutput.ByteData, err = audio_utils.ConvertTwoByteSamplesToWav(pcm, sampleRate, 1)
		audioOutput.Format = models.FormatWav
		audioOutput.ContentType = models.FormatWav.ContentType()
	}
	audioOutput.Trace.ProcessedAt = time.Now()
	return
}
