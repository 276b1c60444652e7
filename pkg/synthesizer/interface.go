package synthesizer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/petrzlen/narrator/pkg/models"
	"github.com/pkg/errors"
)

// MaxInputChars is the per-request limit of the synthesis services we talk to.
const MaxInputChars = 2000

type Synthesizer interface {
	CreateSpeech(ctx context.Context, text string, voice models.VoiceParams) (audioOutput models.AudioData, err error)
}

const (
	ProviderDeepgram = "deepgram"
	ProviderOpenAI   = "openai"
	ProviderExec     = "exec"
	ProviderStub     = "stub"
)

type Options struct {
	Provider string
	APIKey   string
	// BaseURL overrides the public endpoint, mostly for tests and proxies.
	BaseURL string
	// Model is only used by OpenAI, Deepgram encodes the model in the voice id.
	Model   string
	Command string
	Timeout time.Duration
}

func New(opts Options) (Synthesizer, error) {
	httpClient := &http.Client{Timeout: opts.Timeout}
	switch strings.ToLower(opts.Provider) {
	case ProviderDeepgram, "":
		if opts.APIKey == "" {
			return nil, fmt.Errorf("deepgram synthesizer needs an api key")
		}
		return NewDeepgram(opts.APIKey, opts.BaseURL, httpClient), nil
	case ProviderOpenAI:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("openai synthesizer needs an api key")
		}
		return NewOpenAITTS(opts.APIKey, opts.BaseURL, opts.Model), nil
	case ProviderExec:
		return NewExec(opts.Command)
	case ProviderStub:
		return NewStub(), nil
	default:
		return nil, fmt.Errorf("unknown synthesis provider %q", opts.Provider)
	}
}

func checkInput(text string) error {
	if n := utf8.RuneCountInString(text); n > MaxInputChars {
		return errors.Wrapf(ErrInputTooLong, "%d chars exceed the %d limit", n, MaxInputChars)
	}
	return nil
}

// formatFor is what we expect back when the service does not tell us via Content-Type.
func formatFor(voice models.VoiceParams) models.Format {
	switch strings.ToLower(voice.Encoding) {
	case "mp3":
		return models.FormatMp3
	case "flac":
		return models.FormatFlac
	}
	if strings.EqualFold(voice.Container, "none") {
		return models.FormatPCM
	}
	return models.FormatWav
}
