package synthesizer

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/petrzlen/narrator/pkg/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

const (
	DefaultOpenAIModel = "tts-1"
	DefaultOpenAIVoice = "echo"
)

type openAITTS struct {
	client *openai.Client
	model  string
}

func NewOpenAITTS(openAIAPIKey string, baseURL string, model string) Synthesizer {
	config := openai.DefaultConfig(openAIAPIKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &openAITTS{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// openAIResponseFormat only knows containers, raw linear16 is requested as wav.
func openAIResponseFormat(voice models.VoiceParams) models.Format {
	switch format := formatFor(voice); format {
	case models.FormatMp3, models.FormatFlac:
		return format
	default:
		return models.FormatWav
	}
}

func (o *openAITTS) CreateSpeech(ctx context.Context, text string, voice models.VoiceParams) (audioOutput models.AudioData, err error) {
	if err = checkInput(text); err != nil {
		return
	}
	requestStart := time.Now()
	trace := models.NewTrace(ProviderOpenAI)

	voiceID := voice.VoiceID
	if voiceID == "" {
		voiceID = DefaultOpenAIVoice
	}
	speed := voice.Speed
	if speed <= 0 {
		speed = 1.0
	}
	format := openAIResponseFormat(voice)
	log.Debug().Str("voice", voiceID).Float64("speed", speed).Str("format", string(format)).Int("text_length", len(text)).Msg("openai speech start")

	response, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.model),
		Input:          text,
		Voice:          openai.SpeechVoice(voiceID),
		ResponseFormat: openai.SpeechResponseFormat(format),
		Speed:          speed,
	})
	if err != nil {
		err = classifyOpenAIError(ctx, err)
		return
	}
	defer func() { dbg(response.Close()) }()

	rawAudioBytes, err := io.ReadAll(response)
	if err != nil {
		err = errorForTransport(ctx, ProviderOpenAI, err)
		return
	}
	log.Debug().Dur("request_time", time.Since(requestStart)).Int("response_byte_size", len(rawAudioBytes)).Msg("openai speech done")

	trace.ProcessedAt = time.Now()
	trace.Processor = "openai-audio-speech"
	audioOutput = models.AudioData{
		ByteData:    rawAudioBytes,
		Format:      format,
		ContentType: format.ContentType(),
		Text:        text,
		Trace:       trace,
	}
	return
}

func classifyOpenAIError(ctx context.Context, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return errorForStatus(ProviderOpenAI, apiErr.HTTPStatusCode, []byte(apiErr.Message))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return errorForStatus(ProviderOpenAI, reqErr.HTTPStatusCode, []byte(reqErr.Error()))
	}
	var netErr net.Error
	if ctx.Err() != nil || errors.As(err, &netErr) {
		return errorForTransport(ctx, ProviderOpenAI, err)
	}
	// e.g. the client library refusing an unknown voice before sending anything
	return errors.Wrapf(ErrUnexpected, "openai speech: %v", err)
}
