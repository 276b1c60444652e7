package synthesizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/petrzlen/narrator/pkg/models"
	"github.com/rs/zerolog/log"
)

const deepgramBaseURL = "https://api.deepgram.com"

// DefaultDeepgramVoice is used when the caller does not pick one.
const DefaultDeepgramVoice = "aura-asteria-en"

type deepgramTTS struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewDeepgram(apiKey string, baseURL string, httpClient *http.Client) Synthesizer {
	if baseURL == "" {
		baseURL = deepgramBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &deepgramTTS{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type deepgramPayload struct {
	Text string `json:"text"`
}

func (d *deepgramTTS) speakURL(voice models.VoiceParams) string {
	query := url.Values{}
	model := voice.VoiceID
	if model == "" {
		model = DefaultDeepgramVoice
	}
	query.Set("model", model)
	if voice.Encoding != "" {
		query.Set("encoding", voice.Encoding)
	}
	if voice.Container != "" {
		query.Set("container", voice.Container)
	}
	if voice.SampleRate > 0 {
		query.Set("sample_rate", strconv.Itoa(voice.SampleRate))
	}
	if voice.Speed > 0 {
		query.Set("speed", strconv.FormatFloat(voice.Speed, 'f', -1, 64))
	}
	return d.baseURL + "/v1/speak?" + query.Encode()
}

func (d *deepgramTTS) CreateSpeech(ctx context.Context, text string, voice models.VoiceParams) (audioOutput models.AudioData, err error) {
	if err = checkInput(text); err != nil {
		return
	}
	requestStart := time.Now()
	trace := models.NewTrace(ProviderDeepgram)

	body, err := json.Marshal(deepgramPayload{Text: text})
	if err != nil {
		err = fmt.Errorf("cannot marshal deepgram payload %w", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.speakURL(voice), bytes.NewReader(body))
	if err != nil {
		err = fmt.Errorf("cannot create deepgram request %w", err)
		return
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		err = errorForTransport(ctx, ProviderDeepgram, err)
		return
	}
	defer func() { dbg(resp.Body.Close()) }()

	log.Debug().Dur("request_time", time.Since(requestStart)).Int("status_code", resp.StatusCode).Int("text_length", len(text)).Msg("deepgram speak done")

	if resp.StatusCode != http.StatusOK {
		errMsg, _ := io.ReadAll(resp.Body)
		err = errorForStatus(ProviderDeepgram, resp.StatusCode, errMsg)
		return
	}

	rawAudioBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		err = errorForTransport(ctx, ProviderDeepgram, err)
		return
	}
	if len(rawAudioBytes) == 0 {
		err = errorForStatus(ProviderDeepgram, resp.StatusCode, []byte("empty audio body"))
		return
	}

	contentType := resp.Header.Get("Content-Type")
	trace.ProcessedAt = time.Now()
	trace.Processor = "deepgram-speak"
	audioOutput = models.AudioData{
		ByteData:    rawAudioBytes,
		Format:      models.FormatFromContentType(contentType, formatFor(voice)),
		ContentType: contentType,
		SampleRate:  voice.SampleRate,
		Text:        text,
		Trace:       trace,
	}
	return
}
