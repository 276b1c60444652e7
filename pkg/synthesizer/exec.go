package synthesizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/petrzlen/narrator/pkg/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// execTTS runs a local synthesizer (piper, espeak wrappers, ...) once per chunk.
// It gets an execRequest as JSON on stdin and must print the complete audio file to stdout.
type execTTS struct {
	cmd []string
}

type execRequest struct {
	Text       string  `json:"text"`
	Voice      string  `json:"voice"`
	Encoding   string  `json:"encoding"`
	Container  string  `json:"container"`
	SampleRate int     `json:"sample_rate"`
	Speed      float64 `json:"speed"`
}

func NewExec(command string) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execTTS{cmd: args}, nil
}

func (e *execTTS) CreateSpeech(ctx context.Context, text string, voice models.VoiceParams) (audioOutput models.AudioData, err error) {
	if err = checkInput(text); err != nil {
		return
	}
	trace := models.NewTrace(ProviderExec)

	data, err := json.Marshal(execRequest{
		Text:       text,
		Voice:      voice.VoiceID,
		Encoding:   voice.Encoding,
		Container:  voice.Container,
		SampleRate: voice.SampleRate,
		Speed:      voice.Speed,
	})
	if err != nil {
		return
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	if err = cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = errorForTransport(ctx, ProviderExec, err)
			return
		}
		err = errors.Wrapf(ErrUnexpected, "%s exited: %v: %s", e.cmd[0], err, strings.TrimSpace(stderr.String()))
		return
	}
	log.Debug().Str("command", e.cmd[0]).Dur("run_time", time.Since(started)).Int("output_byte_size", stdout.Len()).Msg("exec tts done")
	if stdout.Len() == 0 {
		err = errors.Wrapf(ErrUnexpected, "%s produced no audio", e.cmd[0])
		return
	}

	format := formatFor(voice)
	trace.ProcessedAt = time.Now()
	trace.Processor = e.cmd[0]
	audioOutput = models.AudioData{
		ByteData:    stdout.Bytes(),
		Format:      format,
		ContentType: format.ContentType(),
		SampleRate:  voice.SampleRate,
		Text:        text,
		Trace:       trace,
	}
	return
}
