// Package concatenator joins per-chunk audio into one wav file.
package concatenator

import (
	"context"
	"fmt"

	"github.com/petrzlen/narrator/pkg/audio_utils"
	"github.com/petrzlen/narrator/pkg/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoInputs       = errors.New("nothing to concatenate")
	ErrFormatMismatch = errors.New("audio format mismatch")
	ErrEmptyAudio     = errors.New("chunk audio holds no samples")
)

const outputName = "output.wav"

type Concatenator struct {
	engine Engine
	// scratchDir empty means in-memory scratch.
	scratchDir string
}

func New(engine Engine, scratchDir string) *Concatenator {
	if engine == nil {
		engine = NativeEngine{}
	}
	return &Concatenator{engine: engine, scratchDir: scratchDir}
}

func (c *Concatenator) newScratch() (*Scratch, error) {
	if c.scratchDir == "" {
		return NewMemScratch()
	}
	return NewDiskScratch(c.scratchDir)
}

// Concatenate expects results ordered by chunk index. The artifact duration is read
// back from the output header rather than summed from the inputs, it stays 0 when the
// header cannot be read.
func (c *Concatenator) Concatenate(ctx context.Context, results []models.SynthesisResult) (artifact models.AudioArtifact, err error) {
	if len(results) == 0 {
		err = ErrNoInputs
		return
	}

	inputs := make([][]byte, len(results))
	var first audio_utils.WavInfo
	for i, result := range results {
		if inputs[i], err = audio_utils.NormalizeToWav(result.Audio); err != nil {
			err = errors.Wrapf(err, "cannot normalize chunk %d", result.Index)
			return
		}
		info, probeErr := audio_utils.ProbeWav(inputs[i])
		if probeErr != nil {
			err = errors.Wrapf(probeErr, "cannot probe chunk %d", result.Index)
			return
		}
		if info.DataBytes == 0 {
			err = errors.Wrapf(ErrEmptyAudio, "chunk %d", result.Index)
			return
		}
		if i == 0 {
			first = info
		} else if !first.SameStream(info) {
			err = errors.Wrapf(ErrFormatMismatch, "chunk %d is %s, chunk %d is %s", result.Index, info, results[0].Index, first)
			return
		}
	}

	scratch, err := c.newScratch()
	if err != nil {
		return
	}
	defer func() { dbg(scratch.Release()) }()

	command := Command{Output: outputName}
	for i, input := range inputs {
		name := fmt.Sprintf("chunk-%05d.wav", i)
		if err = scratch.WriteFile(name, input); err != nil {
			err = errors.Wrapf(err, "cannot stage %s", name)
			return
		}
		command.Inputs = append(command.Inputs, name)
	}

	log.Debug().Str("engine", c.engine.Name()).Int("inputs", len(inputs)).Str("stream", first.String()).Bool("on_disk", scratch.OnDisk()).Msg("concatenating")
	if err = c.engine.Concat(ctx, scratch, command); err != nil {
		err = errors.Wrapf(err, "%s engine failed", c.engine.Name())
		return
	}

	output, err := scratch.ReadFile(outputName)
	if err != nil {
		err = errors.Wrap(err, "engine produced no output")
		return
	}
	if len(output) == 0 {
		err = errors.Errorf("%s engine wrote an empty %s", c.engine.Name(), outputName)
		return
	}

	artifact = models.AudioArtifact{
		Bytes:      output,
		Format:     models.FormatWav,
		ChunkCount: len(results),
	}
	if info, probeErr := audio_utils.ProbeWav(output); probeErr != nil {
		log.Warn().Err(probeErr).Str("engine", c.engine.Name()).Int("byte_size", len(output)).Msg("cannot probe concatenated output")
	} else {
		artifact.DurationSeconds = info.DurationSeconds
	}
	return
}

func dbg(err error) {
	if err != nil {
		log.Debug().Err(err).Msg("sth non-essential failed")
	}
}
