package concatenator

import (
	"context"
	"fmt"

	"github.com/go-audio/audio"
	"github.com/petrzlen/narrator/pkg/audio_utils"
)

// NativeEngine appends the pcm data of all inputs and writes it out with a single header.
type NativeEngine struct{}

func (NativeEngine) Name() string {
	return EngineNative
}

func (NativeEngine) Concat(ctx context.Context, scratch *Scratch, command Command) error {
	var joined *audio.IntBuffer
	var first audio_utils.WavInfo
	for i, name := range command.Inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		wavBytes, err := scratch.ReadFile(name)
		if err != nil {
			return fmt.Errorf("cannot read %s %w", name, err)
		}
		info, err := audio_utils.ProbeWav(wavBytes)
		if err != nil {
			return fmt.Errorf("cannot probe %s %w", name, err)
		}
		buffer, err := audio_utils.DecodeFromWav(wavBytes)
		if err != nil {
			return fmt.Errorf("cannot decode %s %w", name, err)
		}
		if i == 0 {
			first = info
			joined = &audio.IntBuffer{
				Format:         buffer.Format,
				SourceBitDepth: buffer.SourceBitDepth,
				Data:           make([]int, 0, len(buffer.Data)*len(command.Inputs)),
			}
		} else if !first.SameStream(info) {
			return fmt.Errorf("%s is %s, expected %s", name, info, first)
		}
		joined.Data = append(joined.Data, buffer.Data...)
	}
	if joined == nil {
		return fmt.Errorf("nothing to concatenate")
	}

	output, err := audio_utils.EncodeToWav(joined, first.BitDepth, first.AudioFormat)
	if err != nil {
		return err
	}
	return scratch.WriteFile(command.Output, output)
}
