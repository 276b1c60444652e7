package audioio

import (
	"bytes"
	"fmt"
	"time"

	"github.com/petrzlen/narrator/pkg/audio_utils"
	"github.com/rs/zerolog/log"
)

// DecodeForPlayback returns what OutputDevice.Play wants, plus the stream parameters
// the device has to be opened with.
func DecodeForPlayback(wavBytes []byte) (pcm []byte, sampleRate int, numChannels int, err error) {
	buffer, err := audio_utils.DecodeFromWav(wavBytes)
	if err != nil {
		err = fmt.Errorf("cannot decode wav for playback %w", err)
		return
	}
	return audio_utils.IntBufferToPCM16(buffer), buffer.Format.SampleRate, buffer.Format.NumChannels, nil
}

// PlayWav blocks until the whole file was played, or the device got stopped.
func PlayWav(outputDevice OutputDevice, wavBytes []byte) error {
	pcm, _, _, err := DecodeForPlayback(wavBytes)
	if err != nil {
		return err
	}

	startTime := time.Now()
	waitTilDone, err := outputDevice.Play(bytes.NewReader(pcm))
	if err != nil {
		return fmt.Errorf("cannot play decoded wav %w", err)
	}
	if waitTilDone != nil {
		waitTilDone.Wait()
	}
	log.Debug().Dur("duration", time.Since(startTime)).Int("pcm_byte_size", len(pcm)).Msg("player DONE")
	return nil
}
