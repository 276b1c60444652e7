package audio_utils

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// PCM is the only wav audio format we produce.
const PCM = 1

func dbg(err error) {
	if err != nil {
		log.Debug().Err(err).Msg("sth non-essential failed")
	}
}

// ConvertTwoByteSamplesToWav assumes S16 encoding (or two bytes per value)
func ConvertTwoByteSamplesToWav(byteData []byte, sampleRate int, numChannels int) (result []byte, err error) {
	if len(byteData)%2 != 0 {
		err = fmt.Errorf("linear16 data has odd length %d", len(byteData))
		return
	}
	inputBuffer := &audio.IntBuffer{
		Data: twoByteDataToIntSlice(byteData),
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: numChannels,
		},
		SourceBitDepth: 16,
	}
	return EncodeToWav(inputBuffer, 16, PCM)
}

// EncodeToWav writes the buffer as a single wav container with one header.
// An empty buffer still produces a valid (silent) wav file.
func EncodeToWav(inputBuffer *audio.IntBuffer, bitDepth int, audioFormat int) (result []byte, err error) {
	if inputBuffer == nil || inputBuffer.Format == nil {
		err = fmt.Errorf("cannot encode a buffer without format")
		return
	}

	// Create an in-memory file to support io.WriteSeeker needed for NewEncoder which is needed for finalizing headers.
	fs := afero.NewMemMapFs()
	inMemoryFilename := "in-memory-output.wav"
	inMemoryFile, err := fs.Create(inMemoryFilename)
	if err != nil {
		err = fmt.Errorf("cannot create in-memory wav file %w", err)
		return
	}
	// We will call Close ourselves.

	sampleRate := inputBuffer.Format.SampleRate
	numChannels := inputBuffer.Format.NumChannels
	wavEncoder := wav.NewEncoder(inMemoryFile, sampleRate, bitDepth, numChannels, audioFormat)
	log.Trace().Int("int_data_length", len(inputBuffer.Data)).Int("sample_rate", sampleRate).Int("source_bit_depth", inputBuffer.SourceBitDepth).Int("output_bit_depth", bitDepth).Int("num_channels", numChannels).Int("audio_format", audioFormat).Msg("encoding int stream output as a wav")
	// Write even an empty buffer, it is what puts the headers in place.
	if err = wavEncoder.Write(inputBuffer); err != nil {
		err = fmt.Errorf("cannot encode byte output as wav %w", err)
		return
	}

	// Close the wavEncoder to flush any remaining data and finalize the WAV file
	if err = wavEncoder.Close(); err != nil {
		err = fmt.Errorf("cannot finish wav encoding %w", err)
		return
	}

	// We close and re-open the file so we can properly read-all of its contents.
	dbg(inMemoryFile.Close())
	inMemoryFileReopen, err := fs.Open(inMemoryFilename)
	if err != nil {
		err = fmt.Errorf("cannot reopen in-memory wav file %w", err)
		return
	}
	defer func() { dbg(inMemoryFileReopen.Close()) }()
	result, err = io.ReadAll(inMemoryFileReopen)
	if err == nil && len(result) == 0 {
		err = fmt.Errorf("wav output is empty")
	}
	return
}

// IntBufferToPCM16 is what speakers want: interleaved signed 16-bit little-endian samples.
func IntBufferToPCM16(buffer *audio.IntBuffer) []byte {
	shift := 0
	if buffer.SourceBitDepth > 16 {
		shift = buffer.SourceBitDepth - 16
	}
	out := make([]byte, len(buffer.Data)*2)
	for i, value := range buffer.Data {
		var sample int
		switch {
		case buffer.SourceBitDepth == 8:
			// 8-bit wav is unsigned
			sample = (value - 128) << 8
		default:
			sample = value >> shift
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(sample)))
	}
	return out
}

func twoByteDataToIntSlice(audioData []byte) []int {
	intData := make([]int, len(audioData)/2)
	for i := 0; i+1 < len(audioData); i += 2 {
		value := int(int16(binary.LittleEndian.Uint16(audioData[i : i+2])))
		intData[i/2] = value
	}
	return intData
}
