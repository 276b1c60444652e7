package audio_utils

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
	"github.com/petrzlen/narrator/pkg/models"
)

// DecodeFromWav returns the samples of a wav container.
func DecodeFromWav(wavBytes []byte) (*audio.IntBuffer, error) {
	wavBytes = WithUsableDataSize(wavBytes)
	decoder := wav.NewDecoder(bytes.NewReader(wavBytes))
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("not a valid wav file (%d bytes)", len(wavBytes))
	}
	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("cannot decode wav pcm data %w", err)
	}
	if len(buffer.Data) == 0 && decoder.PCMSize > 0 {
		return nil, fmt.Errorf("wav data chunk of %d bytes decoded to no samples", decoder.PCMSize)
	}
	buffer.SourceBitDepth = int(decoder.BitDepth)
	return buffer, nil
}

// dataChunk walks the RIFF chunks and returns where the pcm data starts and the size its header claims.
func dataChunk(wavBytes []byte) (offset int, declared int64, ok bool) {
	pos := 12
	for pos+8 <= len(wavBytes) {
		size := int64(binary.LittleEndian.Uint32(wavBytes[pos+4 : pos+8]))
		if string(wavBytes[pos:pos+4]) == "data" {
			return pos + 8, size, true
		}
		// chunks are word aligned
		pos += 8 + int(size+size&1)
	}
	return 0, 0, false
}

// WithUsableDataSize fixes up wav files written by streaming encoders, which cannot know the
// final size and leave a placeholder like 0xFFFFFFFF in the data chunk header.
// The data is then taken to run until the end of the file. wavBytes is never modified.
func WithUsableDataSize(wavBytes []byte) []byte {
	offset, declared, ok := dataChunk(wavBytes)
	if !ok {
		return wavBytes
	}
	available := int64(len(wavBytes) - offset)
	if declared <= available {
		return wavBytes
	}
	fixed := make([]byte, len(wavBytes))
	copy(fixed, wavBytes)
	binary.LittleEndian.PutUint32(fixed[offset-4:], uint32(available))
	binary.LittleEndian.PutUint32(fixed[4:], uint32(len(fixed)-8))
	return fixed
}

// DecodeFromMp3 always yields 16-bit stereo, that is what go-mp3 outputs.
func DecodeFromMp3(mp3Bytes []byte) (*audio.IntBuffer, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(mp3Bytes))
	if err != nil {
		return nil, fmt.Errorf("mp3.NewDecoder failed %w", err)
	}
	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("cannot read decoded mp3 %w", err)
	}
	return &audio.IntBuffer{
		Data: twoByteDataToIntSlice(pcm),
		Format: &audio.Format{
			SampleRate:  decoder.SampleRate(),
			NumChannels: 2,
		},
		SourceBitDepth: 16,
	}, nil
}

func DecodeFromFlac(flacBytes []byte) (*audio.IntBuffer, error) {
	stream, err := flac.New(bytes.NewReader(flacBytes))
	if err != nil {
		return nil, fmt.Errorf("cannot parse flac stream %w", err)
	}
	defer func() { dbg(stream.Close()) }()

	numChannels := int(stream.Info.NChannels)
	data := make([]int, 0, int(stream.Info.NSamples)*numChannels)
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("cannot parse flac frame %w", err)
		}
		if len(frame.Subframes) == 0 {
			continue
		}
		for i := range frame.Subframes[0].Samples {
			for _, subframe := range frame.Subframes {
				data = append(data, int(subframe.Samples[i]))
			}
		}
	}
	return &audio.IntBuffer{
		Data: data,
		Format: &audio.Format{
			SampleRate:  int(stream.Info.SampleRate),
			NumChannels: numChannels,
		},
		SourceBitDepth: int(stream.Info.BitsPerSample),
	}, nil
}

// NormalizeToWav turns whatever a synthesizer returned into a single wav container.
// Wav is passed through untouched.
func NormalizeToWav(audioData models.AudioData) ([]byte, error) {
	var buffer *audio.IntBuffer
	var err error
	switch audioData.Format {
	case models.FormatWav:
		return WithUsableDataSize(audioData.ByteData), nil
	case models.FormatPCM:
		if audioData.SampleRate <= 0 {
			return nil, fmt.Errorf("raw pcm audio needs a sample rate")
		}
		return ConvertTwoByteSamplesToWav(audioData.ByteData, audioData.SampleRate, 1)
	case models.FormatMp3:
		buffer, err = DecodeFromMp3(audioData.ByteData)
	case models.FormatFlac:
		buffer, err = DecodeFromFlac(audioData.ByteData)
	default:
		return nil, fmt.Errorf("unknown audio format %q", audioData.Format)
	}
	if err != nil {
		return nil, err
	}
	return EncodeToWav(buffer, buffer.SourceBitDepth, PCM)
}
