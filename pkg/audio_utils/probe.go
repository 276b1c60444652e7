package audio_utils

import (
	"bytes"
	"fmt"

	"github.com/go-audio/wav"
)

type WavInfo struct {
	SampleRate  int
	NumChannels int
	BitDepth    int
	AudioFormat int
	// DataBytes is the size of the pcm data chunk.
	DataBytes       int
	DurationSeconds float64
}

// SameStream means the raw pcm of both files can be appended without re-encoding.
func (w WavInfo) SameStream(other WavInfo) bool {
	return w.SampleRate == other.SampleRate &&
		w.NumChannels == other.NumChannels &&
		w.BitDepth == other.BitDepth &&
		w.AudioFormat == other.AudioFormat
}

func (w WavInfo) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit/fmt%d", w.SampleRate, w.NumChannels, w.BitDepth, w.AudioFormat)
}

// ProbeWav reads the duration from the container header, i.e. data chunk size over byte rate.
// A data size larger than the file, as streaming encoders leave it, is capped at the end of the file.
func ProbeWav(wavBytes []byte) (info WavInfo, err error) {
	wavBytes = WithUsableDataSize(wavBytes)
	decoder := wav.NewDecoder(bytes.NewReader(wavBytes))
	if !decoder.IsValidFile() {
		err = fmt.Errorf("not a valid wav file (%d bytes)", len(wavBytes))
		return
	}
	if err = decoder.FwdToPCM(); err != nil {
		err = fmt.Errorf("cannot find wav data chunk %w", err)
		return
	}

	info = WavInfo{
		SampleRate:  int(decoder.SampleRate),
		NumChannels: int(decoder.NumChans),
		BitDepth:    int(decoder.BitDepth),
		AudioFormat: int(decoder.WavAudioFormat),
		DataBytes:   decoder.PCMSize,
	}
	frameBytes := info.NumChannels * info.BitDepth / 8
	if info.SampleRate <= 0 || frameBytes <= 0 {
		err = fmt.Errorf("wav header is missing stream parameters %s", info)
		return
	}
	if info.DataBytes < 0 || info.DataBytes > len(wavBytes) {
		err = fmt.Errorf("wav data size %d does not fit a %d byte file", info.DataBytes, len(wavBytes))
		return
	}
	// a trailing partial frame is not audio
	info.DataBytes -= info.DataBytes % frameBytes
	if decoder.PCMSize > 0 && info.DataBytes == 0 {
		err = fmt.Errorf("wav data chunk of %d bytes holds no complete frame", decoder.PCMSize)
		return
	}
	info.DurationSeconds = float64(info.DataBytes) / float64(info.SampleRate*frameBytes)
	return
}
