package concatenator

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"os/exec"
	"testing"

	"github.com/petrzlen/narrator/pkg/audio_utils"
	"github.com/petrzlen/narrator/pkg/models"
)

func tonePCM(value int16, samples int) []byte {
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(value))
	}
	return pcm
}

func toneResult(t *testing.T, index int, value int16, samples int, sampleRate int) models.SynthesisResult {
	t.Helper()
	wavBytes, err := audio_utils.ConvertTwoByteSamplesToWav(tonePCM(value, samples), sampleRate, 1)
	if err != nil {
		t.Fatal(err)
	}
	return models.SynthesisResult{
		Index:      index,
		Audio:      models.AudioData{ByteData: wavBytes, Format: models.FormatWav},
		SampleRate: sampleRate,
	}
}

func assertTones(t *testing.T, wavBytes []byte, values []int16, samples []int) {
	t.Helper()
	buffer, err := audio_utils.DecodeFromWav(wavBytes)
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for _, n := range samples {
		total += n
	}
	if len(buffer.Data) != total {
		t.Fatalf("expected %d samples, got %d", total, len(buffer.Data))
	}
	offset := 0
	for i, value := range values {
		for j := 0; j < samples[i]; j++ {
			if buffer.Data[offset+j] != int(value) {
				t.Fatalf("segment %d sample %d: expected %d, got %d", i, j, value, buffer.Data[offset+j])
			}
		}
		offset += samples[i]
	}
}

func TestConcatenateNative(t *testing.T) {
	results := []models.SynthesisResult{
		toneResult(t, 0, 100, 24000, 24000),
		toneResult(t, 1, -200, 12000, 24000),
		toneResult(t, 2, 300, 6000, 24000),
	}
	artifact, err := New(NativeEngine{}, "").Concatenate(context.Background(), results)
	if err != nil {
		t.Fatalf("Concatenate: %v", err)
	}
	if artifact.Format != models.FormatWav || artifact.ChunkCount != 3 {
		t.Fatalf("unexpected artifact %s/%d", artifact.Format, artifact.ChunkCount)
	}
	if math.Abs(artifact.DurationSeconds-1.75) > 1e-9 {
		t.Fatalf("expected 1.75s, got %f", artifact.DurationSeconds)
	}
	assertTones(t, artifact.Bytes, []int16{100, -200, 300}, []int{24000, 12000, 6000})
}

func TestConcatenateSingleResult(t *testing.T) {
	artifact, err := New(nil, "").Concatenate(context.Background(), []models.SynthesisResult{toneResult(t, 0, 7, 2400, 24000)})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(artifact.DurationSeconds-0.1) > 1e-9 {
		t.Fatalf("expected 0.1s, got %f", artifact.DurationSeconds)
	}
}

func TestConcatenateNormalizesRawPCM(t *testing.T) {
	raw := models.SynthesisResult{
		Index: 1,
		Audio: models.AudioData{ByteData: tonePCM(55, 2400), Format: models.FormatPCM, SampleRate: 24000},
	}
	artifact, err := New(nil, "").Concatenate(context.Background(), []models.SynthesisResult{toneResult(t, 0, 11, 2400, 24000), raw})
	if err != nil {
		t.Fatal(err)
	}
	assertTones(t, artifact.Bytes, []int16{11, 55}, []int{2400, 2400})
}

func TestConcatenateFormatMismatch(t *testing.T) {
	results := []models.SynthesisResult{
		toneResult(t, 0, 1, 100, 24000),
		toneResult(t, 1, 1, 100, 16000),
	}
	if _, err := New(nil, "").Concatenate(context.Background(), results); !errors.Is(err, ErrFormatMismatch) {
		t.Fatalf("expected ErrFormatMismatch, got %v", err)
	}
}

func TestConcatenateNoInputs(t *testing.T) {
	if _, err := New(nil, "").Concatenate(context.Background(), nil); !errors.Is(err, ErrNoInputs) {
		t.Fatalf("expected ErrNoInputs, got %v", err)
	}
}

type failingEngine struct{}

func (failingEngine) Name() string { return "failing" }

func (failingEngine) Concat(ctx context.Context, scratch *Scratch, command Command) error {
	return errors.New("disk on fire")
}

func TestScratchReleasedOnEveryPath(t *testing.T) {
	results := []models.SynthesisResult{toneResult(t, 0, 1, 100, 24000), toneResult(t, 1, 2, 100, 24000)}
	for _, engine := range []Engine{NativeEngine{}, failingEngine{}} {
		base := t.TempDir()
		_, err := New(engine, base).Concatenate(context.Background(), results)
		if engine.Name() == "failing" && err == nil {
			t.Fatalf("expected the failing engine to fail")
		}
		entries, readErr := os.ReadDir(base)
		if readErr != nil {
			t.Fatal(readErr)
		}
		if len(entries) != 0 {
			t.Fatalf("%s: scratch left behind: %v", engine.Name(), entries)
		}
	}
}

func TestScratch(t *testing.T) {
	mem, err := NewMemScratch()
	if err != nil {
		t.Fatal(err)
	}
	if err := mem.WriteFile("a.wav", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if !mem.Exists("a.wav") {
		t.Fatalf("expected a.wav to exist")
	}
	if _, err := mem.RealPath("a.wav"); err == nil {
		t.Fatalf("memory scratch has no real paths")
	}
	if err := mem.Release(); err != nil {
		t.Fatal(err)
	}
	if mem.Exists("a.wav") {
		t.Fatalf("expected a.wav to be gone after release")
	}

	disk, err := NewDiskScratch(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = disk.Release() }()
	if err := disk.WriteFile("b.wav", []byte("y")); err != nil {
		t.Fatal(err)
	}
	path, err := disk.RealPath("b.wav")
	if err != nil {
		t.Fatal(err)
	}
	if data, err := os.ReadFile(path); err != nil || string(data) != "y" {
		t.Fatalf("real path %s is not readable: %v", path, err)
	}
	if _, err := NewDiskScratch(""); err == nil {
		t.Fatalf("expected an error without base dir")
	}
}

func TestFFmpegEngine(t *testing.T) {
	mem, err := NewMemScratch()
	if err != nil {
		t.Fatal(err)
	}
	if err := NewFFmpegEngine("").Concat(context.Background(), mem, Command{Inputs: []string{"a.wav"}, Output: "o.wav"}); err == nil {
		t.Fatalf("ffmpeg must refuse in-memory scratch")
	}

	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	results := []models.SynthesisResult{toneResult(t, 0, 10, 4800, 24000), toneResult(t, 1, 20, 2400, 24000)}
	artifact, err := New(NewFFmpegEngine(""), t.TempDir()).Concatenate(context.Background(), results)
	if err != nil {
		t.Fatalf("ffmpeg concat: %v", err)
	}
	if math.Abs(artifact.DurationSeconds-0.3) > 1e-3 {
		t.Fatalf("expected 0.3s, got %f", artifact.DurationSeconds)
	}
}

func TestNewEngine(t *testing.T) {
	for name, want := range map[string]string{"": EngineNative, "native": EngineNative, "FFMPEG": EngineFFmpeg} {
		engine, err := NewEngine(name, "")
		if err != nil || engine.Name() != want {
			t.Fatalf("NewEngine(%q) = %v, %v", name, engine, err)
		}
	}
	if _, err := NewEngine("sox", ""); err == nil {
		t.Fatalf("expected unknown engine error")
	}
}

func streamedToneResult(t *testing.T, index int, value int16, samples int) models.SynthesisResult {
	t.Helper()
	result := toneResult(t, index, value, samples, 24000)
	binary.LittleEndian.PutUint32(result.Audio.ByteData[40:44], 0xFFFFFFFF)
	return result
}

func TestConcatenateStreamedWavs(t *testing.T) {
	results := []models.SynthesisResult{
		streamedToneResult(t, 0, 11, 2400),
		streamedToneResult(t, 1, 22, 2400),
	}
	artifact, err := New(nil, "").Concatenate(context.Background(), results)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(artifact.DurationSeconds-0.2) > 1e-9 {
		t.Fatalf("expected 0.2s, got %f", artifact.DurationSeconds)
	}
	assertTones(t, artifact.Bytes, []int16{11, 22}, []int{2400, 2400})
}

func TestConcatenateRejectsEmptyAudio(t *testing.T) {
	results := []models.SynthesisResult{
		toneResult(t, 0, 1, 100, 24000),
		toneResult(t, 1, 2, 0, 24000),
	}
	if _, err := New(nil, "").Concatenate(context.Background(), results); !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
}

// unreadableEngine writes something that is not a wav.
type unreadableEngine struct{}

func (unreadableEngine) Name() string { return "unreadable" }

func (unreadableEngine) Concat(ctx context.Context, scratch *Scratch, command Command) error {
	return scratch.WriteFile(command.Output, []byte("RIFF\x00\x00\x00\x00WAVEjunkjunkjunk"))
}

// silentEngine claims success without writing anything.
type silentEngine struct{}

func (silentEngine) Name() string { return "silent" }

func (silentEngine) Concat(ctx context.Context, scratch *Scratch, command Command) error {
	return nil
}

func TestConcatenateOutputProbe(t *testing.T) {
	results := []models.SynthesisResult{toneResult(t, 0, 1, 100, 24000)}

	artifact, err := New(unreadableEngine{}, "").Concatenate(context.Background(), results)
	if err != nil {
		t.Fatalf("an unreadable header must not fail the concatenation: %v", err)
	}
	if artifact.DurationSeconds != 0 || len(artifact.Bytes) == 0 {
		t.Fatalf("expected the raw output with an unknown duration, got %+v", artifact)
	}

	if _, err := New(silentEngine{}, "").Concatenate(context.Background(), results); err == nil {
		t.Fatal("expected an error when the engine writes no output")
	}
}
