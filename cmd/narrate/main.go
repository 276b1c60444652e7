package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/petrzlen/narrator/internal/app"
	"github.com/petrzlen/narrator/internal/config"
	"github.com/petrzlen/narrator/internal/utils"
	"github.com/petrzlen/narrator/pkg/audio_utils"
	"github.com/petrzlen/narrator/pkg/audioio"
	"github.com/petrzlen/narrator/pkg/models"
	"github.com/petrzlen/narrator/pkg/output_device"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

func main() {
	inPath := flag.String("in", "", "text file to narrate, stdin when empty")
	outPath := flag.String("out", "narration.wav", "where to write the wav")
	configPath := flag.String("config", "", "path to narrator.yaml")
	voiceID := flag.String("voice", "", "voice id, overrides the config")
	concurrency := flag.Int("concurrency", 0, "parallel synthesis requests, overrides the config")
	preview := flag.Bool("preview", false, "narrate only the first chunk")
	play := flag.Bool("play", false, "play the result on the speakers")
	flag.Parse()

	setupStart := time.Now()
	cfg, err := config.Load(*configPath)
	utils.SetupZerolog(cfg.LogLevel)
	ftl(err)
	if *concurrency > 0 {
		cfg.Pipeline.Concurrency = *concurrency
	}

	a, err := app.New(cfg)
	ftl(err)
	voice := a.Voice
	if *voiceID != "" {
		voice.VoiceID = *voiceID
	}

	fs := afero.NewOsFs()
	text, err := readInput(fs, *inPath)
	ftl(err)
	log.Debug().Dur("setup_time", time.Since(setupStart)).Msg("setup done")
	// ==== SETUP DONE

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	narrate := a.Narrator.Narrate
	if *preview {
		narrate = a.Narrator.Preview
	}
	artifact, err := narrate(ctx, text, voice, printProgress)
	ftl(err)

	ftl(afero.WriteFile(fs, *outPath, artifact.Bytes, 0644))
	log.Info().Str("out", *outPath).Float64("duration_seconds", artifact.DurationSeconds).Float64("estimated_seconds", artifact.EstimatedSeconds).Int("chunks", artifact.ChunkCount).Msg("narration written")

	if *play {
		dbg(playArtifact(artifact.Bytes))
	}
}

func readInput(fs afero.Fs, path string) (string, error) {
	if path == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("cannot read stdin %w", err)
		}
		return string(data), nil
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", fmt.Errorf("cannot read %s %w", path, err)
	}
	return string(data), nil
}

func printProgress(p models.Progress) {
	if p.ChunkIndex < 0 {
		log.Info().Str("state", p.State.String()).Int("total", p.Total).Float64("estimated_seconds", p.EstimatedSeconds).Msg("narration")
		return
	}
	log.Info().Int("completed", p.Completed).Int("total", p.Total).Str("percent", fmt.Sprintf("%.0f%%", p.Fraction*100)).Msg("chunk done")
}

func playArtifact(wavBytes []byte) error {
	info, err := audio_utils.ProbeWav(wavBytes)
	if err != nil {
		return err
	}
	speakers, err := output_device.NewSpeakers(info.SampleRate, info.NumChannels)
	if err != nil {
		return fmt.Errorf("cannot open speakers %w", err)
	}
	defer func() { dbg(speakers.Stop()) }()
	return audioio.PlayWav(speakers, wavBytes)
}

func dbg(err error) {
	if err != nil {
		log.Debug().Err(err).Msg("sth non-essential failed")
		debug.PrintStack()
	}
}

func ftl(err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("sth essential failed")
		debug.PrintStack()
	}
}
