package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/petrzlen/narrator/internal/app"
	"github.com/petrzlen/narrator/internal/config"
	"github.com/petrzlen/narrator/internal/utils"
	"github.com/petrzlen/narrator/pkg/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// stitch joins existing wav files the same way a narration run joins its chunks.
func main() {
	outPath := flag.String("out", "joined.wav", "where to write the joined wav")
	engine := flag.String("engine", "native", "native or ffmpeg")
	scratchDir := flag.String("scratch", "", "scratch directory, required by the ffmpeg engine")
	ffmpegPath := flag.String("ffmpeg", "ffmpeg", "ffmpeg binary")
	logLevel := flag.String("log-level", "info", "zerolog level")
	flag.Parse()
	utils.SetupZerolog(*logLevel)

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: stitch -out joined.wav a.wav b.wav ...")
		os.Exit(2)
	}

	concat, err := app.NewConcatenator(config.ConcatConfig{Engine: *engine, ScratchDir: *scratchDir, FFmpegPath: *ffmpegPath})
	ftl(err)

	fs := afero.NewOsFs()
	results := make([]models.SynthesisResult, 0, flag.NArg())
	for i, path := range flag.Args() {
		data, err := afero.ReadFile(fs, path)
		ftl(err)
		results = append(results, models.SynthesisResult{
			Index: i,
			Audio: models.AudioData{ByteData: data, Format: models.FormatWav, ContentType: models.FormatWav.ContentType()},
		})
	}

	artifact, err := concat.Concatenate(context.Background(), results)
	ftl(err)
	ftl(afero.WriteFile(fs, *outPath, artifact.Bytes, 0644))
	log.Info().Str("out", *outPath).Int("inputs", artifact.ChunkCount).Float64("duration_seconds", artifact.DurationSeconds).Msg("stitched")
}

func ftl(err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("sth essential failed")
		debug.PrintStack()
	}
}
