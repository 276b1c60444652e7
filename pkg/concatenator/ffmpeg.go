package concatenator

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

const concatListName = "concat.txt"

// FFmpegEngine uses the concat demuxer with stream copy, the inputs are never re-encoded.
type FFmpegEngine struct {
	path string
}

func NewFFmpegEngine(path string) FFmpegEngine {
	if path == "" {
		path = "ffmpeg"
	}
	return FFmpegEngine{path: path}
}

func (FFmpegEngine) Name() string {
	return EngineFFmpeg
}

func (f FFmpegEngine) Concat(ctx context.Context, scratch *Scratch, command Command) error {
	if !scratch.OnDisk() {
		return fmt.Errorf("ffmpeg needs an on-disk scratch directory")
	}

	var list strings.Builder
	for _, name := range command.Inputs {
		inputPath, err := scratch.RealPath(name)
		if err != nil {
			return err
		}
		// concat demuxer quoting: ' becomes '\''
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(inputPath, "'", `'\''`))
	}
	if err := scratch.WriteFile(concatListName, []byte(list.String())); err != nil {
		return fmt.Errorf("cannot write concat list %w", err)
	}
	listPath, err := scratch.RealPath(concatListName)
	if err != nil {
		return err
	}
	outputPath, err := scratch.RealPath(command.Output)
	if err != nil {
		return err
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-y", "-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", outputPath}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.path, args...)
	cmd.Stderr = &stderr
	log.Debug().Str("ffmpeg", f.path).Strs("args", args).Msg("running ffmpeg concat")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg concat failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
