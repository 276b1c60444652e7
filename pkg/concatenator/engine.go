package concatenator

import (
	"context"
	"fmt"
	"strings"
)

// Command is declarative: join Inputs, in order, into Output. All names live in the scratch.
type Command struct {
	Inputs []string
	Output string
}

// Engine is whatever actually joins audio files, e.g. our own wav code or an ffmpeg binary.
type Engine interface {
	Name() string
	Concat(ctx context.Context, scratch *Scratch, command Command) error
}

const (
	EngineNative = "native"
	EngineFFmpeg = "ffmpeg"
)

func NewEngine(name string, ffmpegPath string) (Engine, error) {
	switch strings.ToLower(name) {
	case EngineNative, "":
		return NativeEngine{}, nil
	case EngineFFmpeg:
		return NewFFmpegEngine(ffmpegPath), nil
	default:
		return nil, fmt.Errorf("unknown concatenation engine %q", name)
	}
}
