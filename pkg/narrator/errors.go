package narrator

import (
	"fmt"

	"github.com/pkg/errors"
)

type Stage string

const (
	StageValidation    Stage = "validation"
	StageCleaning      Stage = "cleaning"
	StageSynthesis     Stage = "synthesis"
	StageConcatenation Stage = "concatenation"
)

// Stage sentinels, match with errors.Is to tell "narration failed" from "stitching failed".
var (
	ErrValidation    = errors.New("invalid narration input")
	ErrCleaning      = errors.New("text cleanup failed")
	ErrSynthesis     = errors.New("narration failed")
	ErrConcatenation = errors.New("stitching failed")
)

var (
	ErrNoContent     = errors.New("no narratable content")
	ErrInputTooLarge = errors.New("input text too large")
)

// Error is what every failed run returns. ChunkIndex is -1 unless a single chunk is to blame.
type Error struct {
	Stage      Stage
	ChunkIndex int
	Err        error
}

func (e *Error) Error() string {
	if e.ChunkIndex >= 0 {
		return fmt.Sprintf("%s failed at chunk %d: %v", e.Stage, e.ChunkIndex, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Stage == StageValidation
	case ErrCleaning:
		return e.Stage == StageCleaning
	case ErrSynthesis:
		return e.Stage == StageSynthesis
	case ErrConcatenation:
		return e.Stage == StageConcatenation
	}
	return false
}
