// Package narrator turns text into a single narrated wav file:
// segment, synthesize with bounded concurrency, stitch, measure.
package narrator

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/petrzlen/narrator/pkg/cleaner"
	"github.com/petrzlen/narrator/pkg/concatenator"
	"github.com/petrzlen/narrator/pkg/duration"
	"github.com/petrzlen/narrator/pkg/models"
	"github.com/petrzlen/narrator/pkg/scheduler"
	"github.com/petrzlen/narrator/pkg/segmenter"
	"github.com/petrzlen/narrator/pkg/synthesizer"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultMaxTextChars = 1000000

type Options struct {
	MaxChunkChars  int
	Concurrency    int
	MaxTextChars   int
	WordsPerMinute int
	RequestTimeout time.Duration
}

type Narrator struct {
	scheduler    *scheduler.Scheduler
	concatenator *concatenator.Concatenator
	cleaner      cleaner.Cleaner
	observeRun   func(artifactSeconds float64, err error)
	opts         Options
}

func New(synth synthesizer.Synthesizer, concat *concatenator.Concatenator, opts Options) *Narrator {
	if opts.MaxChunkChars <= 0 {
		opts.MaxChunkChars = segmenter.MaxChunkChars
	}
	if opts.MaxTextChars <= 0 {
		opts.MaxTextChars = DefaultMaxTextChars
	}
	if opts.WordsPerMinute <= 0 {
		opts.WordsPerMinute = duration.DefaultWordsPerMinute
	}
	if concat == nil {
		concat = concatenator.New(nil, "")
	}
	return &Narrator{
		scheduler:    scheduler.New(synth, opts.Concurrency, opts.RequestTimeout),
		concatenator: concat,
		opts:         opts,
	}
}

// WithCleaner runs c over the text before it gets segmented.
func (n *Narrator) WithCleaner(c cleaner.Cleaner) *Narrator {
	n.cleaner = c
	return n
}

func (n *Narrator) WithRunObserver(observe func(artifactSeconds float64, err error)) *Narrator {
	n.observeRun = observe
	return n
}

// Narrate produces the whole artifact or an *Error, never a partial file.
func (n *Narrator) Narrate(ctx context.Context, text string, voice models.VoiceParams, onProgress models.ProgressFunc) (models.AudioArtifact, error) {
	return n.run(ctx, text, voice, onProgress, false)
}

// Preview narrates only the first chunk, so a voice can be checked before paying for a book.
func (n *Narrator) Preview(ctx context.Context, text string, voice models.VoiceParams, onProgress models.ProgressFunc) (models.AudioArtifact, error) {
	return n.run(ctx, text, voice, onProgress, true)
}

type run struct {
	id         string
	logger     zerolog.Logger
	onProgress models.ProgressFunc
	state      models.RunState
	estimate   float64
	fraction   float64
	total      int
}

func (r *run) transition(to models.RunState) {
	r.logger.Info().Str("from", r.state.String()).Str("to", to.String()).Msg("run state changed")
	r.state = to
	if to == models.Complete {
		r.fraction = 1
	}
	r.emit(models.Progress{State: to, Total: r.total, ChunkIndex: -1})
}

func (r *run) emit(p models.Progress) {
	p.RunID = r.id
	p.EstimatedSeconds = r.estimate
	// state changes carry the last fraction forward so it never decreases
	if p.Fraction < r.fraction {
		p.Fraction = r.fraction
	}
	r.fraction = p.Fraction
	if p.Total == 0 {
		p.Total = r.total
	}
	if r.onProgress != nil {
		r.onProgress(p)
	}
}

func (r *run) fail(stage Stage, chunkIndex int, err error) error {
	if r.state != models.Idle {
		r.transition(models.Failed)
	}
	r.logger.Error().Err(err).Str("stage", string(stage)).Int("chunk", chunkIndex).Msg("run failed")
	return &Error{Stage: stage, ChunkIndex: chunkIndex, Err: err}
}

func (n *Narrator) run(ctx context.Context, text string, voice models.VoiceParams, onProgress models.ProgressFunc, preview bool) (artifact models.AudioArtifact, err error) {
	r := &run{
		id:         uuid.NewString(),
		onProgress: onProgress,
		state:      models.Idle,
	}
	r.logger = log.With().Str("run_id", r.id).Bool("preview", preview).Logger()
	started := time.Now()
	defer func() {
		if n.observeRun != nil {
			n.observeRun(artifact.DurationSeconds, err)
		}
	}()

	if err = n.validate(text); err != nil {
		err = r.fail(StageValidation, -1, err)
		return
	}

	if n.cleaner != nil {
		cleaned, cleanErr := n.cleaner.Clean(ctx, text)
		if cleanErr != nil {
			err = r.fail(StageCleaning, -1, cleanErr)
			return
		}
		r.logger.Info().Int("input_length", utf8.RuneCountInString(text)).Int("cleaned_length", utf8.RuneCountInString(cleaned)).Msg("text cleaned")
		text = cleaned
	}

	r.transition(models.Segmenting)
	chunks := segmenter.Segment(text, n.opts.MaxChunkChars)
	if len(chunks) == 0 {
		err = r.fail(StageValidation, -1, ErrNoContent)
		return
	}
	if preview {
		chunks = chunks[:1]
	}
	r.total = len(chunks)
	r.estimate = duration.Estimate(joinChunks(chunks), n.opts.WordsPerMinute)
	r.logger.Info().Int("chunks", len(chunks)).Float64("estimated_seconds", r.estimate).Msg("text segmented")

	r.transition(models.Synthesizing)
	results, err := n.scheduler.Run(ctx, chunks, voice, r.emit)
	if err != nil {
		chunkIndex := -1
		var chunkErr *scheduler.ChunkError
		if errors.As(err, &chunkErr) {
			chunkIndex = chunkErr.Index
		}
		err = r.fail(StageSynthesis, chunkIndex, err)
		return
	}

	r.transition(models.Concatenating)
	artifact, err = n.concatenator.Concatenate(ctx, results)
	if err != nil {
		err = r.fail(StageConcatenation, -1, err)
		return
	}
	artifact.RunID = r.id
	artifact.EstimatedSeconds = r.estimate
	artifact.DurationSeconds = duration.Resolve(artifact.Bytes, r.estimate)

	r.transition(models.Complete)
	r.logger.Info().Int("chunks", artifact.ChunkCount).Int("byte_size", len(artifact.Bytes)).Float64("duration_seconds", artifact.DurationSeconds).Dur("took", time.Since(started)).Msg("narration complete")
	return
}

func (n *Narrator) validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrNoContent
	}
	if size := utf8.RuneCountInString(text); size > n.opts.MaxTextChars {
		return errors.Wrapf(ErrInputTooLarge, "%d chars exceed the %d limit", size, n.opts.MaxTextChars)
	}
	return nil
}

func joinChunks(chunks []models.TextChunk) string {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	return strings.Join(texts, " ")
}
