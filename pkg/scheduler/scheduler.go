// Package scheduler synthesizes text chunks with a bounded number of concurrent requests.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/petrzlen/narrator/pkg/audio_utils"
	"github.com/petrzlen/narrator/pkg/models"
	"github.com/petrzlen/narrator/pkg/synthesizer"
	"github.com/rs/zerolog/log"
)

const (
	DefaultConcurrency    = 3
	DefaultRequestTimeout = 60 * time.Second
)

// ChunkError is the first failure of a run, all other results are discarded.
type ChunkError struct {
	Index int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d: %v", e.Index, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

type Scheduler struct {
	synth          synthesizer.Synthesizer
	concurrency    int
	requestTimeout time.Duration
}

func New(synth synthesizer.Synthesizer, concurrency int, requestTimeout time.Duration) *Scheduler {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	return &Scheduler{
		synth:          synth,
		concurrency:    concurrency,
		requestTimeout: requestTimeout,
	}
}

// Run synthesizes every chunk and returns the results ordered by chunk index.
// Either all non-blank chunks succeed or the run fails with a *ChunkError.
func (s *Scheduler) Run(ctx context.Context, chunks []models.TextChunk, voice models.VoiceParams, onProgress models.ProgressFunc) ([]models.SynthesisResult, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make([]models.SynthesisJob, len(chunks))
	for i, chunk := range chunks {
		jobs[i] = models.SynthesisJob{Chunk: chunk, State: models.JobPending}
	}
	// One slot per job, a slot is only written by the worker that claimed its index.
	slots := make([]*models.SynthesisResult, len(chunks))

	var (
		firstErr error
		errOnce  sync.Once
	)
	fail := func(index int, err error) {
		errOnce.Do(func() {
			firstErr = &ChunkError{Index: index, Err: err}
			cancel()
		})
	}

	var (
		progressMu sync.Mutex
		completed  int
	)
	report := func(index int) {
		progressMu.Lock()
		defer progressMu.Unlock()
		completed++
		if onProgress != nil {
			onProgress(models.Progress{
				State:      models.Synthesizing,
				Completed:  completed,
				Total:      len(chunks),
				ChunkIndex: index,
				Fraction:   float64(completed) / float64(len(chunks)),
			})
		}
	}

	workers := s.concurrency
	if workers > len(chunks) {
		workers = len(chunks)
	}
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(p interface{}) {
		log.Error().Interface("panic", p).Msg("synthesis worker panicked")
	}))
	if err != nil {
		return nil, fmt.Errorf("cannot create worker pool %w", err)
	}
	defer pool.Release()

	var cursor atomic.Int64
	var wg sync.WaitGroup
	work := func() {
		defer wg.Done()
		current := -1
		// runs before wg.Done, Run must see the failure
		defer func() {
			if p := recover(); p != nil {
				if current >= 0 && jobs[current].State == models.JobInFlight {
					_ = transition(&jobs[current], models.JobFailed)
				}
				fail(current, fmt.Errorf("synthesis worker panicked: %v", p))
			}
		}()
		for runCtx.Err() == nil {
			index := int(cursor.Add(1) - 1)
			if index >= len(jobs) {
				return
			}
			current = index
			job := &jobs[index]
			if strings.TrimSpace(job.Chunk.Text) == "" {
				if err := transition(job, models.JobDone); err != nil {
					fail(index, err)
					return
				}
				report(index)
				continue
			}

			if err := transition(job, models.JobInFlight); err != nil {
				fail(index, err)
				return
			}
			result, err := s.synthesize(runCtx, job.Chunk, voice)
			if err != nil {
				_ = transition(job, models.JobFailed)
				fail(index, err)
				return
			}
			if err := transition(job, models.JobDone); err != nil {
				fail(index, err)
				return
			}
			slots[index] = &result
			report(index)
		}
	}

	log.Debug().Int("chunks", len(chunks)).Int("workers", workers).Dur("request_timeout", s.requestTimeout).Msg("synthesis started")
	for w := 0; w < workers; w++ {
		wg.Add(1)
		if err := pool.Submit(work); err != nil {
			wg.Done()
			fail(-1, fmt.Errorf("cannot submit synthesis worker %w", err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	results, err := collect(jobs, slots)
	if err != nil {
		// workers stop claiming chunks once the caller cancels
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return results, nil
}

// transition applies a job state change and reports the ones the job state machine refuses.
func transition(job *models.SynthesisJob, to models.JobState) error {
	from := job.State
	if !job.Transition(to) {
		log.Error().Int("chunk", job.Chunk.Index).Str("from", from.String()).Str("to", to.String()).Msg("illegal job transition")
		return fmt.Errorf("chunk %d cannot go from %s to %s", job.Chunk.Index, from, to)
	}
	return nil
}

// collect is the barrier check: a result for every non-blank chunk, in index order.
func collect(jobs []models.SynthesisJob, slots []*models.SynthesisResult) ([]models.SynthesisResult, error) {
	results := make([]models.SynthesisResult, 0, len(slots))
	for i, job := range jobs {
		if job.State != models.JobDone {
			return nil, fmt.Errorf("chunk %d ended in state %s", i, job.State)
		}
		if slots[i] != nil {
			results = append(results, *slots[i])
		} else if strings.TrimSpace(job.Chunk.Text) != "" {
			return nil, fmt.Errorf("missing synthesis result for chunk %d", i)
		}
	}
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Index < results[b].Index
	})
	return results, nil
}

func (s *Scheduler) synthesize(ctx context.Context, chunk models.TextChunk, voice models.VoiceParams) (result models.SynthesisResult, err error) {
	requestCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	started := time.Now()
	audioOutput, err := s.synth.CreateSpeech(requestCtx, chunk.Text, voice)
	if err != nil {
		return
	}
	result = models.SynthesisResult{
		Index:      chunk.Index,
		Audio:      audioOutput,
		SampleRate: audioOutput.SampleRate,
	}
	probe(&result)
	log.Debug().Int("chunk", chunk.Index).Dur("took", time.Since(started)).Int("byte_size", len(audioOutput.ByteData)).Float64("duration_seconds", result.DurationSeconds).Msg("chunk synthesized")
	return
}

// probe fills in what the audio says about itself, a failure here is not fatal.
func probe(result *models.SynthesisResult) {
	switch result.Audio.Format {
	case models.FormatWav:
		info, err := audio_utils.ProbeWav(result.Audio.ByteData)
		if err != nil {
			log.Debug().Err(err).Int("chunk", result.Index).Msg("cannot probe chunk audio")
			return
		}
		result.SampleRate = info.SampleRate
		result.DurationSeconds = info.DurationSeconds
	case models.FormatPCM:
		if result.SampleRate > 0 {
			result.DurationSeconds = float64(len(result.Audio.ByteData)/2) / float64(result.SampleRate)
		}
	}
}
