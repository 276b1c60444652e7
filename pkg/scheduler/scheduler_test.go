package scheduler

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/petrzlen/narrator/pkg/models"
	"github.com/petrzlen/narrator/pkg/synthesizer"
)

func chunksOf(texts ...string) []models.TextChunk {
	chunks := make([]models.TextChunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.TextChunk{Index: i, Text: text}
	}
	return chunks
}

var voice = models.VoiceParams{Encoding: "linear16", Container: "wav", SampleRate: 24000}

func TestRunOrdersResultsByIndex(t *testing.T) {
	texts := []string{"zero.", "one.", "two.", "three.", "four.", "five."}
	delays := map[string]time.Duration{}
	for i, text := range texts {
		delays[text] = time.Duration(len(texts)-i) * 15 * time.Millisecond
	}
	stub := synthesizer.NewStub()
	stub.Delay = func(text string) time.Duration { return delays[text] }

	results, err := New(stub, 3, 0).Run(context.Background(), chunksOf(texts...), voice, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != len(texts) {
		t.Fatalf("expected %d results, got %d", len(texts), len(results))
	}
	for i, result := range results {
		if result.Index != i || result.Audio.Text != texts[i] {
			t.Fatalf("result %d is %d %q", i, result.Index, result.Audio.Text)
		}
	}
}

func TestRunProbesChunkAudio(t *testing.T) {
	results, err := New(synthesizer.NewStub(), 2, 0).Run(context.Background(), chunksOf("abcd"), voice, nil)
	if err != nil {
		t.Fatal(err)
	}
	// 4 chars * 240 samples at 24kHz
	if results[0].SampleRate != 24000 || math.Abs(results[0].DurationSeconds-0.04) > 1e-9 {
		t.Fatalf("unexpected probe %d Hz %f s", results[0].SampleRate, results[0].DurationSeconds)
	}
}

func TestRunRespectsConcurrency(t *testing.T) {
	texts := make([]string, 12)
	for i := range texts {
		texts[i] = string(rune('a'+i)) + "."
	}
	for _, concurrency := range []int{1, 3, 5} {
		stub := synthesizer.NewStub()
		stub.Delay = func(string) time.Duration { return 10 * time.Millisecond }
		if _, err := New(stub, concurrency, 0).Run(context.Background(), chunksOf(texts...), voice, nil); err != nil {
			t.Fatal(err)
		}
		if stub.MaxInFlight() > concurrency || stub.MaxInFlight() < 1 {
			t.Fatalf("concurrency %d: observed %d in flight", concurrency, stub.MaxInFlight())
		}
		if stub.Calls() != len(texts) {
			t.Fatalf("expected one call per chunk, got %d", stub.Calls())
		}
	}
}

func TestRunFailsFast(t *testing.T) {
	stub := synthesizer.NewStub()
	stub.Fail = func(text string) error {
		if text == "c" {
			return synthesizer.ErrAuth
		}
		return nil
	}

	results, err := New(stub, 1, 0).Run(context.Background(), chunksOf("a", "b", "c", "d", "e", "f"), voice, nil)
	if results != nil {
		t.Fatalf("partial results must be discarded, got %d", len(results))
	}
	var chunkErr *ChunkError
	if !errors.As(err, &chunkErr) || chunkErr.Index != 2 {
		t.Fatalf("expected ChunkError for index 2, got %v", err)
	}
	if !errors.Is(err, synthesizer.ErrAuth) {
		t.Fatalf("expected ErrAuth in chain, got %v", err)
	}
	// a single worker claims nothing after the failure
	if stub.Calls() != 3 {
		t.Fatalf("expected 3 calls, got %d", stub.Calls())
	}
}

func TestRunFailureCancelsInFlight(t *testing.T) {
	stub := synthesizer.NewStub()
	stub.Delay = func(text string) time.Duration {
		if text == "slow" {
			return 10 * time.Second
		}
		return 0
	}
	stub.Fail = func(text string) error {
		if text == "bad" {
			return synthesizer.ErrRateLimited
		}
		return nil
	}

	started := time.Now()
	_, err := New(stub, 2, 0).Run(context.Background(), chunksOf("slow", "bad", "x", "y"), voice, nil)
	if !errors.Is(err, synthesizer.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if time.Since(started) > 5*time.Second {
		t.Fatalf("in-flight request was not cancelled")
	}
}

func TestRunSkipsBlankChunks(t *testing.T) {
	stub := synthesizer.NewStub()
	var progress []models.Progress
	results, err := New(stub, 2, 0).Run(context.Background(), chunksOf("a.", "  \n", "b."), voice, func(p models.Progress) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].Index != 0 || results[1].Index != 2 {
		t.Fatalf("unexpected results %+v", results)
	}
	if stub.Calls() != 2 {
		t.Fatalf("blank chunk must not be synthesized, got %d calls", stub.Calls())
	}
	if len(progress) != 3 || progress[len(progress)-1].Fraction != 1 {
		t.Fatalf("expected progress for all 3 chunks ending at 1, got %+v", progress)
	}
}

func TestRunProgressIsMonotonic(t *testing.T) {
	texts := make([]string, 20)
	for i := range texts {
		texts[i] = string(rune('A'+i)) + "!"
	}
	stub := synthesizer.NewStub()
	stub.Delay = func(text string) time.Duration { return time.Duration(text[0]%4) * time.Millisecond }

	var mu sync.Mutex
	var fractions []float64
	_, err := New(stub, 4, 0).Run(context.Background(), chunksOf(texts...), voice, func(p models.Progress) {
		mu.Lock()
		defer mu.Unlock()
		if p.State != models.Synthesizing || p.Total != len(texts) {
			t.Errorf("unexpected progress %+v", p)
		}
		fractions = append(fractions, p.Fraction)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(fractions) != len(texts) {
		t.Fatalf("expected %d progress reports, got %d", len(texts), len(fractions))
	}
	for i := 1; i < len(fractions); i++ {
		if fractions[i] < fractions[i-1] {
			t.Fatalf("progress went backwards: %v", fractions)
		}
	}
	if fractions[len(fractions)-1] != 1 {
		t.Fatalf("progress must end at 1, got %f", fractions[len(fractions)-1])
	}
}

func TestRunCancelled(t *testing.T) {
	stub := synthesizer.NewStub()
	stub.Delay = func(string) time.Duration { return 10 * time.Second }

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)
	_, err := New(stub, 2, 0).Run(ctx, chunksOf("a", "b", "c"), voice, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunRequestTimeout(t *testing.T) {
	stub := synthesizer.NewStub()
	stub.Delay = func(string) time.Duration { return 10 * time.Second }

	_, err := New(stub, 1, 20*time.Millisecond).Run(context.Background(), chunksOf("a"), voice, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected a per-request deadline, got %v", err)
	}
}

func TestRunEmpty(t *testing.T) {
	results, err := New(synthesizer.NewStub(), 3, 0).Run(context.Background(), nil, voice, nil)
	if err != nil || len(results) != 0 {
		t.Fatalf("expected nothing, got %v %v", results, err)
	}
}

func TestCollectDetectsMissingResults(t *testing.T) {
	jobs := []models.SynthesisJob{
		{Chunk: models.TextChunk{Index: 0, Text: "a"}, State: models.JobDone},
		{Chunk: models.TextChunk{Index: 1, Text: "b"}, State: models.JobDone},
	}
	slots := []*models.SynthesisResult{{Index: 0}, nil}
	if _, err := collect(jobs, slots); err == nil {
		t.Fatalf("expected an error for a missing result")
	}
	jobs[1].State = models.JobFailed
	slots[1] = &models.SynthesisResult{Index: 1}
	if _, err := collect(jobs, slots); err == nil {
		t.Fatalf("expected an error for a failed job")
	}
}

// panicking blows up on one chunk and behaves like the stub otherwise.
type panicking struct {
	stub *synthesizer.Stub
	on   string
}

func (p panicking) CreateSpeech(ctx context.Context, text string, voice models.VoiceParams) (models.AudioData, error) {
	if text == p.on {
		panic("synthesizer bug")
	}
	return p.stub.CreateSpeech(ctx, text, voice)
}

func TestRunPanicBlamesTheChunk(t *testing.T) {
	synth := panicking{stub: synthesizer.NewStub(), on: "boom."}
	_, err := New(synth, 1, 0).Run(context.Background(), chunksOf("fine.", "boom.", "never."), voice, nil)
	var chunkErr *ChunkError
	if !errors.As(err, &chunkErr) {
		t.Fatalf("expected a *ChunkError, got %v", err)
	}
	if chunkErr.Index != 1 {
		t.Fatalf("expected chunk 1 to be blamed, got %d", chunkErr.Index)
	}
	if synth.stub.Calls() != 1 {
		t.Fatalf("expected no chunk after the panic, got %d calls", synth.stub.Calls())
	}
}

func TestRunKeepsResultsWhenCancelledAfterTheLastChunk(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	onProgress := func(p models.Progress) {
		if p.Completed == p.Total {
			cancel()
		}
	}

	results, err := New(synthesizer.NewStub(), 1, 0).Run(ctx, chunksOf("a.", "b.", "c."), voice, onProgress)
	if err != nil {
		t.Fatalf("every chunk finished, got %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
}

func TestTransitionRefusesIllegalMoves(t *testing.T) {
	job := &models.SynthesisJob{Chunk: models.TextChunk{Index: 4, Text: "x"}}
	if err := transition(job, models.JobFailed); err == nil {
		t.Fatal("Pending -> Failed must be refused")
	}
	if job.State != models.JobPending {
		t.Fatalf("a refused transition must not change the state, got %s", job.State)
	}
	for _, to := range []models.JobState{models.JobInFlight, models.JobDone} {
		if err := transition(job, to); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := transition(job, models.JobInFlight); err == nil {
		t.Fatal("Done is final")
	}
}
