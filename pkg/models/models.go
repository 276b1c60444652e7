package models

import (
	"time"

	"github.com/rs/zerolog/log"
)

type Trace struct {
	CreatedAt time.Time
	Creator   string

	ReceivedAt time.Time

	ProcessedAt time.Time
	Processor   string
}

func (t Trace) Log() {
	log.Trace().Time("created_at", t.CreatedAt).Str("creator", t.Creator).Time("processed_at", t.ProcessedAt).Str("processor", t.Processor).Dur("dur_to_process", t.ProcessedAt.Sub(t.CreatedAt)).Msgf("tracing")
}

func NewTrace(creator string) Trace {
	return Trace{
		CreatedAt: time.Now(),
		Creator:   creator,
	}
}

// Format is the container (or lack of one) of a piece of audio.
type Format string

const (
	FormatWav  Format = "wav"
	FormatMp3  Format = "mp3"
	FormatFlac Format = "flac"
	// FormatPCM is headerless signed 16-bit little-endian samples, i.e. linear16 with container "none".
	FormatPCM Format = "pcm"
)

// ContentType maps to what a synthesis service (or our own server) puts into the Content-Type header.
func (f Format) ContentType() string {
	switch f {
	case FormatWav:
		return "audio/wav"
	case FormatMp3:
		return "audio/mpeg"
	case FormatFlac:
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}

// FormatFromContentType is the inverse of ContentType, fallback is returned for anything unknown.
func FormatFromContentType(contentType string, fallback Format) Format {
	switch contentType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return FormatWav
	case "audio/mpeg", "audio/mp3":
		return FormatMp3
	case "audio/flac", "audio/x-flac":
		return FormatFlac
	default:
		return fallback
	}
}

// VoiceParams travel unchanged with every synthesis request of a run.
type VoiceParams struct {
	VoiceID    string
	Encoding   string // e.g. linear16, mp3, flac
	Container  string // e.g. wav, none
	SampleRate int
	Speed      float64
}

// TextChunk is immutable once the segmenter produced it.
type TextChunk struct {
	Index int
	Text  string
}

// AudioData is what a synthesizer returns for a single request.
type AudioData struct {
	ByteData    []byte
	Format      Format
	ContentType string
	// SampleRate is only authoritative for FormatPCM, containers carry their own.
	SampleRate int
	Length     time.Duration
	Text       string // text representation
	Trace      Trace
}

type JobState int

const (
	JobPending JobState = iota
	JobInFlight
	JobDone
	JobFailed
)

func (s JobState) String() string {
	names := [...]string{
		"Pending",
		"InFlight",
		"Done",
		"Failed",
	}

	if s < JobPending || s > JobFailed {
		return "Unknown"
	}

	return names[s]
}

// SynthesisJob is owned by the scheduler, Transition is the only way to mutate it.
type SynthesisJob struct {
	Chunk TextChunk
	State JobState
}

// Transition moves the job along Pending -> InFlight -> Done|Failed.
// Pending -> Done is allowed for chunks that are skipped without a network call.
func (j *SynthesisJob) Transition(to JobState) bool {
	switch {
	case j.State == JobPending && (to == JobInFlight || to == JobDone):
	case j.State == JobInFlight && (to == JobDone || to == JobFailed):
	default:
		return false
	}
	j.State = to
	return true
}

type SynthesisResult struct {
	Index           int
	Audio           AudioData
	SampleRate      int
	DurationSeconds float64
}

type AudioArtifact struct {
	RunID           string
	Bytes           []byte
	DurationSeconds float64
	Format          Format
	// EstimatedSeconds is the word-count estimate computed before synthesis.
	EstimatedSeconds float64
	ChunkCount       int
}

type RunState int

const (
	Idle RunState = iota
	Segmenting
	Synthesizing
	Concatenating
	Complete
	Failed
)

func (s RunState) String() string {
	names := [...]string{
		"Idle",
		"Segmenting",
		"Synthesizing",
		"Concatenating",
		"Complete",
		"Failed",
	}

	if s < Idle || s > Failed {
		return "Unknown"
	}

	return names[s]
}

// Progress is emitted at least once per completed chunk while Synthesizing,
// and once on every state change.
type Progress struct {
	RunID      string
	State      RunState
	Completed  int
	Total      int
	ChunkIndex int
	// Fraction is in [0,1] and never decreases within a run.
	Fraction         float64
	EstimatedSeconds float64
}

type ProgressFunc func(Progress)

type Message struct {
	Role       string
	Content    string
	FinishedAt time.Time
}

// Conversation for the Chat API
type Conversation struct {
	StartedAt time.Time
	Messages  []Message
}

func NewConversationSimple(text string) Conversation {
	return Conversation{
		StartedAt: time.Now(),
		Messages: []Message{
			{Role: "user", Content: text, FinishedAt: time.Now()},
		},
	}
}

func (c *Conversation) Add(role string, content string) {
	c.Messages = append(c.Messages, Message{
		Role:       role,
		Content:    content,
		FinishedAt: time.Now(),
	})
}

func (c *Conversation) GetLastPrompt() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[len(c.Messages)-1].Content
}

func (c *Conversation) DebugLog() {
	log.Debug().Msg("DUMPING FULL CONVERSATION")
	for i, message := range c.Messages {
		at := message.FinishedAt.Sub(c.StartedAt)
		log.Debug().Int("i", i).Str("role", message.Role).Dur("since_started", at).Msg(message.Content)
	}
}
