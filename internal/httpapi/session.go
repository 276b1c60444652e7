package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/petrzlen/narrator/internal/networking"
	"github.com/petrzlen/narrator/pkg/models"
	"github.com/rs/zerolog/log"
)

const (
	messageProgress = "progress"
	messageResult   = "result"
	messageError    = "error"
)

type progressMessage struct {
	RunID            string  `json:"run_id"`
	State            string  `json:"state"`
	Completed        int     `json:"completed"`
	Total            int     `json:"total"`
	ChunkIndex       int     `json:"chunk_index"`
	Fraction         float64 `json:"fraction"`
	EstimatedSeconds float64 `json:"estimated_seconds"`
}

type resultMessage struct {
	RunID            string  `json:"run_id"`
	Format           string  `json:"format"`
	DurationSeconds  float64 `json:"duration_seconds"`
	EstimatedSeconds float64 `json:"estimated_seconds"`
	ChunkCount       int     `json:"chunk_count"`
	// Audio is base64 in the JSON.
	Audio []byte `json:"audio"`
}

type sessionMessage struct {
	Type     string           `json:"type"`
	Progress *progressMessage `json:"progress,omitempty"`
	Result   *resultMessage   `json:"result,omitempty"`
	Error    *errorResponse   `json:"error,omitempty"`
}

// session serves exactly one narration over a websocket: the first message is the request,
// everything after it is ignored. Closing the socket cancels the run.
type session struct {
	router *Router
	req    *http.Request
	reader chan []byte
	writer chan []byte
}

func (r *Router) newSession(req *http.Request) networking.WebsocketMessageHandler {
	s := &session{
		router: r,
		req:    req,
		reader: make(chan []byte),
		writer: make(chan []byte, 64),
	}
	go s.run()
	return s
}

func (s *session) GetReader() chan<- []byte {
	return s.reader
}

func (s *session) GetWriter() <-chan []byte {
	return s.writer
}

func (s *session) run() {
	defer close(s.writer)

	first, ok := <-s.reader
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for range s.reader {
		}
		cancel()
	}()

	var body narrateRequest
	if err := json.Unmarshal(first, &body); err != nil {
		s.send(sessionMessage{Type: messageError, Error: &errorResponse{Error: "invalid json message"}})
		return
	}

	artifact, err := s.router.narrate(ctx, body, func(p models.Progress) {
		s.send(sessionMessage{Type: messageProgress, Progress: &progressMessage{
			RunID:            p.RunID,
			State:            p.State.String(),
			Completed:        p.Completed,
			Total:            p.Total,
			ChunkIndex:       p.ChunkIndex,
			Fraction:         p.Fraction,
			EstimatedSeconds: p.EstimatedSeconds,
		}})
	})
	if err != nil {
		status, resp := errorToResponse(err)
		if status >= http.StatusInternalServerError {
			captureError(s.req, err, "websocket narration failed")
		}
		s.send(sessionMessage{Type: messageError, Error: &resp})
		return
	}

	s.send(sessionMessage{Type: messageResult, Result: &resultMessage{
		RunID:            artifact.RunID,
		Format:           string(artifact.Format),
		DurationSeconds:  artifact.DurationSeconds,
		EstimatedSeconds: artifact.EstimatedSeconds,
		ChunkCount:       artifact.ChunkCount,
		Audio:            artifact.Bytes,
	}})
}

func (s *session) send(msg sessionMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", msg.Type).Msg("cannot marshal websocket message")
		return
	}
	s.writer <- data
}
