package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/petrzlen/narrator/pkg/models"
	"github.com/petrzlen/narrator/pkg/narrator"
	"github.com/petrzlen/narrator/pkg/synthesizer"
	"github.com/rs/zerolog/log"
)

type narrateRequest struct {
	Text    string  `json:"text"`
	VoiceID string  `json:"voice_id,omitempty"`
	Speed   float64 `json:"speed,omitempty"`
	Preview bool    `json:"preview,omitempty"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Stage      string `json:"stage,omitempty"`
	ChunkIndex *int   `json:"chunk_index,omitempty"`
}

func (r *Router) voiceFor(req narrateRequest) models.VoiceParams {
	voice := r.app.Voice
	if req.VoiceID != "" {
		voice.VoiceID = req.VoiceID
	}
	if req.Speed > 0 {
		voice.Speed = req.Speed
	}
	return voice
}

func (r *Router) narrate(ctx context.Context, req narrateRequest, onProgress models.ProgressFunc) (models.AudioArtifact, error) {
	voice := r.voiceFor(req)
	if req.Preview {
		return r.app.Narrator.Preview(ctx, req.Text, voice, onProgress)
	}
	return r.app.Narrator.Narrate(ctx, req.Text, voice, onProgress)
}

func (r *Router) handleNarrate(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var body narrateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}

	artifact, err := r.narrate(req.Context(), body, nil)
	if err != nil {
		status, resp := errorToResponse(err)
		if status >= http.StatusInternalServerError {
			captureError(req, err, "narration failed")
		}
		writeJSON(w, status, resp)
		return
	}

	w.Header().Set("Content-Type", artifact.Format.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Bytes)))
	w.Header().Set("X-Run-Id", artifact.RunID)
	w.Header().Set("X-Duration-Seconds", strconv.FormatFloat(artifact.DurationSeconds, 'f', 3, 64))
	w.Header().Set("X-Estimated-Seconds", strconv.FormatFloat(artifact.EstimatedSeconds, 'f', 3, 64))
	w.Header().Set("X-Chunk-Count", strconv.Itoa(artifact.ChunkCount))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(artifact.Bytes); err != nil {
		log.Warn().Err(err).Str("run_id", artifact.RunID).Msg("client went away before the audio was written")
	}
}

// errorToResponse maps the narrator error taxonomy onto HTTP statuses.
func errorToResponse(err error) (int, errorResponse) {
	resp := errorResponse{Error: err.Error()}
	var runErr *narrator.Error
	if errors.As(err, &runErr) {
		resp.Stage = string(runErr.Stage)
		if runErr.ChunkIndex >= 0 {
			index := runErr.ChunkIndex
			resp.ChunkIndex = &index
		}
	}

	switch {
	case errors.Is(err, narrator.ErrInputTooLarge):
		return http.StatusRequestEntityTooLarge, resp
	case errors.Is(err, narrator.ErrValidation):
		return http.StatusBadRequest, resp
	case errors.Is(err, context.Canceled):
		// nobody is listening anymore, the status is for the logs
		return 499, resp
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, resp
	case errors.Is(err, synthesizer.ErrRateLimited):
		return http.StatusTooManyRequests, resp
	case errors.Is(err, narrator.ErrSynthesis), errors.Is(err, narrator.ErrCleaning):
		return http.StatusBadGateway, resp
	default:
		return http.StatusInternalServerError, resp
	}
}
