package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/petrzlen/narrator/internal/app"
	"github.com/petrzlen/narrator/internal/metrics"
	"github.com/petrzlen/narrator/pkg/audio_utils"
	"github.com/petrzlen/narrator/pkg/models"
	"github.com/petrzlen/narrator/pkg/narrator"
	"github.com/petrzlen/narrator/pkg/synthesizer"
)

const story = "Once upon a time there was a narrator.\n\nIt read every paragraph out loud."

func newTestServer(t *testing.T, stub *synthesizer.Stub) *httptest.Server {
	t.Helper()
	m := metrics.New()
	a := &app.App{
		Narrator: narrator.New(synthesizer.Instrument(synthesizer.ProviderStub, stub, m.ObserveSynthesis), nil, narrator.Options{Concurrency: 2}).WithRunObserver(m.ObserveRun),
		Metrics:  m,
		Voice:    models.VoiceParams{VoiceID: "aura-asteria-en", Encoding: "linear16", Container: "wav", SampleRate: 24000, Speed: 1},
	}
	srv := httptest.NewServer(NewRouter(a))
	t.Cleanup(srv.Close)
	return srv
}

func postNarrate(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/narrate", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, synthesizer.NewStub())
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestNarrateReturnsWav(t *testing.T) {
	stub := synthesizer.NewStub()
	srv := newTestServer(t, stub)

	resp := postNarrate(t, srv, `{"text": "`+strings.ReplaceAll(story, "\n", `\n`)+`"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if resp.Header.Get("X-Run-Id") == "" || resp.Header.Get("X-Chunk-Count") != "2" {
		t.Fatalf("missing run headers %v", resp.Header)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	info, err := audio_utils.ProbeWav(body)
	if err != nil {
		t.Fatal(err)
	}
	headerSeconds, err := strconv.ParseFloat(resp.Header.Get("X-Duration-Seconds"), 64)
	if err != nil {
		t.Fatal(err)
	}
	if diff := headerSeconds - info.DurationSeconds; diff > 0.001 || diff < -0.001 {
		t.Fatalf("header says %f seconds, file has %f", headerSeconds, info.DurationSeconds)
	}
	if stub.Calls() != 2 {
		t.Fatalf("expected 2 synthesis calls, got %d", stub.Calls())
	}

	// the run shows up in the metrics
	metricsResp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer metricsResp.Body.Close()
	exposition, _ := io.ReadAll(metricsResp.Body)
	if !bytes.Contains(exposition, []byte(`narrator_runs_total{outcome="ok"} 1`)) {
		t.Fatalf("run counter missing from metrics:\n%s", exposition)
	}
}

func TestNarratePreviewSynthesizesOneChunk(t *testing.T) {
	stub := synthesizer.NewStub()
	srv := newTestServer(t, stub)

	resp := postNarrate(t, srv, `{"text": "First part.\n\nSecond part.\n\nThird part.", "preview": true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if stub.Calls() != 1 || resp.Header.Get("X-Chunk-Count") != "1" {
		t.Fatalf("preview should synthesize once, got %d calls", stub.Calls())
	}
}

func TestNarrateErrors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		fail   error
		status int
		stage  string
	}{
		{name: "wrong method", method: http.MethodGet, status: http.StatusMethodNotAllowed},
		{name: "bad json", method: http.MethodPost, body: `{"text":`, status: http.StatusBadRequest},
		{name: "empty text", method: http.MethodPost, body: `{"text": "  \n\n "}`, status: http.StatusBadRequest, stage: "validation"},
		{name: "rate limited", method: http.MethodPost, body: `{"text": "Hello there."}`, fail: synthesizer.ErrRateLimited, status: http.StatusTooManyRequests, stage: "synthesis"},
		{name: "auth", method: http.MethodPost, body: `{"text": "Hello there."}`, fail: synthesizer.ErrAuth, status: http.StatusBadGateway, stage: "synthesis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := synthesizer.NewStub()
			if tt.fail != nil {
				fail := tt.fail
				stub.Fail = func(string) error { return fail }
			}
			srv := newTestServer(t, stub)

			req, err := http.NewRequest(tt.method, srv.URL+"/v1/narrate", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			var got errorResponse
			if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
				t.Fatal(err)
			}
			if got.Error == "" || got.Stage != tt.stage {
				t.Fatalf("unexpected error body %+v", got)
			}
		})
	}
}

func dialSession(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/narrate/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readUntilDone(t *testing.T, conn *websocket.Conn) (progress []progressMessage, last sessionMessage) {
	t.Helper()
	for {
		var msg sessionMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("websocket closed before a result: %v", err)
		}
		switch msg.Type {
		case messageProgress:
			progress = append(progress, *msg.Progress)
		case messageResult, messageError:
			last = msg
			return
		default:
			t.Fatalf("unexpected message type %q", msg.Type)
		}
	}
}

func TestSessionStreamsProgressThenResult(t *testing.T) {
	srv := newTestServer(t, synthesizer.NewStub())
	conn := dialSession(t, srv)

	if err := conn.WriteJSON(narrateRequest{Text: story}); err != nil {
		t.Fatal(err)
	}
	progress, last := readUntilDone(t, conn)
	if last.Type != messageResult {
		t.Fatalf("expected a result, got %+v", last)
	}
	if last.Result.ChunkCount != 2 || last.Result.Format != "wav" || len(last.Result.Audio) == 0 {
		t.Fatalf("unexpected result %+v", last.Result)
	}
	if _, err := audio_utils.ProbeWav(last.Result.Audio); err != nil {
		t.Fatalf("result audio is not a wav: %v", err)
	}

	if len(progress) == 0 {
		t.Fatal("expected progress messages")
	}
	previous := 0.0
	for _, p := range progress {
		if p.Fraction < previous {
			t.Fatalf("fraction went backwards: %f after %f", p.Fraction, previous)
		}
		previous = p.Fraction
		if p.RunID != last.Result.RunID {
			t.Fatalf("progress for run %q, result for %q", p.RunID, last.Result.RunID)
		}
	}
	if final := progress[len(progress)-1]; final.State != models.Complete.String() || final.Fraction != 1 {
		t.Fatalf("last progress should be Complete at 1.0, got %+v", final)
	}

	// the server closes the socket once the result is out
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected a normal close, got %v", err)
	}
}

func TestSessionReportsFailure(t *testing.T) {
	stub := synthesizer.NewStub()
	stub.Fail = func(text string) error {
		if strings.Contains(text, "paragraph") {
			return synthesizer.ErrTransient
		}
		return nil
	}
	srv := newTestServer(t, stub)
	conn := dialSession(t, srv)

	if err := conn.WriteJSON(narrateRequest{Text: story}); err != nil {
		t.Fatal(err)
	}
	_, last := readUntilDone(t, conn)
	if last.Type != messageError || last.Error == nil {
		t.Fatalf("expected an error message, got %+v", last)
	}
	if last.Error.Stage != "synthesis" || last.Error.ChunkIndex == nil || *last.Error.ChunkIndex != 1 {
		t.Fatalf("expected synthesis failure at chunk 1, got %+v", last.Error)
	}
}

func TestSessionRejectsGarbage(t *testing.T) {
	srv := newTestServer(t, synthesizer.NewStub())
	conn := dialSession(t, srv)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	_, last := readUntilDone(t, conn)
	if last.Type != messageError {
		t.Fatalf("expected an error message, got %+v", last)
	}
}
