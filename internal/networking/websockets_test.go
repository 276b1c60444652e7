package networking

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// closingHandler has nothing to say and closes its writer right away.
type closingHandler struct {
	reader chan []byte
	writer chan []byte
}

func newClosingHandler(*http.Request) WebsocketMessageHandler {
	h := &closingHandler{reader: make(chan []byte, 16), writer: make(chan []byte)}
	close(h.writer)
	return h
}

func (h *closingHandler) GetReader() chan<- []byte { return h.reader }
func (h *closingHandler) GetWriter() <-chan []byte { return h.writer }

func TestHandlerReturnsWhenPeerIgnoresClose(t *testing.T) {
	previous := closeWait
	closeWait = 50 * time.Millisecond
	defer func() { closeWait = previous }()

	handlerDone := make(chan struct{})
	wsHandler := NewWebsocketHandlerFunc(newClosingHandler)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(handlerDone)
		wsHandler(w, r)
	}))
	defer srv.Close()

	// never reading means never answering the close frame
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	select {
	case <-handlerDone:
	case <-time.After(5 * time.Second):
		t.Fatal("handler still waiting for a close answer")
	}
}

func TestGetClientIpAddress(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	if got := GetClientIpAddress(r); got != "10.0.0.1:1234" {
		t.Fatalf("expected remote addr, got %q", got)
	}
	r.Header.Set("X-Forwarded-For", "1.2.3.4")
	if got := GetClientIpAddress(r); got != "1.2.3.4" {
		t.Fatalf("expected forwarded addr, got %q", got)
	}
	r.Header.Set("X-Real-IP", "5.6.7.8")
	if got := GetClientIpAddress(r); got != "5.6.7.8" {
		t.Fatalf("expected real ip, got %q", got)
	}
}
