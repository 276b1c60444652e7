package networking

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebsocketMessageHandler sees a websocket connection as two channels of text messages.
//   - GetReader receives every message the peer sends, we close it once the peer is gone,
//     so never close it yourself.
//   - GetWriter is drained into the socket, closing it closes the connection gracefully.
type WebsocketMessageHandler interface {
	GetReader() chan<- []byte
	GetWriter() <-chan []byte
}

const writeWait = 10 * time.Second

// closeWait is how long the peer has to answer our close frame.
var closeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func GetClientIpAddress(r *http.Request) (clientIP string) {
	clientIP = r.RemoteAddr
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		clientIP = realIP
	} else if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		clientIP = forwardedFor
	}
	return
}

// NewWebsocketHandlerFunc upgrades the request and pumps messages between the socket and a
// fresh handler from createHandler, until either side is done.
func NewWebsocketHandlerFunc(createHandler func(r *http.Request) WebsocketMessageHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Info().Str("client_ip", GetClientIpAddress(r)).Str("request_url", r.URL.String()).Msg("websocket connection requested")

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errLog(err, "websocket upgrader.Upgrade")
			return
		}
		handler := createHandler(r)
		defer func() { errLog(ws.Close(), "websocket.Close()") }()

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			writeLoop(ws, handler.GetWriter())
			errLog(ws.SetReadDeadline(time.Now().Add(closeWait)), "websocket.SetReadDeadline")
		}()

		readLoop(ws, handler.GetReader())
		close(handler.GetReader())
		<-writerDone
	}
}

func writeLoop(ws *websocket.Conn, outgoing <-chan []byte) {
	for msg := range outgoing {
		errLog(ws.SetWriteDeadline(time.Now().Add(writeWait)), "websocket.SetWriteDeadline")
		if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Info().Msg("websocket too late to write message, as already closed")
			} else {
				errLog(err, "ws.WriteMessage")
			}
			// keep draining so the producer never blocks on a dead socket
			for range outgoing {
			}
			return
		}
	}
	log.Debug().Msg("websocket writer channel closed, closing connection gracefully")
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	errLog(ws.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeWait)), "websocket.CloseMessage gracefully")
}

func readLoop(ws *websocket.Conn, incoming chan<- []byte) {
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived, websocket.CloseGoingAway) {
				log.Debug().Msg("websocket connection closed by the other party")
			} else {
				log.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}
		incoming <- msg
	}
}

func errLog(err error, what string) {
	if err != nil {
		log.Error().Err(err).Msg(what)
	}
}
