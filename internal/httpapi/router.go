package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/petrzlen/narrator/internal/app"
	"github.com/petrzlen/narrator/internal/networking"
	"github.com/rs/zerolog/log"
)

// maxBodyBytes bounds the JSON body, the narrator itself enforces the text limit.
const maxBodyBytes = 16 << 20

type Router struct {
	app *app.App
	mux *http.ServeMux
}

func NewRouter(a *app.App) http.Handler {
	r := &Router{
		app: a,
		mux: http.NewServeMux(),
	}
	r.routes()
	return withSentryRecovery(r.mux)
}

func (r *Router) routes() {
	r.mux.HandleFunc("/healthz", r.handleHealthz)
	r.mux.Handle("/metrics", r.app.Metrics.Handler())

	r.mux.HandleFunc("/v1/narrate", r.handleNarrate)
	r.mux.HandleFunc("/v1/narrate/ws", networking.NewWebsocketHandlerFunc(r.newSession))
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("panic", err).Str("path", req.URL.Path).Msg("handler panicked")
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
