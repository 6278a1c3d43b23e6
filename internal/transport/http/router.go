package http

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"tracing-quiz-service/internal/app"
)

// NewRouter wires the quiz engine endpoints.
func NewRouter(engine *app.Engine, tracker SessionTracker, logger *log.Logger) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/ws", NewWSHandler(engine, tracker, logger).ServeWS)
	NewDeviceHandler(engine, logger).Register(r)
	return r
}
