package http

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"tracing-quiz-service/internal/app"
	"tracing-quiz-service/internal/domain"
)

// SessionTracker keeps one live session per device.
type SessionTracker interface {
	Track(device, sessionID string, cancel context.CancelFunc)
	Release(device, sessionID string)
}

type WSHandler struct {
	engine   *app.Engine
	tracker  SessionTracker
	upgrader websocket.Upgrader
	log      *log.Logger
}

func NewWSHandler(engine *app.Engine, tracker SessionTracker, logger *log.Logger) *WSHandler {
	return &WSHandler{
		engine:  engine,
		tracker: tracker,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Option string `json:"option"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type dismissPayload struct {
	ID uint64 `json:"id"`
}

// wsScreen forwards controller output to the connection's writer goroutine.
type wsScreen struct {
	send       chan<- outboundMessage
	writerDone <-chan struct{}
}

func (s wsScreen) push(typ string, payload any) {
	select {
	case s.send <- outboundMessage{Type: typ, Payload: payload}:
	case <-s.writerDone:
	}
}

func (s wsScreen) Render(snapshot domain.SessionSnapshot) { s.push("state", snapshot) }
func (s wsScreen) Notify(notice domain.Notice)            { s.push("notice", notice) }
func (s wsScreen) Dismiss(id uint64)                      { s.push("dismiss", dismissPayload{ID: id}) }
func (s wsScreen) StartHandoff(req domain.HandoffRequest) { s.push("handoff", req) }
func (s wsScreen) Navigate(req domain.NavigationRequest)  { s.push("navigate", req) }

// ServeWS upgrades HTTP requests to websockets and runs one quiz session per connection.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	device := r.URL.Query().Get("device")
	category := domain.Category(r.URL.Query().Get("category"))
	if device == "" || category == "" {
		http.Error(w, "missing device or category", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", "err", err)
				return
			}
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session, err := h.engine.OpenSession(ctx, device, category, wsScreen{send: send, writerDone: writerDone})
	if err != nil {
		send <- outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}}
		close(send)
		<-writerDone
		return
	}
	h.tracker.Track(device, session.ID(), cancel)
	defer h.tracker.Release(device, session.ID())

	go func() { _ = session.Run(ctx) }()
	// a replaced or canceled session unblocks the reader
	go func() {
		<-session.Done()
		_ = conn.SetReadDeadline(time.Now())
	}()

	h.readLoop(conn, session, send, writerDone)

	cancel()
	<-session.Done()
	close(send)
	<-writerDone
}

func (h *WSHandler) readLoop(conn *websocket.Conn, session *app.Session, send chan<- outboundMessage, writerDone <-chan struct{}) {
	reject := func(message string) {
		select {
		case send <- outboundMessage{Type: "error", Payload: errorPayload{Message: message}}:
		case <-writerDone:
		}
	}
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		var accepted bool
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Option == "" {
				reject("invalid answer payload")
				continue
			}
			accepted = session.Answer(payload.Option)
		case "resume":
			accepted = session.Resume()
		case "restart":
			accepted = session.Restart()
		case "proceed":
			accepted = session.Proceed()
		default:
			reject("unsupported message type")
			continue
		}
		if !accepted {
			return
		}
	}
}
