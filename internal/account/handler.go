package account

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"tracing-quiz-service/internal/domain"
)

// Store persists account records and per-user values. User creates an empty
// record on first access.
type Store interface {
	User(ctx context.Context, id string) (domain.UserRecord, error)
	PatchUser(ctx context.Context, id string, patch domain.UserPatch) (domain.UserRecord, error)
	Value(ctx context.Context, id, key string) (string, bool, error)
	SetValue(ctx context.Context, id, key, value string) error
}

type ctxKey struct{}

// Handler serves the account API used by devices in online mode.
type Handler struct {
	store  Store
	issuer *Issuer
	log    *log.Logger
}

func NewHandler(store Store, issuer *Issuer, logger *log.Logger) *Handler {
	return &Handler{store: store, issuer: issuer, log: logger}
}

// ValueBody is the payload of the value endpoints.
type ValueBody struct {
	Value string `json:"value"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Routes returns the router wrapped in CORS.
func (h *Handler) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(h.authenticate)
	api.HandleFunc("/users/me", h.getUser).Methods(http.MethodGet)
	api.HandleFunc("/users/me", h.patchUser).Methods(http.MethodPatch)
	api.HandleFunc("/users/me/values/{key}", h.getValue).Methods(http.MethodGet)
	api.HandleFunc("/users/me/values/{key}", h.putValue).Methods(http.MethodPut)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return c.Handler(r)
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing bearer token"})
			return
		}
		userID, err := h.issuer.Verify(raw)
		if err != nil {
			h.log.Debug("rejected token", "err", err)
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid token"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.User(r.Context(), userID(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) patchUser(w http.ResponseWriter, r *http.Request) {
	var patch domain.UserPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if patch.StarCount != nil && patch.StarDelta != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "starCount and starDelta are exclusive"})
		return
	}
	if patch.StarCount != nil && *patch.StarCount < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "starCount must not be negative"})
		return
	}
	if patch.CurrentAvatarBorderID != nil {
		if _, err := domain.FindAvatarBorder(*patch.CurrentAvatarBorderID); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
	}
	rec, err := h.store.PatchUser(r.Context(), userID(r), patch)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) getValue(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	value, ok, err := h.store.Value(r.Context(), userID(r), key)
	if err != nil {
		h.fail(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "value not found"})
		return
	}
	writeJSON(w, http.StatusOK, ValueBody{Value: value})
}

func (h *Handler) putValue(w http.ResponseWriter, r *http.Request) {
	var body ValueBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if err := h.store.SetValue(r.Context(), userID(r), mux.Vars(r)["key"], body.Value); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "user not found"})
	case errors.Is(err, domain.ErrInsufficientStars):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		h.log.Error("account request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
