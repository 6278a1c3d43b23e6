package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"tracing-quiz-service/internal/app"
	"tracing-quiz-service/internal/domain"
)

// DeviceHandler serves the per-device JSON endpoints: onboarding mode, profile and the avatar shop.
type DeviceHandler struct {
	engine *app.Engine
	log    *log.Logger
}

func NewDeviceHandler(engine *app.Engine, logger *log.Logger) *DeviceHandler {
	return &DeviceHandler{engine: engine, log: logger}
}

type modeRequest struct {
	Mode  domain.Mode `json:"mode"`
	Token string      `json:"token"`
}

type balanceResponse struct {
	Balance int `json:"balance"`
}

func (h *DeviceHandler) Register(r *mux.Router) {
	r.HandleFunc("/devices/{device}/mode", h.setMode).Methods(http.MethodPut)
	r.HandleFunc("/devices/{device}/profile", h.profile).Methods(http.MethodGet)
	r.HandleFunc("/devices/{device}/borders", h.borders).Methods(http.MethodGet)
	r.HandleFunc("/devices/{device}/borders/{id:[0-9]+}/purchase", h.purchase).Methods(http.MethodPost)
	r.HandleFunc("/devices/{device}/borders/{id:[0-9]+}/equip", h.equip).Methods(http.MethodPost)
}

func (h *DeviceHandler) setMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch req.Mode {
	case domain.ModeGuest:
	case domain.ModeOnline:
		if req.Token == "" {
			writeError(w, http.StatusBadRequest, "online mode requires a token")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "mode must be guest or online")
		return
	}
	if err := h.engine.SetMode(r.Context(), mux.Vars(r)["device"], req.Mode, req.Token); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DeviceHandler) profile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.engine.Profile(r.Context(), mux.Vars(r)["device"])
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *DeviceHandler) borders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Shop(r.Context(), mux.Vars(r)["device"]).Catalog())
}

func (h *DeviceHandler) purchase(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, _ := strconv.Atoi(vars["id"])
	balance, err := h.engine.Shop(r.Context(), vars["device"]).Purchase(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Balance: balance})
}

func (h *DeviceHandler) equip(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, _ := strconv.Atoi(vars["id"])
	if err := h.engine.Shop(r.Context(), vars["device"]).Equip(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DeviceHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrBorderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyPurchased),
		errors.Is(err, domain.ErrInsufficientStars),
		errors.Is(err, domain.ErrBorderNotPurchased):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrRemoteRequestFailed):
		h.log.Warn("account backend failed", "err", err)
		writeError(w, http.StatusBadGateway, "account backend unavailable")
	case errors.Is(err, domain.ErrStorageUnavailable):
		h.log.Error("device storage failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		h.log.Error("device request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorPayload{Message: message})
}
