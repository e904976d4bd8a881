package portal

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/vethome-platform/internal/gateway"
	"github.com/wolfman30/vethome-platform/internal/registry"
	"github.com/wolfman30/vethome-platform/pkg/logging"
)

const historyOnConnect = 50

type Handler struct {
	svc    *Service
	logger *logging.Logger
}

func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Summary handles GET /portal/clients/{clientID}/summary
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Summary(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ListMessages handles GET /portal/clients/{clientID}/messages?limit=
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
	msgs, err := h.svc.Messages(r.Context(), chi.URLParam(r, "clientID"), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "count": len(msgs)})
}

// PostMessage handles POST /portal/clients/{clientID}/messages
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SenderName string `json:"sender_name"`
		Text       string `json:"text"`
		IsAdmin    bool   `json:"is_admin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	msg, err := h.svc.Post(r.Context(), chi.URLParam(r, "clientID"), req.SenderName, req.Text, req.IsAdmin)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// Remind handles POST /portal/clients/{clientID}/reminders
func (h *Handler) Remind(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PetName string `json:"pet_name"`
		Reason  string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rem, err := h.svc.Remind(r.Context(), chi.URLParam(r, "clientID"), req.PetName, req.Reason)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rem)
}

type inbound struct {
	Type       string `json:"type"` // message, ping
	SenderName string `json:"sender_name"`
	Text       string `json:"text"`
}

// WebSocket handles GET /portal/clients/{clientID}/ws. The connection gets
// recent history, then every message and reminder for the client.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	history, err := h.svc.Messages(r.Context(), clientID, historyOnConnect)
	if err != nil {
		h.fail(w, err)
		return
	}
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, clientID, history)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, clientID string, history []Message) {
	ctx := conn.Request().Context()
	_ = websocket.JSON.Send(conn, Event{Type: "history", Messages: history})

	unsubscribe := h.svc.Hub().Subscribe(clientID, func(evt Event) error {
		return websocket.JSON.Send(conn, evt)
	})
	defer unsubscribe()
	h.logger.Info("portal: connection opened", "client_id", clientID)

	for {
		var msg inbound
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("portal: connection closed", "client_id", clientID, "error", err)
			return
		}
		switch msg.Type {
		case "ping":
			_ = websocket.JSON.Send(conn, Event{Type: "pong"})
		case "message":
			if _, err := h.svc.Post(ctx, clientID, msg.SenderName, msg.Text, false); err != nil {
				_ = websocket.JSON.Send(conn, Event{Type: "error", Error: err.Error()})
			}
		}
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrMessageTooLong),
		errors.Is(err, ErrReminderPet), errors.Is(err, ErrClientRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, registry.ErrClientNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, gateway.ErrUnavailable), errors.Is(err, gateway.ErrMalformedResponse):
		h.logger.Warn("portal: reminder generation failed", "error", err)
		writeError(w, http.StatusBadGateway, "reminder service unavailable")
	default:
		h.logger.Error("portal request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
