package authority

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/vethome-platform/internal/gateway"
	"github.com/wolfman30/vethome-platform/pkg/logging"
)

// Handler serves the credentials settings screen.
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

// Get handles GET /authority/credentials.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Current(r.Context())
	if err != nil {
		h.logger.Error("failed to load credentials", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load credentials")
		return
	}
	writeJSON(w, http.StatusOK, c.Masked())
}

// Update handles PUT /authority/credentials.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var u Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c, err := h.svc.Update(r.Context(), u)
	if err != nil {
		if errors.Is(err, ErrInvalidEnvironment) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to update credentials", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update credentials")
		return
	}
	writeJSON(w, http.StatusOK, c.Masked())
}

// Connect handles POST /authority/connect.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Connect(r.Context())
	var credErr *CredentialsError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, c.Masked())
	case errors.As(err, &credErr):
		writeError(w, http.StatusUnprocessableEntity, credErr.Reason)
	case errors.Is(err, ErrInvalidUser), errors.Is(err, ErrMissingPassword),
		errors.Is(err, ErrInvalidPIN), errors.Is(err, ErrInvalidEnvironment):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, gateway.ErrUnavailable), errors.Is(err, gateway.ErrMalformedResponse):
		writeError(w, http.StatusBadGateway, "authority unavailable")
	default:
		h.logger.Error("failed to connect to authority", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to connect")
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
