package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/vethome-platform/internal/registry"
	"github.com/wolfman30/vethome-platform/pkg/logging"
)

type ClientDirectory interface {
	Get(ctx context.Context, id string) (*registry.Client, error)
}

// requireKnownClient answers 404 before any portal handler runs for a client
// that is not in the registry.
func requireKnownClient(clients ClientDirectory, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := strings.TrimSpace(chi.URLParam(r, "clientID"))
			if clientID == "" {
				writeError(w, http.StatusBadRequest, "missing clientID")
				return
			}
			if _, err := clients.Get(r.Context(), clientID); err != nil {
				if errors.Is(err, registry.ErrClientNotFound) {
					writeError(w, http.StatusNotFound, "client not found")
					return
				}
				logger.Error("failed to check portal client", "client_id", clientID, "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
