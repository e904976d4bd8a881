package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/vethome-platform/internal/gateway"
	"github.com/wolfman30/vethome-platform/pkg/logging"
)

// CodeSearcher looks up CABYS codes online.
type CodeSearcher interface {
	SearchCABYS(ctx context.Context, query string) ([]gateway.CABYSCode, error)
}

// Handler handles HTTP requests for the catalog
type Handler struct {
	repo     Repository
	searcher CodeSearcher
	logger   *logging.Logger
}

func NewHandler(repo Repository, searcher CodeSearcher, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, searcher: searcher, logger: logger}
}

// CreateItem handles POST /catalog/items
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	item, err := h.repo.Create(r.Context(), &req)
	if err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to create catalog item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create item")
		return
	}
	h.logger.Info("catalog item created", "id", item.ID, "code", item.Code)
	writeJSON(w, http.StatusCreated, item)
}

// ListItems handles GET /catalog/items?q=
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.List(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.logger.Error("failed to list catalog", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []*Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// GetItem handles GET /catalog/items/{itemID}
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.repo.Get(r.Context(), chi.URLParam(r, "itemID"))
	if errors.Is(err, ErrItemNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("failed to get catalog item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// SearchCABYS handles GET /catalog/cabys?q=
func (h *Handler) SearchCABYS(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	codes, err := h.searcher.SearchCABYS(r.Context(), q)
	if err != nil {
		h.logger.Warn("cabys search failed", "error", err, "query", q)
		writeError(w, http.StatusBadGateway, "cabys search unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": codes})
}

func isValidationError(err error) bool {
	for _, target := range []error{ErrInvalidType, ErrInvalidCode, ErrInvalidName, ErrInvalidPrice, ErrInvalidTaxRate, ErrInvalidStock} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
