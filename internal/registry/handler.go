package registry

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/vethome-platform/pkg/logging"
)

const maxUploadBytes = 16 << 20

// Handler handles HTTP requests for clients and pets
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

// RegisterClient handles POST /clients
func (h *Handler) RegisterClient(w http.ResponseWriter, r *http.Request) {
	var req RegisterClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c, err := h.svc.RegisterClient(r.Context(), req)
	if err != nil {
		h.fail(w, err, "failed to register client")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ListClients handles GET /clients
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.svc.List(r.Context())
	if err != nil {
		h.fail(w, err, "failed to list clients")
		return
	}
	writeClients(w, clients)
}

// SearchClients handles GET /clients/search?q=
func (h *Handler) SearchClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.svc.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, err, "failed to search clients")
		return
	}
	writeClients(w, clients)
}

// GetClient handles GET /clients/{clientID}
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Get(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		h.fail(w, err, "failed to get client")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// LookupIdentity handles POST /clients/lookup-identity
func (h *Handler) LookupIdentity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NationalID string `json:"national_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := h.svc.LookupIdentity(r.Context(), req.NationalID)
	if errors.Is(err, ErrInvalidNationalID) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Warn("identity lookup failed", "error", err)
		writeError(w, http.StatusBadGateway, "civil registry unavailable")
		return
	}
	writeJSON(w, http.StatusOK, id)
}

// AddPet handles POST /clients/{clientID}/pets
func (h *Handler) AddPet(w http.ResponseWriter, r *http.Request) {
	var req AddPetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	pet, err := h.svc.AddPet(r.Context(), chi.URLParam(r, "clientID"), req)
	if err != nil {
		h.fail(w, err, "failed to add pet")
		return
	}
	writeJSON(w, http.StatusCreated, pet)
}

// AddMedicalEntry handles POST /clients/{clientID}/pets/{petID}/history.
// It accepts either a JSON body or a multipart form with "attachments" files.
func (h *Handler) AddMedicalEntry(w http.ResponseWriter, r *http.Request) {
	var req AddMedicalEntryRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		parsed, err := parseMultipartEntry(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req = parsed
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.svc.AddMedicalEntry(r.Context(), chi.URLParam(r, "clientID"), chi.URLParam(r, "petID"), req)
	if err != nil {
		h.fail(w, err, "failed to add medical entry")
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// AddVaccination handles POST /clients/{clientID}/pets/{petID}/vaccinations
func (h *Handler) AddVaccination(w http.ResponseWriter, r *http.Request) {
	var req AddVaccinationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	v, err := h.svc.AddVaccination(r.Context(), chi.URLParam(r, "clientID"), chi.URLParam(r, "petID"), req)
	if err != nil {
		h.fail(w, err, "failed to add vaccination")
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// Breeds handles GET /breeds/{species}
func (h *Handler) Breeds(w http.ResponseWriter, r *http.Request) {
	breeds, ok := Breeds(Species(chi.URLParam(r, "species")))
	if !ok {
		writeError(w, http.StatusNotFound, ErrInvalidSpecies.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"breeds": breeds})
}

func (h *Handler) fail(w http.ResponseWriter, err error, msg string) {
	switch {
	case IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrClientNotFound), errors.Is(err, ErrPetNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error(msg, "error", err)
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func parseMultipartEntry(r *http.Request) (AddMedicalEntryRequest, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return AddMedicalEntryRequest{}, errors.New("invalid multipart form")
	}
	req := AddMedicalEntryRequest{
		Reason:    r.FormValue("reason"),
		Diagnosis: r.FormValue("diagnosis"),
		Treatment: r.FormValue("treatment"),
	}
	if raw := strings.TrimSpace(r.FormValue("date")); raw != "" {
		date, err := parseDate(raw)
		if err != nil {
			return AddMedicalEntryRequest{}, ErrInvalidDate
		}
		req.Date = &date
	}
	for _, fh := range r.MultipartForm.File["attachments"] {
		f, err := fh.Open()
		if err != nil {
			return AddMedicalEntryRequest{}, errors.New("unreadable attachment")
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return AddMedicalEntryRequest{}, errors.New("unreadable attachment")
		}
		req.Attachments = append(req.Attachments, AttachmentUpload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return req, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}

func writeClients(w http.ResponseWriter, clients []*Client) {
	if clients == nil {
		clients = []*Client{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": clients, "count": len(clients)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
