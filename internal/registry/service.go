package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/vethome-platform/internal/gateway"
	"github.com/wolfman30/vethome-platform/pkg/logging"
)

var tracer = otel.Tracer("vethome.registry")

// IdentityLookup resolves a national id against the civil registry.
type IdentityLookup interface {
	LookupIdentity(ctx context.Context, nationalID string) (gateway.Identity, error)
}

// Service applies the registry rules on top of a Repository.
type Service struct {
	repo        Repository
	identity    IdentityLookup
	attachments AttachmentStore
	logger      *logging.Logger
	now         func() time.Time
}

// NewService wires the registry. attachments may be nil, in which case
// uploaded file content is dropped and only metadata is recorded.
func NewService(repo Repository, identity IdentityLookup, attachments AttachmentStore, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, identity: identity, attachments: attachments, logger: logger, now: time.Now}
}

func (s *Service) RegisterClient(ctx context.Context, req RegisterClientRequest) (*Client, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		ID:         uuid.New().String(),
		NationalID: req.NationalID,
		FullName:   req.FullName,
		Email:      req.Email,
		Phone:      req.Phone,
		Address:    req.Address,
		Pets:       []Pet{},
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("client registered", "client_id", c.ID)
	return c, nil
}

// LookupIdentity asks the civil registry for the name behind a national id.
func (s *Service) LookupIdentity(ctx context.Context, nationalID string) (gateway.Identity, error) {
	nationalID = strings.TrimSpace(nationalID)
	if !nationalIDPattern.MatchString(nationalID) {
		return gateway.Identity{}, ErrInvalidNationalID
	}
	return s.identity.LookupIdentity(ctx, nationalID)
}

func (s *Service) Get(ctx context.Context, id string) (*Client, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*Client, error) {
	return s.repo.List(ctx)
}

func (s *Service) Search(ctx context.Context, term string) ([]*Client, error) {
	return s.repo.Search(ctx, term)
}

func (s *Service) Counts(ctx context.Context) (Counts, error) {
	return s.repo.Counts(ctx)
}

func (s *Service) AddPet(ctx context.Context, clientID string, req AddPetRequest) (*Pet, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	pet := &Pet{
		ID:           uuid.New().String(),
		OwnerID:      clientID,
		Name:         req.Name,
		Species:      req.Species,
		Breed:        req.Breed,
		BirthDate:    req.BirthDate,
		WeightKg:     req.WeightKg,
		Vaccinations: []Vaccination{},
		History:      []MedicalEntry{},
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.AddPet(ctx, clientID, pet); err != nil {
		return nil, err
	}
	s.logger.Info("pet added", "client_id", clientID, "pet_id", pet.ID, "species", pet.Species)
	return pet, nil
}

// AddMedicalEntry records a visit at the top of the pet's history.
func (s *Service) AddMedicalEntry(ctx context.Context, clientID, petID string, req AddMedicalEntryRequest) (*MedicalEntry, error) {
	ctx, span := tracer.Start(ctx, "registry.add_medical_entry")
	defer span.End()
	span.SetAttributes(
		attribute.String("registry.client_id", clientID),
		attribute.Int("registry.attachments", len(req.Attachments)),
	)

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensurePet(ctx, clientID, petID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	entry := &MedicalEntry{
		ID:          uuid.New().String(),
		Date:        now,
		Reason:      req.Reason,
		Diagnosis:   strings.TrimSpace(req.Diagnosis),
		Treatment:   strings.TrimSpace(req.Treatment),
		Attachments: make([]Attachment, 0, len(req.Attachments)),
	}
	if req.Date != nil && !req.Date.IsZero() {
		entry.Date = req.Date.UTC()
	}

	for _, up := range req.Attachments {
		a := Attachment{
			ID:          uuid.New().String(),
			Name:        strings.TrimSpace(up.Name),
			ContentType: up.ContentType,
			Size:        int64(len(up.Data)),
			Date:        now,
		}
		if len(up.Data) > 0 && s.attachments != nil {
			url, err := s.attachments.Put(ctx, attachmentKey(clientID, petID, a.ID, a.Name), a.ContentType, up.Data)
			if err != nil {
				span.RecordError(err)
				return nil, fmt.Errorf("registry: store attachment %q: %w", a.Name, err)
			}
			a.URL = url
		}
		entry.Attachments = append(entry.Attachments, a)
	}

	if err := s.repo.AddMedicalEntry(ctx, clientID, petID, entry); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("medical entry added", "client_id", clientID, "pet_id", petID, "attachments", len(entry.Attachments))
	return entry, nil
}

func (s *Service) AddVaccination(ctx context.Context, clientID, petID string, req AddVaccinationRequest) (*Vaccination, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensurePet(ctx, clientID, petID); err != nil {
		return nil, err
	}
	v := &Vaccination{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Date:        req.Date,
		NextDueDate: req.NextDueDate,
	}
	if err := s.repo.AddVaccination(ctx, clientID, petID, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) ensurePet(ctx context.Context, clientID, petID string) error {
	c, err := s.repo.Get(ctx, clientID)
	if err != nil {
		return err
	}
	if _, ok := c.Pet(petID); !ok {
		return ErrPetNotFound
	}
	return nil
}
