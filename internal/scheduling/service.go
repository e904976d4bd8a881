package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/vethome-platform/internal/gateway"
	"github.com/wolfman30/vethome-platform/internal/notify"
	"github.com/wolfman30/vethome-platform/internal/observability/metrics"
	"github.com/wolfman30/vethome-platform/internal/registry"
	"github.com/wolfman30/vethome-platform/pkg/logging"
)

var tracer = otel.Tracer("vethome.internal.scheduling")

// ClientDirectory resolves appointment owners; registry.Service implements it.
type ClientDirectory interface {
	Get(ctx context.Context, id string) (*registry.Client, error)
}

// MessageGenerator writes the notification text for one appointment.
type MessageGenerator interface {
	GenerateBatchMessage(ctx context.Context, req gateway.BatchMessageRequest) (gateway.Text, error)
}

type Config struct {
	DoctorName string
	ClinicName string
	// Concurrency bounds parallel message generation. 1 or less drafts one
	// appointment at a time.
	Concurrency int
}

type Deps struct {
	Repo       Repository
	Campaigns  CampaignStore
	Clients    ClientDirectory
	Messages   MessageGenerator
	Dispatcher Dispatcher
	Metrics    *metrics.CampaignMetrics
	Logger     *logging.Logger
}

type Service struct {
	cfg        Config
	repo       Repository
	campaigns  CampaignStore
	clients    ClientDirectory
	messages   MessageGenerator
	dispatcher Dispatcher
	metrics    *metrics.CampaignMetrics
	logger     *logging.Logger
	now        func() time.Time
}

func NewService(cfg Config, deps Deps) *Service {
	if deps.Repo == nil || deps.Campaigns == nil || deps.Clients == nil || deps.Messages == nil {
		panic("scheduling: repo, campaigns, clients and messages are required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = NewSimulatedDispatcher(deps.Campaigns, DefaultSendDelay, deps.Metrics)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Service{
		cfg:        cfg,
		repo:       deps.Repo,
		campaigns:  deps.Campaigns,
		clients:    deps.Clients,
		messages:   deps.Messages,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

// CreateAppointment schedules a visit for a registered pet.
func (s *Service) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (*Appointment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	client, err := s.clients.Get(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	pet, ok := client.Pet(req.PetID)
	if !ok {
		return nil, registry.ErrPetNotFound
	}

	a := &Appointment{
		ID:        uuid.NewString(),
		ClientID:  client.ID,
		PetID:     pet.ID,
		PetName:   pet.Name,
		OwnerName: client.FullName,
		Date:      req.Date,
		Time:      req.Time,
		Reason:    req.Reason,
		Status:    StatusPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info("appointment scheduled", "appointment_id", a.ID, "date", a.Date, "time", a.Time)
	return a, nil
}

// ListAppointments returns the agenda, or one day of it when date is set.
func (s *Service) ListAppointments(ctx context.Context, date string) ([]*Appointment, error) {
	if date == "" {
		return s.repo.List(ctx)
	}
	if !validDate(date) {
		return nil, ErrInvalidDate
	}
	return s.repo.ListByDate(ctx, date)
}

func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (*Appointment, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.repo.UpdateStatus(ctx, id, status)
}

// PrepareCampaign drafts one notification per non-cancelled appointment in
// [start, end]. A failed generation marks its task failed and the rest of the
// batch continues; only cancellation aborts the campaign.
func (s *Service) PrepareCampaign(ctx context.Context, start, end string) (*Campaign, error) {
	ctx, span := tracer.Start(ctx, "scheduling.prepare_campaign")
	defer span.End()

	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	inRange, err := FilterByDateRange(all, start, end)
	if err != nil {
		return nil, err
	}
	targets := inRange[:0]
	for _, a := range inRange {
		if a.Status != StatusCancelled {
			targets = append(targets, a)
		}
	}
	if len(targets) == 0 {
		return nil, ErrNoAppointments
	}
	span.SetAttributes(
		attribute.Int("vethome.campaign.appointments", len(targets)),
		attribute.Int("vethome.campaign.concurrency", s.cfg.Concurrency),
	)

	tasks := make([]*Task, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, a := range targets {
		g.Go(func() error {
			t, err := s.draft(gctx, a)
			if err != nil {
				return err
			}
			tasks[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	c := &Campaign{
		ID:        uuid.NewString(),
		StartDate: start,
		EndDate:   end,
		Status:    CampaignDraft,
		Tasks:     make(map[string]*Task, len(tasks)),
		CreatedAt: s.now().UTC(),
	}
	for _, t := range tasks {
		c.Tasks[t.AppointmentID] = t
		s.metrics.ObserveTask(string(t.State), "")
	}
	if err := s.campaigns.Save(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("campaign prepared", "campaign_id", c.ID, "tasks", len(c.Tasks), "start", start, "end", end)
	return c, nil
}

func (s *Service) draft(ctx context.Context, a *Appointment) (*Task, error) {
	t := &Task{
		AppointmentID: a.ID,
		Recipient:     notify.Recipient{Name: a.OwnerName},
	}
	if client, err := s.clients.Get(ctx, a.ClientID); err == nil {
		t.Recipient.Phone = client.Phone
		t.Recipient.Email = client.Email
	} else {
		s.logger.Warn("campaign recipient lookup failed", "appointment_id", a.ID, "client_id", a.ClientID, "error", err)
	}

	text, err := s.messages.GenerateBatchMessage(ctx, gateway.BatchMessageRequest{
		DoctorName: s.cfg.DoctorName,
		ClinicName: s.cfg.ClinicName,
		OwnerName:  a.OwnerName,
		PetName:    a.PetName,
		Reason:     a.Reason,
		Date:       a.Date,
		Time:       a.Time,
	})
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		t.State = TaskFailed
		t.Error = err.Error()
	case text.Fallback:
		t.State = TaskFallback
		t.Message = text.Value
	default:
		t.State = TaskDrafted
		t.Message = text.Value
	}
	return t, nil
}

func (s *Service) GetCampaign(ctx context.Context, id string) (*Campaign, error) {
	return s.campaigns.Get(ctx, id)
}

// ConfirmCampaign sends every drafted task and closes the campaign. Failed
// tasks are not sent. A campaign can be confirmed once. Once the campaign is
// marked sending, the rest runs to completion even if ctx is cancelled.
func (s *Service) ConfirmCampaign(ctx context.Context, id string) (*Campaign, error) {
	ctx, span := tracer.Start(ctx, "scheduling.confirm_campaign")
	defer span.End()
	span.SetAttributes(attribute.String("vethome.campaign.id", id))

	c, err := s.campaigns.Update(ctx, id, func(c *Campaign) error {
		if c.Status != CampaignDraft {
			return ErrCampaignClosed
		}
		for _, t := range c.Tasks {
			if t.State.Deliverable() {
				t.State = TaskQueued
			}
		}
		c.Status = CampaignSending
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	if err := s.dispatcher.Dispatch(ctx, c); err != nil {
		span.RecordError(err)
		s.reopenCampaign(ctx, id)
		return nil, fmt.Errorf("scheduling: dispatch campaign: %w", err)
	}

	closed, err := s.campaigns.Update(ctx, id, func(c *Campaign) error {
		at := s.now().UTC()
		c.Status = CampaignClosed
		c.ClosedAt = &at
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("campaign confirmed", "campaign_id", id, "tasks", len(closed.Tasks))
	return closed, nil
}

// reopenCampaign puts a campaign whose dispatch failed back in draft so it
// can be confirmed again. Tasks still queued return to drafted; tasks a
// worker already claimed or finished keep their state.
func (s *Service) reopenCampaign(ctx context.Context, id string) {
	if _, err := s.campaigns.Update(ctx, id, func(c *Campaign) error {
		for _, t := range c.Tasks {
			if t.State == TaskQueued {
				t.State = TaskDrafted
			}
		}
		c.Status = CampaignDraft
		return nil
	}); err != nil {
		s.logger.Error("failed to reopen campaign", "error", err, "campaign_id", id)
	}
}
