package clinic

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/wolfman30/vethome-platform/internal/billing"
	"github.com/wolfman30/vethome-platform/internal/registry"
	"github.com/wolfman30/vethome-platform/pkg/logging"
)

// CostaRica is the clinic's civil time zone (no daylight saving).
var CostaRica = time.FixedZone("CST", -6*60*60)

type Counter interface {
	Counts(ctx context.Context) (registry.Counts, error)
}

type InvoiceLister interface {
	ListInvoices(ctx context.Context) ([]*billing.Invoice, error)
}

// Usage is how much of the current plan the clinic consumes this month.
type Usage struct {
	Plan              Plan    `json:"plan"`
	Clients           int     `json:"clients"`
	Pets              int     `json:"pets"`
	InvoicesThisMonth int     `json:"invoices_this_month"`
	ClientsPct        float64 `json:"clients_pct"`
	InvoicesPct       float64 `json:"invoices_pct"`
	OverLimit         bool    `json:"over_limit"`
}

type Service struct {
	store    Store
	counter  Counter
	invoices InvoiceLister
	now      func() time.Time
	logger   *logging.Logger
}

func NewService(store Store, counter Counter, invoices InvoiceLister, logger *logging.Logger) *Service {
	if store == nil {
		panic("clinic: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, counter: counter, invoices: invoices, now: time.Now, logger: logger}
}

func (s *Service) Profile(ctx context.Context) (*Profile, error) {
	return s.store.Get(ctx)
}

// UpdateProfileRequest is a partial update; nil fields are left unchanged.
type UpdateProfileRequest struct {
	DoctorName *string             `json:"doctor_name,omitempty"`
	ClinicName *string             `json:"clinic_name,omitempty"`
	Email      *string             `json:"email,omitempty"`
	Phone      *string             `json:"phone,omitempty"`
	Address    *string             `json:"address,omitempty"`
	LicenseID  *string             `json:"license_id,omitempty"`
	Tier       *Tier               `json:"tier,omitempty"`
	Status     *SubscriptionStatus `json:"status,omitempty"`
	RenewsOn   *string             `json:"renews_on,omitempty"`
}

func (s *Service) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*Profile, error) {
	p, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}

	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&p.DoctorName, req.DoctorName)
	set(&p.ClinicName, req.ClinicName)
	set(&p.Email, req.Email)
	set(&p.Phone, req.Phone)
	set(&p.Address, req.Address)
	set(&p.LicenseID, req.LicenseID)
	if req.Tier != nil {
		if _, err := PlanFor(*req.Tier); err != nil {
			return nil, err
		}
		p.Tier = *req.Tier
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, ErrUnknownStatus
		}
		p.Status = *req.Status
	}
	if req.RenewsOn != nil {
		if *req.RenewsOn != "" {
			if _, err := time.Parse(time.DateOnly, *req.RenewsOn); err != nil {
				return nil, ErrInvalidRenewal
			}
		}
		p.RenewsOn = *req.RenewsOn
	}
	p.UpdatedAt = s.now().UTC()

	if err := s.store.Set(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("clinic profile updated", "clinic", p.ClinicName, "tier", p.Tier)
	return p, nil
}

// Usage counts clients, pets and this month's issued invoices and tickets
// against the plan limits. Credit notes do not count.
func (s *Service) Usage(ctx context.Context) (Usage, error) {
	p, err := s.store.Get(ctx)
	if err != nil {
		return Usage{}, err
	}
	plan, err := PlanFor(p.Tier)
	if err != nil {
		plan, _ = PlanFor(TierBasic)
	}
	u := Usage{Plan: plan}

	if s.counter != nil {
		counts, err := s.counter.Counts(ctx)
		if err != nil {
			return Usage{}, fmt.Errorf("clinic: count clients: %w", err)
		}
		u.Clients, u.Pets = counts.Clients, counts.Pets
	}
	if s.invoices != nil {
		invoices, err := s.invoices.ListInvoices(ctx)
		if err != nil {
			return Usage{}, fmt.Errorf("clinic: list invoices: %w", err)
		}
		now := s.now().In(CostaRica)
		for _, inv := range invoices {
			if inv.Type == billing.DocumentCreditNote {
				continue
			}
			d := inv.Date.In(CostaRica)
			if d.Year() == now.Year() && d.Month() == now.Month() {
				u.InvoicesThisMonth++
			}
		}
	}

	u.ClientsPct = percent(u.Clients, plan.MaxClients)
	u.InvoicesPct = percent(u.InvoicesThisMonth, plan.MaxInvoicesPerMonth)
	u.OverLimit = (plan.MaxClients > 0 && u.Clients > plan.MaxClients) ||
		(plan.MaxInvoicesPerMonth > 0 && u.InvoicesThisMonth > plan.MaxInvoicesPerMonth)
	return u, nil
}

func percent(used, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return math.Round(float64(used)/float64(limit)*1000) / 10
}
