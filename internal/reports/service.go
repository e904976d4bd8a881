package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/vethome-platform/internal/billing"
	"github.com/wolfman30/vethome-platform/internal/clinic"
	"github.com/wolfman30/vethome-platform/internal/scheduling"
	"github.com/wolfman30/vethome-platform/pkg/logging"
)

type Ledger interface {
	ListInvoices(ctx context.Context) ([]*billing.Invoice, error)
	ListExpenses(ctx context.Context) ([]*billing.Expense, error)
	Receivables(ctx context.Context) (billing.ReceivablesReport, error)
}

type Agenda interface {
	ListAppointments(ctx context.Context, date string) ([]*scheduling.Appointment, error)
}

type UsageSource interface {
	Usage(ctx context.Context) (clinic.Usage, error)
}

// Dashboard is the admin landing page.
type Dashboard struct {
	Date             string                    `json:"date"`
	Appointments     []*scheduling.Appointment `json:"appointments"`
	PendingToday     int                       `json:"pending_today"`
	ReceivablesCount int                       `json:"receivables_count"`
	ReceivablesTotal decimal.Decimal           `json:"receivables_total"`
	Usage            clinic.Usage              `json:"usage"`
	GatewayLatency   GatewayLatency            `json:"gateway_latency"`
}

type Service struct {
	ledger   Ledger
	agenda   Agenda
	usage    UsageSource
	gatherer prometheus.Gatherer
	now      func() time.Time
	logger   *logging.Logger
}

func NewService(ledger Ledger, agenda Agenda, usage UsageSource, gatherer prometheus.Gatherer, logger *logging.Logger) *Service {
	if ledger == nil || agenda == nil || usage == nil {
		panic("reports: ledger, agenda and usage required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{ledger: ledger, agenda: agenda, usage: usage, gatherer: gatherer, now: time.Now, logger: logger}
}

func (s *Service) Taxes(ctx context.Context, period Period) (TaxSummary, error) {
	if err := period.validate(); err != nil {
		return TaxSummary{}, err
	}
	invoices, err := s.ledger.ListInvoices(ctx)
	if err != nil {
		return TaxSummary{}, fmt.Errorf("reports: list invoices: %w", err)
	}
	expenses, err := s.ledger.ListExpenses(ctx)
	if err != nil {
		return TaxSummary{}, fmt.Errorf("reports: list expenses: %w", err)
	}
	return SummarizeTaxes(invoices, expenses, period)
}

// Dashboard gathers today's agenda (Costa Rica date), receivables, plan
// usage and gateway latency. The sources are read concurrently.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	d := &Dashboard{Date: s.now().In(clinic.CostaRica).Format(time.DateOnly)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := s.agenda.ListAppointments(gctx, d.Date)
		if err != nil {
			return fmt.Errorf("reports: agenda: %w", err)
		}
		d.Appointments = list
		return nil
	})
	g.Go(func() error {
		r, err := s.ledger.Receivables(gctx)
		if err != nil {
			return fmt.Errorf("reports: receivables: %w", err)
		}
		d.ReceivablesCount, d.ReceivablesTotal = r.Count, r.Total
		return nil
	})
	g.Go(func() error {
		u, err := s.usage.Usage(gctx)
		if err != nil {
			return fmt.Errorf("reports: usage: %w", err)
		}
		d.Usage = u
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if d.Appointments == nil {
		d.Appointments = []*scheduling.Appointment{}
	}
	for _, a := range d.Appointments {
		if a.Status == scheduling.StatusPending {
			d.PendingToday++
		}
	}
	d.GatewayLatency = snapshotGatewayLatency(s.gatherer)
	return d, nil
}
