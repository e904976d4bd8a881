package reports

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vethome-platform/internal/billing"
	"github.com/wolfman30/vethome-platform/internal/clinic"
	"github.com/wolfman30/vethome-platform/internal/scheduling"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func item(qty int, price, tax string) billing.LineItem {
	return billing.LineItem{Quantity: qty, Price: dec(price), Tax: dec(tax)}
}

var june = time.Date(2025, 6, 15, 16, 0, 0, 0, time.UTC)

func sampleInvoices() []*billing.Invoice {
	return []*billing.Invoice{
		{ID: "fe-1", Type: billing.DocumentInvoice, Status: billing.StatusAccepted, Date: june,
			Items: []billing.LineItem{item(2, "10000", "1300"), item(1, "5000", "200")}},
		{ID: "te-1", Type: billing.DocumentTicket, Status: billing.StatusAccepted, Date: june,
			Items: []billing.LineItem{item(1, "3000", "0")}},
		// voided invoice and its credit note cancel out
		{ID: "fe-2", Type: billing.DocumentInvoice, Status: billing.StatusVoided, Date: june,
			Items: []billing.LineItem{item(1, "8000", "1040")}},
		{ID: "nc-1", Type: billing.DocumentCreditNote, Status: billing.StatusAccepted, Date: june,
			Items: []billing.LineItem{item(1, "8000", "1040")}},
		{ID: "fe-3", Type: billing.DocumentInvoice, Status: billing.StatusRejected, Date: june,
			Items: []billing.LineItem{item(1, "99999", "13000")}},
	}
}

func sampleExpenses() []*billing.Expense {
	accepted := june.Add(24 * time.Hour)
	return []*billing.Expense{
		{ID: "e-1", Status: billing.ExpenseAccepted, Tax: dec("900"), AcceptedAt: &accepted},
		{ID: "e-2", Status: billing.ExpensePending, Tax: dec("5000"), CreatedAt: june},
		{ID: "e-3", Status: billing.ExpenseRejected, Tax: dec("700"), CreatedAt: june},
	}
}

func TestSummarizeTaxes(t *testing.T) {
	s, err := SummarizeTaxes(sampleInvoices(), sampleExpenses(), Period{})
	require.NoError(t, err)

	require.Len(t, s.Lines, 3)
	assert.True(t, s.Lines[0].Rate.IsZero())
	assert.True(t, s.Lines[0].Base.Equal(dec("3000")))
	assert.True(t, s.Lines[1].Rate.Equal(dec("0.04")))
	assert.True(t, s.Lines[1].Tax.Equal(dec("200")))
	assert.True(t, s.Lines[2].Rate.Equal(dec("0.13")))
	assert.True(t, s.Lines[2].Base.Equal(dec("20000")), s.Lines[2].Base.String())
	assert.True(t, s.Lines[2].Tax.Equal(dec("2600")), s.Lines[2].Tax.String())

	assert.True(t, s.SalesTax.Equal(dec("2800")), s.SalesTax.String())
	assert.True(t, s.PurchaseTax.Equal(dec("900")))
	assert.True(t, s.Net.Equal(dec("1900")))
	assert.Equal(t, 4, s.Documents)
}

func TestSummarizeTaxes_Period(t *testing.T) {
	// 2025-06-01 02:00 UTC is still May 31 in Costa Rica.
	invoices := []*billing.Invoice{
		{Type: billing.DocumentInvoice, Status: billing.StatusAccepted, Date: time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC),
			Items: []billing.LineItem{item(1, "1000", "130")}},
		{Type: billing.DocumentInvoice, Status: billing.StatusAccepted, Date: june,
			Items: []billing.LineItem{item(1, "2000", "260")}},
	}
	s, err := SummarizeTaxes(invoices, nil, Period{From: "2025-06-01", To: "2025-06-30"})
	require.NoError(t, err)
	assert.True(t, s.SalesTax.Equal(dec("260")))
	assert.Equal(t, 1, s.Documents)

	_, err = SummarizeTaxes(nil, nil, Period{From: "2025-07-01", To: "2025-06-01"})
	assert.ErrorIs(t, err, ErrInvalidPeriod)
	_, err = SummarizeTaxes(nil, nil, Period{From: "junio"})
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestSummarizeTaxes_Empty(t *testing.T) {
	s, err := SummarizeTaxes(nil, nil, Period{})
	require.NoError(t, err)
	assert.Empty(t, s.Lines)
	assert.True(t, s.Net.IsZero())
}

type stubGatherer struct {
	families []*dto.MetricFamily
	err      error
}

func (s stubGatherer) Gather() ([]*dto.MetricFamily, error) { return s.families, s.err }

var _ prometheus.Gatherer = stubGatherer{}

func ptr[T any](v T) *T { return &v }

func latencyMetric(call string, count uint64, buckets ...[2]float64) *dto.Metric {
	m := &dto.Metric{
		Label:     []*dto.LabelPair{{Name: ptr("call"), Value: ptr(call)}},
		Histogram: &dto.Histogram{SampleCount: ptr(count)},
	}
	for _, b := range buckets {
		m.Histogram.Bucket = append(m.Histogram.Bucket, &dto.Bucket{UpperBound: ptr(b[0]), CumulativeCount: ptr(uint64(b[1]))})
	}
	return m
}

func latencyGatherer() stubGatherer {
	return stubGatherer{families: []*dto.MetricFamily{{
		Name: ptr(gatewayLatencyMetric),
		Type: ptr(dto.MetricType_HISTOGRAM),
		Metric: []*dto.Metric{
			latencyMetric("validate_document", 6, [2]float64{1, 3}, [2]float64{2, 5}, [2]float64{3, 6}),
			latencyMetric("batch_message", 4, [2]float64{1, 2}, [2]float64{2, 4}, [2]float64{3, 4}),
		},
	}}}
}

func TestSnapshotGatewayLatency(t *testing.T) {
	lat := snapshotGatewayLatency(latencyGatherer())

	assert.EqualValues(t, 10, lat.Overall.Total)
	require.Len(t, lat.Overall.Buckets, 3)
	assert.EqualValues(t, 5, lat.Overall.Buckets[0].Count)
	assert.EqualValues(t, 4, lat.Overall.Buckets[1].Count)
	assert.EqualValues(t, 1, lat.Overall.Buckets[2].Count)
	// target 9 samples lands at the top of the (1,2] bucket
	assert.InDelta(t, 2000, lat.Overall.P90Ms, 0.001)
	assert.InDelta(t, 2500, lat.Overall.P95Ms, 0.001)

	require.Contains(t, lat.ByCall, "batch_message")
	assert.EqualValues(t, 4, lat.ByCall["batch_message"].Total)
	assert.Empty(t, lat.ByCall["batch_message"].Buckets)
}

func TestSnapshotGatewayLatency_Empty(t *testing.T) {
	assert.Zero(t, snapshotGatewayLatency(stubGatherer{}).Overall.Total)
	assert.Zero(t, snapshotGatewayLatency(stubGatherer{err: errors.New("boom")}).Overall.Total)
}

func TestSnapshotGatewayLatency_Overflow(t *testing.T) {
	g := stubGatherer{families: []*dto.MetricFamily{{
		Name:   ptr(gatewayLatencyMetric),
		Metric: []*dto.Metric{latencyMetric("lookup_identity", 3, [2]float64{1, 1}, [2]float64{5, 2})},
	}}}
	g.families[0].Metric[0].Histogram.Bucket = append(g.families[0].Metric[0].Histogram.Bucket,
		&dto.Bucket{UpperBound: ptr(math.Inf(1)), CumulativeCount: ptr(uint64(3))})

	lat := snapshotGatewayLatency(g)
	require.Len(t, lat.Overall.Buckets, 3)
	assert.Equal(t, ">5.0s", lat.Overall.Buckets[2].Label)
	assert.EqualValues(t, 1, lat.Overall.Buckets[2].Count)
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "0s", formatSeconds(0))
	assert.Equal(t, "0.50s", formatSeconds(0.5))
	assert.Equal(t, "2.5s", formatSeconds(2.5))
	assert.Equal(t, "30s", formatSeconds(30))
}

type fakeLedger struct {
	invoices []*billing.Invoice
	expenses []*billing.Expense
	err      error
}

func (f fakeLedger) ListInvoices(context.Context) ([]*billing.Invoice, error) { return f.invoices, f.err }
func (f fakeLedger) ListExpenses(context.Context) ([]*billing.Expense, error) { return f.expenses, nil }
func (f fakeLedger) Receivables(context.Context) (billing.ReceivablesReport, error) {
	return billing.ReceivablesReport{Count: 2, Total: dec("45200")}, f.err
}

type fakeAgenda struct {
	asked string
	list  []*scheduling.Appointment
}

func (f *fakeAgenda) ListAppointments(_ context.Context, date string) ([]*scheduling.Appointment, error) {
	f.asked = date
	return f.list, nil
}

type fakeUsage struct{}

func (fakeUsage) Usage(context.Context) (clinic.Usage, error) {
	return clinic.Usage{Clients: 12, Pets: 20}, nil
}

func TestService_Dashboard(t *testing.T) {
	agenda := &fakeAgenda{list: []*scheduling.Appointment{
		{ID: "a1", Status: scheduling.StatusPending},
		{ID: "a2", Status: scheduling.StatusConfirmed},
		{ID: "a3", Status: scheduling.StatusPending},
	}}
	svc := NewService(fakeLedger{}, agenda, fakeUsage{}, latencyGatherer(), nil)
	// 03:30 UTC on the 16th is still the 15th in Costa Rica.
	svc.now = func() time.Time { return time.Date(2025, 6, 16, 3, 30, 0, 0, time.UTC) }

	d, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025-06-15", d.Date)
	assert.Equal(t, "2025-06-15", agenda.asked)
	assert.Equal(t, 2, d.PendingToday)
	assert.Equal(t, 2, d.ReceivablesCount)
	assert.True(t, d.ReceivablesTotal.Equal(dec("45200")))
	assert.Equal(t, 12, d.Usage.Clients)
	assert.EqualValues(t, 10, d.GatewayLatency.Overall.Total)
}

func TestService_DashboardError(t *testing.T) {
	svc := NewService(fakeLedger{err: errors.New("db down")}, &fakeAgenda{}, fakeUsage{}, stubGatherer{}, nil)
	_, err := svc.Dashboard(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestHandler(t *testing.T) {
	svc := NewService(fakeLedger{invoices: sampleInvoices(), expenses: sampleExpenses()}, &fakeAgenda{}, fakeUsage{}, stubGatherer{}, nil)
	router := NewHandler(svc, nil).Routes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/taxes?from=2025-06-01&to=2025-06-30", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var summary TaxSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.True(t, summary.Net.Equal(dec("1900")))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/taxes?from=2025-13-01", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"appointments":[]`)
}
