package metrics

import "github.com/prometheus/client_golang/prometheus"

// GatewayMetrics tracks external gateway calls by outcome.
type GatewayMetrics struct {
	callsTotal  *prometheus.CounterVec
	callLatency *prometheus.HistogramVec
}

func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	m := &GatewayMetrics{
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vethome",
			Subsystem: "gateway",
			Name:      "calls_total",
			Help:      "External gateway calls by call name and outcome (ok, fallback, error)",
		}, []string{"call", "outcome"}),
		callLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vethome",
			Subsystem: "gateway",
			Name:      "call_latency_seconds",
			Help:      "Latency of external gateway calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.callsTotal, m.callLatency)
	return m
}

func (m *GatewayMetrics) ObserveCall(call, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(call, outcome).Inc()
	m.callLatency.WithLabelValues(call).Observe(seconds)
}

// BillingMetrics counts fiscal documents and payments.
type BillingMetrics struct {
	documentsTotal *prometheus.CounterVec
	paymentsTotal  prometheus.Counter
}

func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	m := &BillingMetrics{
		documentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vethome",
			Subsystem: "billing",
			Name:      "documents_total",
			Help:      "Fiscal documents by type (FE, TE, NC, quote) and result",
		}, []string{"type", "result"}),
		paymentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vethome",
			Subsystem: "billing",
			Name:      "payments_registered_total",
			Help:      "Payments registered against receivables",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.documentsTotal, m.paymentsTotal)
	return m
}

func (m *BillingMetrics) ObserveDocument(docType, result string) {
	if m == nil {
		return
	}
	m.documentsTotal.WithLabelValues(docType, result).Inc()
}

func (m *BillingMetrics) ObservePayment() {
	if m == nil {
		return
	}
	m.paymentsTotal.Inc()
}

// CampaignMetrics tracks notification campaign drafting and delivery.
type CampaignMetrics struct {
	tasksTotal *prometheus.CounterVec
}

func NewCampaignMetrics(reg prometheus.Registerer) *CampaignMetrics {
	m := &CampaignMetrics{
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vethome",
			Subsystem: "campaign",
			Name:      "tasks_total",
			Help:      "Campaign task transitions by state and channel",
		}, []string{"state", "channel"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.tasksTotal)
	return m
}

func (m *CampaignMetrics) ObserveTask(state, channel string) {
	if m == nil {
		return
	}
	if channel == "" {
		channel = "none"
	}
	m.tasksTotal.WithLabelValues(state, channel).Inc()
}
