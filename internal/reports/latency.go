package reports

import (
	"fmt"
	"math"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const gatewayLatencyMetric = "vethome_gateway_call_latency_seconds"

type LatencyBucket struct {
	LeSeconds float64 `json:"le_seconds"`
	Label     string  `json:"label,omitempty"`
	Count     int64   `json:"count"`
}

// LatencySnapshot summarizes one gateway latency histogram.
type LatencySnapshot struct {
	Total   int64           `json:"total"`
	P90Ms   float64         `json:"p90_ms"`
	P95Ms   float64         `json:"p95_ms"`
	Buckets []LatencyBucket `json:"buckets,omitempty"`
}

// GatewayLatency is the overall gateway latency plus one summary per call.
type GatewayLatency struct {
	Overall LatencySnapshot            `json:"overall"`
	ByCall  map[string]LatencySnapshot `json:"by_call"`
}

type histogram struct {
	count      uint64
	cumulative map[float64]uint64
}

func (h *histogram) add(m *dto.Histogram) {
	h.count += m.GetSampleCount()
	for _, b := range m.Bucket {
		if b == nil {
			continue
		}
		h.cumulative[b.GetUpperBound()] += b.GetCumulativeCount()
	}
}

func newHistogram() *histogram {
	return &histogram{cumulative: map[float64]uint64{}}
}

func snapshotGatewayLatency(gatherer prometheus.Gatherer) GatewayLatency {
	out := GatewayLatency{ByCall: map[string]LatencySnapshot{}}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	families, err := gatherer.Gather()
	if err != nil {
		return out
	}

	var family *dto.MetricFamily
	for _, mf := range families {
		if mf != nil && mf.GetName() == gatewayLatencyMetric {
			family = mf
			break
		}
	}
	if family == nil {
		return out
	}

	overall := newHistogram()
	byCall := map[string]*histogram{}
	for _, metric := range family.Metric {
		if metric == nil || metric.GetHistogram() == nil {
			continue
		}
		call := labelValue(metric, "call")
		if byCall[call] == nil {
			byCall[call] = newHistogram()
		}
		byCall[call].add(metric.GetHistogram())
		overall.add(metric.GetHistogram())
	}

	out.Overall = overall.snapshot(true)
	for call, h := range byCall {
		out.ByCall[call] = h.snapshot(false)
	}
	return out
}

func labelValue(metric *dto.Metric, name string) string {
	for _, lp := range metric.Label {
		if lp != nil && lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func (h *histogram) snapshot(withBuckets bool) LatencySnapshot {
	if h.count == 0 || len(h.cumulative) == 0 {
		return LatencySnapshot{}
	}
	uppers := make([]float64, 0, len(h.cumulative))
	for upper := range h.cumulative {
		uppers = append(uppers, upper)
	}
	sort.Float64s(uppers)

	snap := LatencySnapshot{
		Total: int64(h.count),
		P90Ms: quantile(0.90, h.count, uppers, h.cumulative) * 1000,
		P95Ms: quantile(0.95, h.count, uppers, h.cumulative) * 1000,
	}
	if !withBuckets {
		return snap
	}

	var prev uint64
	var lastFinite float64
	for _, upper := range uppers {
		cum := h.cumulative[upper]
		count := int64(cum)
		if cum >= prev {
			count = int64(cum - prev)
		}
		prev = cum
		if math.IsInf(upper, 1) {
			if count > 0 {
				snap.Buckets = append(snap.Buckets, LatencyBucket{
					LeSeconds: lastFinite,
					Label:     ">" + formatSeconds(lastFinite),
					Count:     count,
				})
			}
			continue
		}
		lastFinite = upper
		snap.Buckets = append(snap.Buckets, LatencyBucket{LeSeconds: upper, Count: count})
	}
	return snap
}

// quantile interpolates linearly inside the bucket holding the q-th sample.
func quantile(q float64, total uint64, uppers []float64, cumulative map[float64]uint64) float64 {
	if total == 0 || q <= 0 {
		return 0
	}
	if q >= 1 {
		for i := len(uppers) - 1; i >= 0; i-- {
			if !math.IsInf(uppers[i], 1) {
				return uppers[i]
			}
		}
		return 0
	}

	target := q * float64(total)
	var prevUpper, prevCum float64
	for _, upper := range uppers {
		cum := float64(cumulative[upper])
		if cum < target {
			prevUpper, prevCum = upper, cum
			continue
		}
		inBucket := cum - prevCum
		if math.IsInf(upper, 1) {
			return prevUpper
		}
		if inBucket <= 0 || upper == prevUpper {
			return upper
		}
		fraction := math.Min(math.Max((target-prevCum)/inBucket, 0), 1)
		return prevUpper + fraction*(upper-prevUpper)
	}
	return uppers[len(uppers)-1]
}

func formatSeconds(seconds float64) string {
	switch {
	case seconds <= 0:
		return "0s"
	case seconds < 1:
		return fmt.Sprintf("%.2fs", seconds)
	case seconds < 10:
		return fmt.Sprintf("%.1fs", seconds)
	default:
		return fmt.Sprintf("%.0fs", seconds)
	}
}
