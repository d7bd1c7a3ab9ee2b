// Package observe wires Dinevox's observability: OpenTelemetry metric
// instruments, trace propagation, structured logging, and the HTTP
// middleware that stitches them onto the call server.
//
// Everything records through the OTel API; [InitProvider] bridges the
// meter provider to a Prometheus exporter so /metrics scraping keeps
// working. Production code reads [DefaultMetrics] once at startup.
// Tests construct their own [Metrics] over a manual reader so counters
// never leak between cases.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for every Dinevox instrument.
const meterName = "github.com/rnmehta/dinevox"

// latencyBuckets spans the range a caller notices on the phone: 10ms
// barge-in detection up to a 10s stalled turn. Seconds.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// Metrics bundles the instruments for the voice pipeline. OTel
// instruments synchronise internally, so the struct needs no lock.
type Metrics struct {
	// Per-stage latency histograms. TurnDuration runs from final
	// transcript to reply text.
	STTDuration  metric.Float64Histogram
	LLMDuration  metric.Float64Histogram
	TTSDuration  metric.Float64Histogram
	TurnDuration metric.Float64Histogram

	// Provider call accounting, attributed by provider name and kind.
	ProviderRequests metric.Int64Counter
	ProviderErrors   metric.Int64Counter

	// Dialog outcomes: which intents the cascade resolved, how often a
	// turn escaped to the fallback LLM, how many orders were placed.
	IntentClassifications metric.Int64Counter
	LLMDeferrals          metric.Int64Counter
	OrdersFinalized       metric.Int64Counter

	// ActiveCalls is the live session gauge.
	ActiveCalls metric.Int64UpDownCounter

	HTTPRequestDuration metric.Float64Histogram
}

// NewMetrics registers every instrument on the given provider. The
// first instrument-creation failure aborts the whole construction.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	var firstErr error

	latency := func(name, desc string) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return h
	}
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return c
	}

	met := &Metrics{
		STTDuration:           latency("dinevox.stt.duration", "Latency of speech-to-text transcription."),
		LLMDuration:           latency("dinevox.llm.duration", "Latency of fallback-LLM inference."),
		TTSDuration:           latency("dinevox.tts.duration", "Latency of text-to-speech synthesis."),
		TurnDuration:          latency("dinevox.turn.duration", "End-to-end dialog turn latency."),
		ProviderRequests:      counter("dinevox.provider.requests", "Total provider API requests by provider, kind, and status."),
		ProviderErrors:        counter("dinevox.provider.errors", "Total provider errors by provider and kind."),
		IntentClassifications: counter("dinevox.intent.classifications", "Total classified turns by intent."),
		LLMDeferrals:          counter("dinevox.llm.deferrals", "Total turns deferred to the fallback LLM."),
		OrdersFinalized:       counter("dinevox.orders.finalized", "Total successfully placed orders."),
	}

	gauge, err := meter.Int64UpDownCounter("dinevox.active_calls",
		metric.WithDescription("Number of live call sessions."))
	if err != nil && firstErr == nil {
		firstErr = err
	}
	met.ActiveCalls = gauge

	httpHist, err := meter.Float64Histogram("dinevox.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"))
	if err != nil && firstErr == nil {
		firstErr = err
	}
	met.HTTPRequestDuration = httpHist

	if firstErr != nil {
		return nil, firstErr
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics lazily builds the process-wide [Metrics] over the
// global meter provider. The global provider never fails instrument
// creation, so a failure here panics rather than returning an error
// every caller would have to thread through.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		met, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: default metrics: " + err.Error())
		}
		defaultMetrics = met
	})
	return defaultMetrics
}

// Attr shortens [attribute.String] at recording sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest counts one provider call with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("kind", kind),
		Attr("status", status),
	))
}

// RecordProviderError counts one provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("kind", kind),
	))
}

// RecordIntent counts one classified turn.
func (m *Metrics) RecordIntent(ctx context.Context, intent string) {
	m.IntentClassifications.Add(ctx, 1, metric.WithAttributes(Attr("intent", intent)))
}
