package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics records session and engine activity. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler

	sessions    metric.Int64Counter
	transcripts metric.Int64Counter
	faults      metric.Int64Counter
	inference   metric.Float64Histogram
}

// New sets up an otel meter provider exporting to a private prometheus registry.
func New() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("github.com/obiente/translate/livewhisper")

	m := &Metrics{
		provider: provider,
		handler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	if m.sessions, err = meter.Int64Counter("livewhisper_sessions_started",
		metric.WithDescription("Live transcription sessions started")); err != nil {
		return nil, err
	}
	if m.transcripts, err = meter.Int64Counter("livewhisper_transcripts",
		metric.WithDescription("Distinct transcripts delivered to callbacks")); err != nil {
		return nil, err
	}
	if m.faults, err = meter.Int64Counter("livewhisper_engine_faults",
		metric.WithDescription("Engine errors absorbed by the session")); err != nil {
		return nil, err
	}
	if m.inference, err = meter.Float64Histogram("livewhisper_inference",
		metric.WithUnit("s"),
		metric.WithDescription("Model inference latency")); err != nil {
		return nil, err
	}
	return m, nil
}

// Handler serves the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.handler
}

func (m *Metrics) SessionStarted(model, device string) {
	if m == nil {
		return
	}
	m.sessions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("device", device),
	))
}

func (m *Metrics) Transcript() {
	if m == nil {
		return
	}
	m.transcripts.Add(context.Background(), 1)
}

func (m *Metrics) EngineFault(op string) {
	if m == nil {
		return
	}
	m.faults.Add(context.Background(), 1, metric.WithAttributes(attribute.String("op", op)))
}

// ObserveInference implements whisper.InferenceObserver.
func (m *Metrics) ObserveInference(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.inference.Record(context.Background(), d.Seconds(),
		metric.WithAttributes(attribute.Bool("error", err != nil)))
}

func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
