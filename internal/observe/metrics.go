// Package observe records playback metrics through the OpenTelemetry metrics
// API. InitProvider bridges them to a Prometheus registry so they can be
// scraped from /metrics; tests should build Metrics on their own
// MeterProvider with NewMetrics.
package observe

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/glizzus/terminus/internal/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/glizzus/terminus"

// Metrics holds the playback instruments. It is an audio.Listener.
type Metrics struct {
	// Requests counts finished requests by kind and status (played, failed,
	// cancelled).
	Requests metric.Int64Counter
	// Failures counts failed requests by reason.
	Failures metric.Int64Counter
	// PlaybackDuration is the time from the first frame to the end of a
	// request.
	PlaybackDuration metric.Float64Histogram
	// ActiveSessions is observed from the manager; see ObserveSessions.
	ActiveSessions metric.Int64ObservableGauge

	meter metric.Meter

	mu      sync.Mutex
	started map[string]time.Time
}

var _ audio.Listener = (*Metrics)(nil)

var durationBuckets = []float64{
	1, 5, 15, 30, 60, 120, 240, 480, 900,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{
		meter:   m,
		started: make(map[string]time.Time),
	}

	if met.Requests, err = m.Int64Counter("terminus.playback.requests",
		metric.WithDescription("Finished playback requests by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.Failures, err = m.Int64Counter("terminus.playback.failures",
		metric.WithDescription("Failed playback requests by reason."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("terminus.playback.duration",
		metric.WithDescription("Time spent streaming a request."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64ObservableGauge("terminus.sessions.active",
		metric.WithDescription("Guilds with a live playback session."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// SessionCounter reports the number of live sessions.
type SessionCounter interface {
	SessionCount() int
}

// ObserveSessions feeds ActiveSessions from sc on every collection.
func (m *Metrics) ObserveSessions(sc SessionCounter) (metric.Registration, error) {
	return m.meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		o.ObserveInt64(m.ActiveSessions, int64(sc.SessionCount()))
		return nil
	}, m.ActiveSessions)
}

func (m *Metrics) Handle(ev audio.Event) {
	ctx := context.Background()
	id := ev.Request.ID

	if ev.Type == audio.EventStarted {
		m.mu.Lock()
		m.started[id] = ev.At
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	start, ok := m.started[id]
	delete(m.started, id)
	m.mu.Unlock()

	m.Requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", ev.Request.Kind.String()),
		attribute.String("status", status(ev.Type)),
	))
	if ev.Type == audio.EventFailed {
		m.Failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", Reason(ev.Err))))
	}
	if ok && !ev.At.Before(start) {
		m.PlaybackDuration.Record(ctx, ev.At.Sub(start).Seconds())
	}
}

func status(t audio.EventType) string {
	switch t {
	case audio.EventFinished:
		return "played"
	default:
		return t.String()
	}
}

// Reason is a low-cardinality label for a playback error.
func Reason(err error) string {
	switch kind := audio.KindOf(err); {
	case errors.Is(kind, audio.ErrConnectionFailed):
		return "connection_failed"
	case errors.Is(kind, audio.ErrTranscoderSpawnFailed):
		return "transcoder_spawn_failed"
	case errors.Is(kind, audio.ErrTranscoderExitedNonZero):
		return "transcoder_exited_non_zero"
	case errors.Is(kind, audio.ErrTranscoderTimeout):
		return "transcoder_timeout"
	case errors.Is(kind, audio.ErrWriteFailed):
		return "write_failed"
	case errors.Is(kind, audio.ErrSourceNotFound):
		return "source_not_found"
	case errors.Is(kind, audio.ErrClipNotFound):
		return "clip_not_found"
	case errors.Is(kind, audio.ErrInvalidChannel):
		return "invalid_channel"
	case errors.Is(kind, audio.ErrNoClientBound):
		return "no_client_bound"
	default:
		return "unknown"
	}
}
