package capture

import (
	"context"
	"image"
	"log/slog"
	"sync/atomic"
	"time"
)

const statsLogInterval = 5 * time.Second

// Stats summarises capture behaviour for instrumentation.
type Stats struct {
	Captures    uint64
	Failures    uint64
	AvgCapture  time.Duration
	LastCapture time.Time
}

// Meter wraps a Provider and records capture counts and latency. The polling
// loop performs one capture per iteration, so these numbers double as an
// iteration profile.
type Meter struct {
	inner  Provider
	logger *slog.Logger

	captures     atomic.Uint64
	failures     atomic.Uint64
	captureNanos atomic.Uint64
	lastCapture  atomic.Int64 // unix nanos
	lastLog      atomic.Int64 // unix nanos
}

// NewMeter wraps inner. logger may be nil to disable the periodic debug log.
func NewMeter(inner Provider, logger *slog.Logger) *Meter {
	return &Meter{inner: inner, logger: logger}
}

func (m *Meter) Capture(ctx context.Context, region *image.Rectangle) (*image.RGBA, error) {
	start := time.Now()
	img, err := m.inner.Capture(ctx, region)
	if err != nil {
		m.failures.Add(1)
		return nil, err
	}
	m.captures.Add(1)
	m.captureNanos.Add(uint64(time.Since(start).Nanoseconds()))
	m.lastCapture.Store(start.UnixNano())
	m.maybeLog(start)
	return img, nil
}

func (m *Meter) ViewportSize(ctx context.Context) (int, int, error) {
	return m.inner.ViewportSize(ctx)
}

func (m *Meter) Stats() Stats {
	captures := m.captures.Load()
	total := m.captureNanos.Load()
	var avg time.Duration
	if captures > 0 {
		avg = time.Duration(total / captures)
	}
	var last time.Time
	if ns := m.lastCapture.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}
	return Stats{
		Captures:    captures,
		Failures:    m.failures.Load(),
		AvgCapture:  avg,
		LastCapture: last,
	}
}

// maybeLog emits the stats at debug level at most once per interval.
func (m *Meter) maybeLog(now time.Time) {
	if m.logger == nil {
		return
	}
	prev := m.lastLog.Load()
	if now.UnixNano()-prev < int64(statsLogInterval) {
		return
	}
	if !m.lastLog.CompareAndSwap(prev, now.UnixNano()) {
		return
	}
	stats := m.Stats()
	m.logger.Debug("capture.stats",
		"captures", stats.Captures,
		"failures", stats.Failures,
		"avg_capture", stats.AvgCapture,
	)
}
