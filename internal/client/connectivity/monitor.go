// Package connectivity tracks whether the service is reachable. The flag it
// keeps decides whether a failed request is reported as offline or as a
// generic network error.
package connectivity

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dmitrijs2005/macrometric/internal/client/metrics"
	"github.com/dmitrijs2005/macrometric/internal/logging"
)

const (
	defaultInterval     = 30 * time.Second
	defaultProbeTimeout = 3 * time.Second
)

// Pinger probes the service health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Monitor struct {
	pinger       Pinger
	interval     time.Duration
	probeTimeout time.Duration
	log          logging.Logger
	onChange     func(online bool)

	online atomic.Bool
}

type Option func(*Monitor)

func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.probeTimeout = d
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

// WithOnChange registers a callback for online/offline transitions.
func WithOnChange(fn func(online bool)) Option {
	return func(m *Monitor) { m.onChange = fn }
}

// New returns a monitor that starts out online.
func New(p Pinger, interval time.Duration, opts ...Option) *Monitor {
	if interval <= 0 {
		interval = defaultInterval
	}
	m := &Monitor{
		pinger:       p,
		interval:     interval,
		probeTimeout: defaultProbeTimeout,
		log:          logging.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.online.Store(true)
	metrics.Online.Set(1)
	return m
}

func (m *Monitor) Online() bool { return m.online.Load() }

// Set records the connectivity state and reports transitions.
func (m *Monitor) Set(online bool) {
	if m.online.Swap(online) == online {
		return
	}
	if online {
		metrics.Online.Set(1)
		m.log.Info(context.Background(), "switched to online mode")
	} else {
		metrics.Online.Set(0)
		m.log.Warn(context.Background(), "switched to offline mode")
	}
	if m.onChange != nil {
		m.onChange(online)
	}
}

// Probe pings once and updates the flag.
func (m *Monitor) Probe(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	err := m.pinger.Ping(pctx)
	if err != nil && ctx.Err() != nil {
		// Shutting down; keep the last known state.
		return m.Online()
	}
	if err != nil {
		m.log.Debug(ctx, "health probe failed", "error", err)
	}
	m.Set(err == nil)
	return err == nil
}

// Run probes every interval while online. While offline it probes on an
// exponential schedule starting well below the interval, so recovery is
// noticed quickly without hammering an unreachable host. It returns when ctx
// is done.
func (m *Monitor) Run(ctx context.Context) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = min(time.Second, m.interval)
	exp.Multiplier = 2
	exp.MaxInterval = m.interval
	exp.MaxElapsedTime = 0
	exp.Reset()

	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next := m.interval
		if !m.Probe(ctx) {
			next = exp.NextBackOff()
		} else {
			exp.Reset()
		}
		timer.Reset(next)
	}
}
