// Package health polls the chat service's liveness endpoint and exposes the
// resulting connectivity state.
package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/karthikraju391/rag-chat-client/config"
	"github.com/karthikraju391/rag-chat-client/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// State is the connectivity of the chat service as last observed.
type State int32

const (
	StateUnknown State = iota // no probe has finished yet
	StateUp
	StateDown
)

func (s State) String() string {
	switch s {
	case StateUp:
		return "up"
	case StateDown:
		return "down"
	default:
		return "unknown"
	}
}

var (
	backendUp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ragchat_backend_up",
		Help: "Last liveness probe result: 1 up, 0 down, -1 unknown.",
	})
	probesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ragchat_health_probes_total",
		Help: "Liveness probes by result.",
	}, []string{"result"})
)

func init() {
	backendUp.Set(-1)
	prometheus.MustRegister(backendUp)
	prometheus.MustRegister(probesTotal)
}

type Options struct {
	BaseURL    string
	Timeout    time.Duration // per probe
	Interval   time.Duration // between probes
	HTTPClient *fasthttp.Client
	Logger     *zap.Logger
}

// Monitor probes GET {baseURL}/health once on Start and then on a fixed
// interval. Every probe overwrites the state; there is no hysteresis.
type Monitor struct {
	healthURL string
	timeout   time.Duration
	interval  time.Duration
	http      *fasthttp.Client
	log       *zap.Logger

	state   atomic.Int32
	probeFn func() bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewMonitor(opts Options) *Monitor {
	if opts.BaseURL == "" {
		opts.BaseURL = config.DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = config.DefaultHealthTimeout
	}
	if opts.Interval <= 0 {
		opts.Interval = config.DefaultHealthInterval
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = transport.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	m := &Monitor{
		healthURL: transport.Endpoint(opts.BaseURL, "/health"),
		timeout:   opts.Timeout,
		interval:  opts.Interval,
		http:      opts.HTTPClient,
		log:       opts.Logger.Named("health"),
	}
	m.probeFn = m.Probe
	return m
}

// State returns the current connectivity state.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// Up reports whether the last probe succeeded.
func (m *Monitor) Up() bool { return m.State() == StateUp }

// Probe performs one GET against the liveness path. It is true only for an
// HTTP 200; transport errors and timeouts are swallowed and yield false.
func (m *Monitor) Probe() bool {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(m.healthURL)
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := m.http.DoTimeout(req, resp, m.timeout); err != nil {
		m.log.Debug("health probe failed", zap.String("url", m.healthURL), zap.Error(err))
		return false
	}
	return resp.StatusCode() == fasthttp.StatusOK
}

// Check runs one probe, records the result and returns the new state.
func (m *Monitor) Check() State {
	next := StateDown
	if m.probeFn() {
		next = StateUp
	}
	prev := State(m.state.Swap(int32(next)))

	probesTotal.WithLabelValues(next.String()).Inc()
	if next == StateUp {
		backendUp.Set(1)
	} else {
		backendUp.Set(0)
	}
	if prev != next {
		m.log.Info("backend connectivity changed",
			zap.Stringer("from", prev),
			zap.Stringer("to", next),
			zap.String("url", m.healthURL))
	}
	return next
}

// Start probes immediately and then every interval until ctx is done or the
// returned stop function (equivalently Stop) is called. Starting a running
// monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) (stop func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return m.Stop
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx, m.done)
	return m.Stop
}

// Stop cancels polling and waits for the polling goroutine to exit. It is
// safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	m.Check()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check()
		}
	}
}
