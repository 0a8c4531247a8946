package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/apex/log"
)

// ProbeFunc reports whether the network currently looks usable.
type ProbeFunc func(ctx context.Context) bool

// Event is an edge in the connectivity state.
type Event struct {
	Online bool
	At     time.Time
}

// DefaultDebounce is how long connectivity must look up before an online
// edge is reported. Captive portals and flapping radios produce short-lived
// "up" readings that would otherwise trigger pointless sync attempts.
const DefaultDebounce = 3 * time.Second

// DefaultInterval is the probe cadence.
const DefaultInterval = 1 * time.Second

// Monitor watches connectivity with a periodic probe and reports debounced
// offline-to-online edges. Offline edges are reported immediately.
type Monitor struct {
	probe    ProbeFunc
	interval time.Duration
	debounce time.Duration

	mu      sync.Mutex
	online  bool
	upSince time.Time // zero when the last probe was down
	events  chan Event
	stop    chan struct{}
	stopped sync.Once
	now     func() time.Time
}

// NewMonitor creates a monitor. interval and debounce fall back to defaults
// when non-positive.
func NewMonitor(probe ProbeFunc, interval, debounce time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Monitor{
		probe:    probe,
		interval: interval,
		debounce: debounce,
		events:   make(chan Event, 1),
		stop:     make(chan struct{}),
		now:      time.Now,
	}
}

// HTTPProbe returns a ProbeFunc that GETs url and treats any 2xx as up.
func HTTPProbe(url string, timeout time.Duration) ProbeFunc {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode >= 200 && resp.StatusCode < 300
	}
}

// Events returns the edge channel. The channel has capacity one and the
// monitor drops superseded edges, so a slow consumer always sees the latest
// state transition.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Online reports the current debounced state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Start launches the probe loop. Stop with Stop or by cancelling ctx.
func (m *Monitor) Start(ctx context.Context) {
	go m.run(ctx)
}

// Stop halts the probe loop.
func (m *Monitor) Stop() {
	m.stopped.Do(func() { close(m.stop) })
}

func (m *Monitor) run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// check runs one probe and applies the debounce rules: down edges fire
// immediately, up edges fire only after the link has stayed up for the
// debounce window.
func (m *Monitor) check(ctx context.Context) {
	up := m.probe(ctx)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !up {
		m.upSince = time.Time{}
		if m.online {
			m.online = false
			log.Info("Connectivity lost")
			m.emit(Event{Online: false, At: now})
		}
		return
	}

	if m.online {
		return
	}
	if m.upSince.IsZero() {
		m.upSince = now
	}
	if now.Sub(m.upSince) >= m.debounce {
		m.online = true
		log.Info("Connectivity restored")
		m.emit(Event{Online: true, At: now})
	}
}

// emit delivers an edge, replacing any undelivered older one.
func (m *Monitor) emit(e Event) {
	for {
		select {
		case m.events <- e:
			return
		default:
			select {
			case <-m.events:
			default:
			}
		}
	}
}
