package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-looper/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// SnapshotProvider provides registry snapshots. *core.Registry satisfies it.
type SnapshotProvider interface {
	Snapshot() core.RegistrySnapshot
}

// SnapshotPoller periodically exports registry Snapshot() state into
// Prometheus gauges, one time series per live looper. Queue depth is
// sampled here rather than on the consumer goroutine, so polling cost never
// lands on the loops themselves.
type SnapshotPoller struct {
	interval time.Duration

	registriesMu sync.RWMutex
	registries   map[string]SnapshotProvider

	pending  *prom.GaugeVec
	looping  *prom.GaugeVec
	shutDown *prom.GaugeVec
	executed *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	pending := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "looper",
		Name:      "pending",
		Help:      "Number of pending tasks per looper.",
	}, []string{"registry", "handle"})
	looping := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "looper",
		Name:      "looping",
		Help:      "Loop running state (1=looping, 0=not started).",
	}, []string{"registry", "handle"})
	shutDown := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "looper",
		Name:      "shut_down",
		Help:      "Shutdown flag state (1=shut down, 0=accepting).",
	}, []string{"registry", "handle"})
	executed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "looper",
		Name:      "executed",
		Help:      "Executed task count snapshot per looper.",
	}, []string{"registry", "handle"})

	var err error
	if pending, err = registerCollector(reg, pending); err != nil {
		return nil, err
	}
	if looping, err = registerCollector(reg, looping); err != nil {
		return nil, err
	}
	if shutDown, err = registerCollector(reg, shutDown); err != nil {
		return nil, err
	}
	if executed, err = registerCollector(reg, executed); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:   interval,
		registries: make(map[string]SnapshotProvider),
		pending:    pending,
		looping:    looping,
		shutDown:   shutDown,
		executed:   executed,
	}, nil
}

// AddRegistry adds or replaces a registry snapshot provider by name.
func (p *SnapshotPoller) AddRegistry(name string, provider SnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "registry")
	p.registriesMu.Lock()
	p.registries[name] = provider
	p.registriesMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.registriesMu.RLock()
	defer p.registriesMu.RUnlock()

	for name, provider := range p.registries {
		snap := provider.Snapshot()
		// Terminated handles drop out of the snapshot; their series go
		// stale rather than being deleted. Acceptable for a poller that
		// mirrors live state.
		for _, stats := range snap.Loopers {
			handle := stats.Handle.String()
			p.pending.WithLabelValues(name, handle).Set(float64(stats.Pending))
			p.executed.WithLabelValues(name, handle).Set(float64(stats.Executed))
			if stats.Looping {
				p.looping.WithLabelValues(name, handle).Set(1)
			} else {
				p.looping.WithLabelValues(name, handle).Set(0)
			}
			if stats.ShutDown {
				p.shutDown.WithLabelValues(name, handle).Set(1)
			} else {
				p.shutDown.WithLabelValues(name, handle).Set(0)
			}
		}
	}
}
