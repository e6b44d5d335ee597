package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/meshforge/scheduler/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// StatsProvider provides current scheduler stats snapshots.
type StatsProvider interface {
	Stats() core.SchedulerStats
}

// SnapshotPoller periodically exports Stats() snapshots into Prometheus
// gauges, independent of the driver's tick rate.
type SnapshotPoller struct {
	interval time.Duration

	schedulersMu sync.RWMutex
	schedulers   map[string]StatsProvider

	queueDepth *prom.GaugeVec
	poolSize   *prom.GaugeVec
	live       *prom.GaugeVec

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

	queueDepth := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "scheduler",
		Name:      "snapshot_queue_depth",
		Help:      "Polled work queue depth per scheduler handle.",
	}, []string{"scheduler", "queue"})
	poolSize := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "scheduler",
		Name:      "snapshot_pool_workers",
		Help:      "Polled worker count per scheduler handle.",
	}, []string{"scheduler"})
	live := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "scheduler",
		Name:      "snapshot_live",
		Help:      "Handle liveness (1=live, 0=torn down).",
	}, []string{"scheduler"})

	var err error
	if queueDepth, err = registerCollector(reg, queueDepth); err != nil {
		return nil, err
	}
	if poolSize, err = registerCollector(reg, poolSize); err != nil {
		return nil, err
	}
	if live, err = registerCollector(reg, live); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:   interval,
		schedulers: make(map[string]StatsProvider),
		queueDepth: queueDepth,
		poolSize:   poolSize,
		live:       live,
	}, nil
}

// AddScheduler adds or replaces a stats provider by name.
func (p *SnapshotPoller) AddScheduler(name string, provider StatsProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "scheduler")
	p.schedulersMu.Lock()
	p.schedulers[name] = provider
	p.schedulersMu.Unlock()
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
	p.schedulersMu.RLock()
	defer p.schedulersMu.RUnlock()

	for name, provider := range p.schedulers {
		stats := provider.Stats()
		p.queueDepth.WithLabelValues(name, "inbox").Set(float64(stats.Inbox))
		p.queueDepth.WithLabelValues(name, "outbox").Set(float64(stats.Outbox))
		p.queueDepth.WithLabelValues(name, "parallel").Set(float64(stats.Parallel))
		p.queueDepth.WithLabelValues(name, "continuous").Set(float64(stats.Continuous))
		p.queueDepth.WithLabelValues(name, "delete").Set(float64(stats.Delete))
		p.poolSize.WithLabelValues(name).Set(float64(stats.Workers))
		if stats.Live {
			p.live.WithLabelValues(name).Set(1)
		} else {
			p.live.WithLabelValues(name).Set(0)
		}
	}
}
