package metrics

import (
	"time"

	"github.com/start9labs/appmgr/internal/model"
)

// StatusSource is the minimal view of the daemon's store the collector
// needs. internal/daemon's statusSource satisfies it; keeping the interface here
// (rather than importing internal/daemon) avoids a package cycle.
type StatusSource interface {
	PackageStatuses() (map[model.PackageId]model.MainStatusKind, error)
	BrokenPackageCount() (int, error)
}

// Collector periodically samples daemon-wide gauges that aren't naturally
// updated at the point of the state change (package counts by status,
// broken-package count).
type Collector struct {
	source StatusSource
	stopCh chan struct{}
}

func NewCollector(source StatusSource) *Collector {
	return &Collector{source: source, stopCh: make(chan struct{})}
}

func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectPackageMetrics()
}

func (c *Collector) collectPackageMetrics() {
	statuses, err := c.source.PackageStatuses()
	if err != nil {
		return
	}

	counts := make(map[model.MainStatusKind]int)
	for _, kind := range statuses {
		counts[kind]++
	}
	for _, kind := range []model.MainStatusKind{
		model.MainStatusStopped,
		model.MainStatusStopping,
		model.MainStatusRunning,
		model.MainStatusBackingUp,
		model.MainStatusRestoring,
	} {
		PackagesTotal.WithLabelValues(string(kind)).Set(float64(counts[kind]))
	}

	if broken, err := c.source.BrokenPackageCount(); err == nil {
		BrokenPackagesTotal.Set(float64(broken))
	}
}
