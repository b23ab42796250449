package metrics

import (
	"time"
)

// VolumeSnapshot is the subset of pool.Volume state the collector needs.
type VolumeSnapshot struct {
	VolumeID       string
	Healthy        bool
	AvailableSpace int64
}

// QueueDepthSnapshot is one (tenant, status) count from the active cache.
type QueueDepthSnapshot struct {
	TenantID string
	Status   string
	Count    int
}

// Source is implemented by queue.MetricsSource over the storage pool and
// tenant manager so the collector can poll gauges without importing
// either package directly
// (avoids a metrics -> pool -> metrics import cycle).
type Source interface {
	Volumes() []VolumeSnapshot
	QueueDepths() []QueueDepthSnapshot
}

// Collector periodically snapshots pool and queue state into gauges.
type Collector struct {
	source Source
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over the given source.
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a fixed interval.
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

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectVolumeMetrics()
	c.collectQueueDepthMetrics()
}

func (c *Collector) collectVolumeMetrics() {
	volumes := c.source.Volumes()

	healthy := 0
	var available int64
	for _, v := range volumes {
		if !v.Healthy {
			continue
		}
		healthy++
		available += v.AvailableSpace
	}

	VolumesHealthy.Set(float64(healthy))
	CapacityAvailableBytes.Set(float64(available))
}

func (c *Collector) collectQueueDepthMetrics() {
	for _, d := range c.source.QueueDepths() {
		QueueDepth.WithLabelValues(d.TenantID, d.Status).Set(float64(d.Count))
	}
}
