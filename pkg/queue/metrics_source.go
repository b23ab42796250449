package queue

import (
	"github.com/cuemby/filequeue/pkg/metrics"
	"github.com/cuemby/filequeue/pkg/pool"
	"github.com/cuemby/filequeue/pkg/tenant"
)

// MetricsSource adapts a pool and tenant manager to metrics.Source, so
// a metrics.Collector can poll volume and per-tenant queue-depth
// gauges without the metrics package importing either one.
type MetricsSource struct {
	pool    *pool.Pool
	tenants *tenant.Manager
}

func NewMetricsSource(p *pool.Pool, tenants *tenant.Manager) *MetricsSource {
	return &MetricsSource{pool: p, tenants: tenants}
}

func (s *MetricsSource) Volumes() []metrics.VolumeSnapshot {
	return s.pool.Volumes()
}

// QueueDepths counts each currently-open tenant's non-terminal items
// by status. Only islands open in the manager are counted: a tenant
// whose island is not open (including one the reconciler opened only
// for its own pass and then closed) reports no depth.
func (s *MetricsSource) QueueDepths() []metrics.QueueDepthSnapshot {
	var out []metrics.QueueDepthSnapshot
	for _, isl := range s.tenants.Islands() {
		counts := make(map[string]int)
		for _, item := range isl.Metadata.ListNonTerminal() {
			counts[string(item.Status)]++
		}
		for status, n := range counts {
			out = append(out, metrics.QueueDepthSnapshot{
				TenantID: isl.TenantID,
				Status:   status,
				Count:    n,
			})
		}
	}
	return out
}
