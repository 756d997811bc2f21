// internal/metrics/prometheus.go
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"sitemonitor/internal/database"
)

// Prometheus metrics
var (
	ProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitemonitor_probe_duration_seconds",
			Help:    "Time spent probing host health-check endpoints",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"site", "result"},
	)

	ProbeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitemonitor_probes_total",
			Help: "Total number of host probes executed",
		},
		[]string{"site", "result"},
	)

	HostHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sitemonitor_host_up",
			Help: "Last probe outcome per host (1=up, 0=down)",
		},
		[]string{"site", "host", "vip"},
	)

	AdapterDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitemonitor_adapter_duration_seconds",
			Help:    "Time spent querying external monitoring backends",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"adapter", "result"},
	)

	AdapterTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitemonitor_adapter_calls_total",
			Help: "Total number of adapter fetches",
		},
		[]string{"adapter", "result"},
	)

	DashboardRenders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitemonitor_dashboards_total",
			Help: "Dashboards assembled, by page and whether the site was found",
		},
		[]string{"page", "found"},
	)

	ActiveSites = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitemonitor_sites_total",
			Help: "Number of configured sites",
		},
	)

	ActiveHosts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitemonitor_hosts_total",
			Help: "Number of configured hosts",
		},
	)

	ActiveMonitors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitemonitor_monitors_total",
			Help: "Number of monitors in the catalog",
		},
	)

	DatabaseOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitemonitor_database_operations_total",
			Help: "Total database operations performed",
		},
		[]string{"operation", "status"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitemonitor_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)
)

type Collector struct {
	store database.Store
}

func NewCollector(store database.Store) *Collector {
	return &Collector{store: store}
}

func (c *Collector) RecordProbe(site string, host *database.Host, up bool, duration time.Duration) {
	result := "down"
	if up {
		result = "up"
	}
	ProbeDuration.WithLabelValues(site, result).Observe(duration.Seconds())
	ProbeTotal.WithLabelValues(site, result).Inc()

	value := 0.0
	if up {
		value = 1
	}
	HostHealth.WithLabelValues(site, host.Name, host.VIP).Set(value)
}

func (c *Collector) RecordAdapter(adapter string, err error, duration time.Duration) {
	result := resultLabel(err == nil)
	AdapterDuration.WithLabelValues(adapter, result).Observe(duration.Seconds())
	AdapterTotal.WithLabelValues(adapter, result).Inc()
}

func (c *Collector) RecordDashboard(page string, found bool) {
	label := "false"
	if found {
		label = "true"
	}
	DashboardRenders.WithLabelValues(page, label).Inc()
}

func (c *Collector) UpdateSystemMetrics(ctx context.Context) error {
	sites, err := c.store.GetSites(ctx)
	if err != nil {
		DatabaseOperations.WithLabelValues("get_sites", "error").Inc()
		return err
	}
	DatabaseOperations.WithLabelValues("get_sites", "success").Inc()
	ActiveSites.Set(float64(len(sites)))

	hosts, err := c.store.GetHosts(ctx, database.HostFilters{})
	if err != nil {
		DatabaseOperations.WithLabelValues("get_hosts", "error").Inc()
		return err
	}
	DatabaseOperations.WithLabelValues("get_hosts", "success").Inc()
	ActiveHosts.Set(float64(len(hosts)))

	monitors, err := c.store.GetMonitors(ctx)
	if err != nil {
		DatabaseOperations.WithLabelValues("get_monitors", "error").Inc()
		return err
	}
	DatabaseOperations.WithLabelValues("get_monitors", "success").Inc()
	ActiveMonitors.Set(float64(len(monitors)))

	return nil
}

func (c *Collector) RecordWebSocketConnection(delta int) {
	WebSocketConnections.Add(float64(delta))
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
