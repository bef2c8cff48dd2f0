package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the system and application registries and their HTTP servers.
type Metrics struct {
	// SystemServer serves /metrics for runtime collectors. Nil when disabled.
	SystemServer *http.Server

	// ApplicationServer serves /metrics for event-bus series. Nil when disabled.
	ApplicationServer *http.Server

	SystemRegistry      *prometheus.Registry
	ApplicationRegistry *prometheus.Registry

	namespace string

	// wrappedApplicationRegisterer adds the service label to every series.
	wrappedApplicationRegisterer prometheus.Registerer
}

// NewMetrics builds both registries. Servers are created here but only
// started by RegisterMetricsLifecycle.
//
// When the application endpoint is disabled the registry still exists so that
// observers can be created; its series are simply never served.
func NewMetrics(cfg Config) *Metrics {
	m := &Metrics{namespace: cfg.Namespace}
	if m.namespace == "" {
		m.namespace = "eventbus"
	}
	serviceLabel := prometheus.Labels{"service": cfg.ServiceName}

	systemAddr := DefaultSystemMetricsAddress
	if cfg.SystemMetricsAddress != nil {
		systemAddr = *cfg.SystemMetricsAddress
	}
	if systemAddr != "" {
		systemRegistry := prometheus.NewRegistry()
		prometheus.WrapRegistererWith(serviceLabel, systemRegistry).MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewBuildInfoCollector(),
		)

		m.SystemRegistry = systemRegistry
		m.SystemServer = newServer(systemAddr, systemRegistry)
	}

	appAddr := DefaultApplicationMetricsAddress
	if cfg.ApplicationMetricsAddress != nil {
		appAddr = *cfg.ApplicationMetricsAddress
	}
	m.ApplicationRegistry = prometheus.NewRegistry()
	m.wrappedApplicationRegisterer = prometheus.WrapRegistererWith(serviceLabel, m.ApplicationRegistry)
	if appAddr != "" {
		m.ApplicationServer = newServer(appAddr, m.ApplicationRegistry)
	}

	return m
}

func newServer(addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: mux}
}
