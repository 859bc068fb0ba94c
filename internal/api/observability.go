package api

import (
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics with bounded cardinality: no per-entity or per-IP labels.
var (
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botgrid_connection_rejected_total",
		Help: "Requests or connections rejected by rate limits, origin or auth checks",
	}, []string{"reason"}) // rate_limit, origin, auth, ws_total_limit, ws_ip_limit

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "botgrid_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"}) // route is the chi pattern, not the URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botgrid_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "botgrid_websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botgrid_websocket_messages_total",
		Help: "Total WebSocket broadcasts sent",
	})

	botDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botgrid_bot_decisions_total",
		Help: "Bot decisions by action",
	}, []string{"action"})
)

// RecordConnectionRejected increments the rejection counter.
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics.
func RecordRequest(method, route string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, route).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// RecordDecision counts one bot decision.
func RecordDecision(action string) {
	botDecisions.WithLabelValues(action).Inc()
}

// UpdateWSConnections updates the WebSocket connection gauge.
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments the WebSocket message counter.
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, route, status, time.Since(start))
	})
}

// CacheCollector exports per-map cache and world counters on every scrape.
type CacheCollector struct {
	maps MapService

	queries    *prometheus.Desc
	swaps      *prometheus.Desc
	throttled  *prometheus.Desc
	coalesced  *prometheus.Desc
	skipped    *prometheus.Desc
	generation *prometheus.Desc
	populate   *prometheus.Desc
	memory     *prometheus.Desc
	dense      *prometheus.Desc
	cells      *prometheus.Desc
	population *prometheus.Desc
	ticks      *prometheus.Desc
	applied    *prometheus.Desc
	rejected   *prometheus.Desc
	queueDepth *prometheus.Desc
}

// NewCacheCollector creates a collector over maps. Register it once.
func NewCacheCollector(maps MapService) *CacheCollector {
	mapLabel := []string{"map"}
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc("botgrid_"+name, help, append(append([]string(nil), mapLabel...), labels...), nil)
	}
	return &CacheCollector{
		maps:       maps,
		queries:    desc("cache_queries_total", "Queries served by the cache"),
		swaps:      desc("cache_swaps_total", "Buffers published"),
		throttled:  desc("cache_throttled_total", "Update calls skipped by the refresh interval"),
		coalesced:  desc("cache_coalesced_total", "Update calls skipped because another update was running"),
		skipped:    desc("cache_skipped_entities_total", "Entities left out of a populate pass"),
		generation: desc("cache_generation", "Generation of the active buffer"),
		populate:   desc("cache_last_populate_seconds", "Duration of the last populate pass"),
		memory:     desc("cache_memory_bytes", "Estimated memory of the active buffer"),
		dense:      desc("cache_dense_baseline_bytes", "Estimated memory of an equivalent dense grid"),
		cells:      desc("cache_active_cells", "Populated cells in the active buffer"),
		population: desc("cache_population", "Snapshots in the active buffer", "kind"),
		ticks:      desc("world_ticks_total", "Simulation ticks"),
		applied:    desc("world_commands_applied_total", "Commands applied"),
		rejected:   desc("world_commands_rejected_total", "Commands rejected"),
		queueDepth: desc("world_queue_depth", "Commands waiting for the next tick"),
	}
}

// Describe implements prometheus.Collector.
func (c *CacheCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.queries, c.swaps, c.throttled, c.coalesced, c.skipped, c.generation, c.populate,
		c.memory, c.dense, c.cells, c.population, c.ticks, c.applied, c.rejected, c.queueDepth,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *CacheCollector) Collect(ch chan<- prometheus.Metric) {
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	for _, ws := range c.maps.Stats() {
		id := strconv.FormatUint(uint64(ws.MapID), 10)
		counter(c.ticks, ws.Ticks, id)
		counter(c.applied, ws.CommandsApplied, id)
		counter(c.rejected, ws.CommandsRejected, id)
		gauge(c.queueDepth, float64(ws.QueueDepth), id)

		cache, err := c.maps.Cache(ws.MapID)
		if err != nil {
			continue // unloaded between the two calls
		}
		s := cache.Stats()
		counter(c.queries, s.QueriesServed, id)
		counter(c.swaps, s.Swaps, id)
		counter(c.throttled, s.Throttled, id)
		counter(c.coalesced, s.Coalesced, id)
		counter(c.skipped, s.Skipped, id)
		gauge(c.generation, float64(s.Generation), id)
		gauge(c.populate, s.LastPopulate.Seconds(), id)
		gauge(c.memory, float64(s.MemoryBytes), id)
		gauge(c.dense, float64(s.DenseBaselineBytes), id)
		gauge(c.cells, float64(s.ActiveCells), id)
		gauge(c.population, float64(s.Creatures), id, "creature")
		gauge(c.population, float64(s.Players), id, "player")
		gauge(c.population, float64(s.Objects), id, "object")
		gauge(c.population, float64(s.Triggers), id, "trigger")
		gauge(c.population, float64(s.Effects), id, "effect")
	}
}

// DebugConfig configures the debug server.
type DebugConfig struct {
	Addr          string // must resolve to a loopback address unless AllowExternal
	AllowExternal bool
	BasicAuthUser string
	BasicAuthPass string
	Gatherer      prometheus.Gatherer // nil uses the default registry
	Logger        *slog.Logger
}

// NewDebugServer builds the pprof, metrics and health server. The caller
// runs ListenAndServe and Shutdown.
func NewDebugServer(cfg DebugConfig) *http.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	addr := cfg.Addr
	if !cfg.AllowExternal && !isLoopback(addr) {
		logger.Warn("⚠️ Debug server forced to localhost", slog.String("requested", addr))
		addr = "127.0.0.1:6060"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	var handler http.Handler = mux
	if cfg.BasicAuthUser != "" {
		handler = basicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
