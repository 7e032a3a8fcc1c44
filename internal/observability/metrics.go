package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// OracleCollector bundles Prometheus metrics for the visibility oracle: the
// server-side RPC surface and the client-side query, retry and pool
// behaviour.
type OracleCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	Queries  *prometheus.CounterVec
	Retries  prometheus.Counter
	PoolWait prometheus.Histogram
	PoolBusy prometheus.Gauge
}

// NewOracleCollector registers oracle metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewOracleCollector(reg prometheus.Registerer) (*OracleCollector, error) {
	reg, gatherer := resolveRegistry(reg)

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oracle_rpc_requests_total",
		Help: "Total number of handled oracle RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "oracle_rpc_requests_total")
	if err != nil {
		return nil, err
	}
	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oracle_rpc_duration_seconds",
		Help:    "Oracle RPC latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"service", "method"}), "oracle_rpc_duration_seconds")
	if err != nil {
		return nil, err
	}
	queries, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oracle_queries_total",
		Help: "Visibility queries issued by the planner, labeled by outcome.",
	}, []string{"outcome"}), "oracle_queries_total")
	if err != nil {
		return nil, err
	}
	retries, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oracle_query_retries_total",
		Help: "Visibility query attempts that were retried after a transient failure.",
	}), "oracle_query_retries_total")
	if err != nil {
		return nil, err
	}
	poolWait, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "oracle_pool_wait_seconds",
		Help:    "Time spent waiting for an oracle connection slot.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}), "oracle_pool_wait_seconds")
	if err != nil {
		return nil, err
	}
	poolBusy, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "oracle_pool_connections_in_use",
		Help: "Oracle connection slots currently held.",
	}), "oracle_pool_connections_in_use")
	if err != nil {
		return nil, err
	}

	return &OracleCollector{
		gatherer:     gatherer,
		RPCRequests:  requests,
		RPCDurations: durations,
		Queries:      queries,
		Retries:      retries,
		PoolWait:     poolWait,
		PoolBusy:     poolBusy,
	}, nil
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *OracleCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}
		return resp, err
	}
}

// ObserveQuery counts a finished query. outcome is "ok" or an error class.
func (c *OracleCollector) ObserveQuery(outcome string) {
	if c == nil || c.Queries == nil {
		return
	}
	c.Queries.WithLabelValues(outcome).Inc()
}

// IncRetries counts one retried attempt.
func (c *OracleCollector) IncRetries() {
	if c == nil || c.Retries == nil {
		return
	}
	c.Retries.Inc()
}

// ObservePoolWait records how long an acquire blocked.
func (c *OracleCollector) ObservePoolWait(d time.Duration) {
	if c == nil || c.PoolWait == nil {
		return
	}
	c.PoolWait.Observe(d.Seconds())
}

// SetPoolInUse updates the in-use slot gauge.
func (c *OracleCollector) SetPoolInUse(n int) {
	if c == nil || c.PoolBusy == nil {
		return
	}
	c.PoolBusy.Set(float64(n))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *OracleCollector) Handler() http.Handler {
	var gatherer prometheus.Gatherer
	if c != nil {
		gatherer = c.gatherer
	}
	return metricsHandler(gatherer)
}

func metricsHandler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func resolveRegistry(reg prometheus.Registerer) (prometheus.Registerer, prometheus.Gatherer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	return reg, gatherer
}

// register adds c to reg, returning the already-registered collector of the
// same type when one exists under that name.
func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		var zero T
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return zero, err
	}
	return c, nil
}
