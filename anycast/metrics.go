package anycast

import metrics "github.com/rcrowley/go-metrics"

// connMetrics groups the per-connection counters this package reports
// through rcrowley/go-metrics, a direct dependency of the teacher
// rather than a transitive one — the same library MoacLib/metrics
// wraps internally. None of this is required for correctness; it is
// the same kind of optional observability the teacher's own
// ntpFailureThreshold/contTimeouts bookkeeping represents.
type connMetrics struct {
	registry       metrics.Registry
	sendsFlood     metrics.Counter
	sendsCacheHit  metrics.Counter
	cacheHits      metrics.Counter
	cacheMisses    metrics.Counter
	bufferFull     metrics.Counter
	bindFull       metrics.Counter
	noServerFound  metrics.Counter
	noRoute        metrics.Counter
	requestLatency metrics.Timer
}

func newConnMetrics() *connMetrics {
	r := metrics.NewRegistry()
	return &connMetrics{
		registry:       r,
		sendsFlood:     metrics.GetOrRegisterCounter("anycast.sends.flood", r),
		sendsCacheHit:  metrics.GetOrRegisterCounter("anycast.sends.cache_hit", r),
		cacheHits:      metrics.GetOrRegisterCounter("anycast.cache.hits", r),
		cacheMisses:    metrics.GetOrRegisterCounter("anycast.cache.misses", r),
		bufferFull:     metrics.GetOrRegisterCounter("anycast.errors.buffer_full", r),
		bindFull:       metrics.GetOrRegisterCounter("anycast.errors.bind_full", r),
		noServerFound:  metrics.GetOrRegisterCounter("anycast.timeouts.no_server_found", r),
		noRoute:        metrics.GetOrRegisterCounter("anycast.timeouts.no_route", r),
		requestLatency: metrics.GetOrRegisterTimer("anycast.request.latency", r),
	}
}
