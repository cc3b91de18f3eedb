package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultOK        = "ok"
	ResultFailed    = "failed"
	ResultDiscarded = "discarded"
)

// Sync groups the synchronization collectors. A nil *Sync records nothing.
type Sync struct {
	pulls        *prometheus.CounterVec
	pushes       *prometheus.CounterVec
	rollbacks    *prometheus.CounterVec
	cacheRecords prometheus.Gauge
	pullLatency  prometheus.Histogram
}

func NewSync(reg prometheus.Registerer) *Sync {
	f := promauto.With(reg)
	return &Sync{
		pulls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "repairdesk_sync_pulls_total",
			Help: "Full pulls from the remote backend by result",
		}, []string{"result"}),
		pushes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "repairdesk_sync_pushes_total",
			Help: "Optimistic mutations pushed upstream by operation and result",
		}, []string{"op", "result"}),
		rollbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "repairdesk_sync_rollbacks_total",
			Help: "Optimistic mutations rolled back after a failed push",
		}, []string{"op"}),
		cacheRecords: f.NewGauge(prometheus.GaugeOpts{
			Name: "repairdesk_cache_records",
			Help: "Request records currently held in the local cache",
		}),
		pullLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "repairdesk_sync_pull_duration_seconds",
			Help:    "Duration of full pulls",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (s *Sync) Pull(result string, seconds float64) {
	if s == nil {
		return
	}
	s.pulls.WithLabelValues(result).Inc()
	if result == ResultOK {
		s.pullLatency.Observe(seconds)
	}
}

func (s *Sync) Push(op, result string) {
	if s == nil {
		return
	}
	s.pushes.WithLabelValues(op, result).Inc()
}

func (s *Sync) Rollback(op string) {
	if s == nil {
		return
	}
	s.rollbacks.WithLabelValues(op).Inc()
}

func (s *Sync) CacheRecords(n int) {
	if s == nil {
		return
	}
	s.cacheRecords.Set(float64(n))
}
