package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ridge_nodes_total",
			Help: "Total number of nodes by base state",
		},
		[]string{"state"},
	)

	NodesFreeCPU = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ridge_nodes_free_cpu_total",
			Help: "Sum of free CPUs across all nodes",
		},
	)

	JobsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ridge_jobs_total",
			Help: "Total number of jobs by lifecycle state",
		},
		[]string{"state"},
	)

	StepsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ridge_steps_total",
			Help: "Total number of steps by lifecycle state",
		},
		[]string{"state"},
	)

	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ridge_raft_is_leader",
			Help: "Whether this controller is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ridge_raft_peers_total",
			Help: "Total number of Raft peers in the controller group",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ridge_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SchedulingPassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ridge_scheduling_pass_duration_seconds",
			Help:    "Time taken for one scheduler pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	JobsScheduledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ridge_jobs_scheduled_total",
			Help: "Total number of jobs granted an allocation",
		},
	)

	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridge_jobs_failed_total",
			Help: "Total number of jobs that transitioned to FAILED, by reason kind",
		},
		[]string{"kind"},
	)

	LaunchFanoutDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ridge_launch_fanout_duration_seconds",
			Help:    "Time taken to fan out a step launch to all nodes and collect replies",
			Buckets: prometheus.DefBuckets,
		},
	)

	LaunchRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridge_launch_rejected_total",
			Help: "Total number of launch rejections by reason",
		},
		[]string{"reason"},
	)

	PMIBarrierWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ridge_pmi_barrier_wait_duration_seconds",
			Help:    "Time a task spends blocked in a PMI barrier",
			Buckets: prometheus.DefBuckets,
		},
	)

	PMIBarrierPeerLostTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ridge_pmi_barrier_peer_lost_total",
			Help: "Total number of barriers aborted due to a lost peer",
		},
	)

	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridge_api_requests_total",
			Help: "Total number of control-plane RPCs by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ridge_api_request_duration_seconds",
			Help:    "Control-plane RPC duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(
		NodesTotal,
		NodesFreeCPU,
		JobsTotal,
		StepsTotal,
		RaftLeader,
		RaftPeers,
		RaftApplyDuration,
		SchedulingPassDuration,
		JobsScheduledTotal,
		JobsFailedTotal,
		LaunchFanoutDuration,
		LaunchRejectedTotal,
		PMIBarrierWaitDuration,
		PMIBarrierPeerLostTotal,
		APIRequestsTotal,
		APIRequestDuration,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
