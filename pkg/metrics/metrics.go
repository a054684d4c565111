package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "nimiqx"

	StatusSuccess = "success"
	StatusError   = "error"
	StatusIdle    = "idle"
)

// Metrics holds the sync engine's collectors. Every method is a no-op on a nil receiver.
type Metrics struct {
	localTip   prometheus.Gauge
	liveHeight prometheus.Gauge

	ticks         *prometheus.CounterVec
	tickDuration  prometheus.Histogram
	blocksWritten prometheus.Counter
	reorgs        prometheus.Counter
	reorgDepth    prometheus.Histogram

	mempoolSize    prometheus.Gauge
	mempoolChanges *prometheus.CounterVec

	notifications *prometheus.CounterVec

	rpcCalls    *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec

	status *Status
}

// New registers every collector with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		localTip: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "local_tip",
			Help:      "Highest block height stored locally",
		}),
		liveHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "live_height",
			Help:      "Latest block height reported by the node",
		}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sync",
			Name:      "ticks_total",
			Help:      "Sync ticks by outcome",
		}, []string{"status"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "sync",
			Name:      "tick_duration_seconds",
			Help:      "Duration of a completed sync tick",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		blocksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sync",
			Name:      "blocks_written_total",
			Help:      "Heights committed to the store",
		}),
		reorgs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sync",
			Name:      "reorgs_total",
			Help:      "Forks rolled back",
		}),
		reorgDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "sync",
			Name:      "reorg_depth_blocks",
			Help:      "Number of stored blocks discarded per fork",
			Buckets:   []float64{1, 2, 3, 5, 10, 20, 50, 100},
		}),
		mempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "mempool",
			Name:      "size",
			Help:      "Tracked pending transactions",
		}),
		mempoolChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "mempool",
			Name:      "changes_total",
			Help:      "Pending transactions added or removed",
		}, []string{"change"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Tip notifications by notifier and outcome",
		}, []string{"notifier", "status"}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Node calls by method and status",
		}, []string{"method", "status"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "duration_seconds",
			Help:      "Node call duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		status: &Status{},
	}

	err := errors.Join(
		reg.Register(m.localTip),
		reg.Register(m.liveHeight),
		reg.Register(m.ticks),
		reg.Register(m.tickDuration),
		reg.Register(m.blocksWritten),
		reg.Register(m.reorgs),
		reg.Register(m.reorgDepth),
		reg.Register(m.mempoolSize),
		reg.Register(m.mempoolChanges),
		reg.Register(m.notifications),
		reg.Register(m.rpcCalls),
		reg.Register(m.rpcDuration),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Status returns the live status snapshot served on /status.
func (m *Metrics) Status() *Status {
	if m == nil {
		return nil
	}
	return m.status
}

// RecordTick records a finished tick. status is StatusSuccess, StatusError or StatusIdle.
func (m *Metrics) RecordTick(status string, durationSeconds float64, err error) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(status).Inc()
	if status != StatusError {
		m.tickDuration.Observe(durationSeconds)
	}
	m.status.recordTick(err)
}

func (m *Metrics) SetHeights(local, live uint64) {
	if m == nil {
		return
	}
	m.localTip.Set(float64(local))
	m.liveHeight.Set(float64(live))
	m.status.setHeights(local, live)
}

func (m *Metrics) SetState(state string) {
	if m == nil {
		return
	}
	m.status.setState(state)
}

func (m *Metrics) AddBlocksWritten(n int) {
	if m == nil {
		return
	}
	m.blocksWritten.Add(float64(n))
}

func (m *Metrics) RecordReorg(depth uint64) {
	if m == nil {
		return
	}
	m.reorgs.Inc()
	m.reorgDepth.Observe(float64(depth))
}

func (m *Metrics) RecordMempool(size, added, removed int) {
	if m == nil {
		return
	}
	m.mempoolSize.Set(float64(size))
	m.mempoolChanges.WithLabelValues("added").Add(float64(added))
	m.mempoolChanges.WithLabelValues("removed").Add(float64(removed))
	m.status.setMempool(size)
}

func (m *Metrics) RecordNotification(notifier string, err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(notifier, statusOf(err)).Inc()
}

// RecordRPCCall records a node call outcome.
func (m *Metrics) RecordRPCCall(method string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	m.rpcCalls.WithLabelValues(method, statusOf(err)).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

func statusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
