package amqp091

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var durationBuckets = []float64{
	0.000005, 0.00001, 0.00025, 0.0005, 0.001, 0.025, 0.05, 0.1, 0.2, 0.5, 1.0,
}

// Metrics is the observability sink for one or more connections. All
// methods are nil-receiver safe: without a sink, measurements are not
// taken.
type Metrics struct {
	pushFrames    prometheus.Histogram
	loopDuration  prometheus.Histogram
	writeDuration prometheus.Histogram
	readDuration  prometheus.Histogram

	bytesWritten prometheus.Counter
	bytesRead    prometheus.Counter

	framesNormal    prometheus.Gauge
	framesRetry     prometheus.Gauge
	framesLowPrio   prometheus.Gauge
	expectedReplies prometheus.Gauge
}

// NewMetrics builds and registers the sink's collectors against reg.
// Tests inject their own registry to avoid cross-test contamination;
// production callers typically pass prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer, constLabels prometheus.Labels) (*Metrics, error) {
	m := &Metrics{
		pushFrames: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "amqp091_frames_push_duration_seconds",
			Help:        "Time taken to push frames onto the outbound queue.",
			ConstLabels: constLabels,
			Buckets:     durationBuckets,
		}),
		loopDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "amqp091_loop_duration_seconds",
			Help:        "Time taken by one I/O loop iteration.",
			ConstLabels: constLabels,
			Buckets:     durationBuckets,
		}),
		writeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "amqp091_loop_write_duration_seconds",
			Help:        "Time taken writing to the socket.",
			ConstLabels: constLabels,
			Buckets:     durationBuckets,
		}),
		readDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "amqp091_loop_read_duration_seconds",
			Help:        "Time taken reading from the socket.",
			ConstLabels: constLabels,
			Buckets:     durationBuckets,
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "amqp091_bytes_written_total",
			Help:        "Bytes written to the socket.",
			ConstLabels: constLabels,
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "amqp091_bytes_read_total",
			Help:        "Bytes read from the socket.",
			ConstLabels: constLabels,
		}),
		framesNormal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "amqp091_frames_normal",
			Help:        "Frames pending on the normal lane.",
			ConstLabels: constLabels,
		}),
		framesRetry: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "amqp091_frames_retry",
			Help:        "Frames pending on the retry lane.",
			ConstLabels: constLabels,
		}),
		framesLowPrio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "amqp091_frames_low_prio",
			Help:        "Frames pending on the low-priority lane.",
			ConstLabels: constLabels,
		}),
		expectedReplies: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "amqp091_expected_replies",
			Help:        "Outstanding expected replies.",
			ConstLabels: constLabels,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.pushFrames, m.loopDuration, m.writeDuration, m.readDuration,
		m.bytesWritten, m.bytesRead,
		m.framesNormal, m.framesRetry, m.framesLowPrio, m.expectedReplies,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observePush(d time.Duration) {
	if m == nil {
		return
	}
	m.pushFrames.Observe(d.Seconds())
}

func (m *Metrics) observeLoop(d time.Duration) {
	if m == nil {
		return
	}
	m.loopDuration.Observe(d.Seconds())
}

func (m *Metrics) observeWrite(d time.Duration, bytes int) {
	if m == nil {
		return
	}
	m.writeDuration.Observe(d.Seconds())
	m.bytesWritten.Add(float64(bytes))
}

func (m *Metrics) observeRead(d time.Duration, bytes int) {
	if m == nil {
		return
	}
	m.readDuration.Observe(d.Seconds())
	m.bytesRead.Add(float64(bytes))
}

func (m *Metrics) setNormalDepth(n int) {
	if m == nil {
		return
	}
	m.framesNormal.Set(float64(n))
}

func (m *Metrics) setRetryDepth(n int) {
	if m == nil {
		return
	}
	m.framesRetry.Set(float64(n))
}

func (m *Metrics) setLowPrioDepth(n int) {
	if m == nil {
		return
	}
	m.framesLowPrio.Set(float64(n))
}

func (m *Metrics) setExpectedReplies(n int) {
	if m == nil {
		return
	}
	m.expectedReplies.Set(float64(n))
}
