package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "insurefire"

	uploadsTotal         = "uploads_total"
	jobTransitionsTotal  = "job_transitions_total"
	frameFetchesTotal    = "frame_fetches_total"
	voiceExchangesTotal  = "voice_exchanges_total"
	voiceExchangeSeconds = "voice_exchange_duration_seconds"

	// Labels
	resultLabel = "result"
	stateLabel  = "state"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultPartial = "partial"
	ResultSkipped = "skipped"
)

var uploadsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      uploadsTotal,
		Help:      "number of media uploads by result",
	},
	[]string{resultLabel},
)

var jobTransitionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      jobTransitionsTotal,
		Help:      "number of job lifecycle state entries",
	},
	[]string{stateLabel},
)

var frameFetchesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      frameFetchesTotal,
		Help:      "number of latest-frame polls by result",
	},
	[]string{resultLabel},
)

var voiceExchangesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      voiceExchangesTotal,
		Help:      "number of voice exchanges by result",
	},
	[]string{resultLabel},
)

var voiceExchangeSecondsMetric = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      voiceExchangeSeconds,
		Help:      "round trip time of voice exchanges",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
	},
)

func IncUploads(result string) {
	uploadsTotalMetric.With(prometheus.Labels{resultLabel: result}).Inc()
}

func IncJobTransition(state string) {
	jobTransitionsTotalMetric.With(prometheus.Labels{stateLabel: state}).Inc()
}

func IncFrameFetches(result string) {
	frameFetchesTotalMetric.With(prometheus.Labels{resultLabel: result}).Inc()
}

func ObserveVoiceExchange(result string, seconds float64) {
	voiceExchangesTotalMetric.With(prometheus.Labels{resultLabel: result}).Inc()
	voiceExchangeSecondsMetric.Observe(seconds)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(uploadsTotalMetric)
	prometheus.MustRegister(jobTransitionsTotalMetric)
	prometheus.MustRegister(frameFetchesTotalMetric)
	prometheus.MustRegister(voiceExchangesTotalMetric)
	prometheus.MustRegister(voiceExchangeSecondsMetric)
}
