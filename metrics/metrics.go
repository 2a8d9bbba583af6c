package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum-optimism/fitgate/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "fitgate"
)

var (
	Debug                bool = true
	validVerdicts             = []types.Verdict{types.VerdictPass, types.VerdictFail, types.VerdictError}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_total",
		Help:      "Count of completed suite runs by verdict",
	}, []string{
		"suite",
		"verdict",
	})

	invocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "invocations_total",
		Help:      "Count of runner invocations by exit status",
	}, []string{
		"suite",
		"exit_status",
	})

	assertions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "assertions",
		Help:      "Assertion counts of the latest run of a suite",
	}, []string{
		"suite",
		"kind",
	})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of suite runs",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{
		"suite",
	})

	lastRunTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time of the latest completed run of a suite",
	}, []string{
		"suite",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordInvocation(suite string, status types.ExitStatus) {
	if Debug {
		log.Debug("metric inc",
			"m", "invocations_total",
			"suite", suite,
			"exit_status", status)
	}
	invocationsTotal.WithLabelValues(suite, string(status)).Inc()
}

// RecordRun records the outcome of a finished run. Run IDs are left out of the
// labels to keep cardinality bounded in continuous mode.
func RecordRun(suite string, verdict types.Verdict, stats types.Counts, duration time.Duration) {
	if !isValidVerdict(verdict) {
		log.Error("RecordRun - invalid verdict", "verdict", verdict)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "runs_total",
			"suite", suite,
			"verdict", verdict,
			"stats", stats.String())
	}
	runsTotal.WithLabelValues(suite, string(verdict)).Inc()
	assertions.WithLabelValues(suite, string(types.OutcomeRight)).Set(float64(stats.Right))
	assertions.WithLabelValues(suite, string(types.OutcomeWrong)).Set(float64(stats.Wrong))
	assertions.WithLabelValues(suite, string(types.OutcomeIgnored)).Set(float64(stats.Ignored))
	assertions.WithLabelValues(suite, string(types.OutcomeException)).Set(float64(stats.Exceptions))
	runDuration.WithLabelValues(suite).Observe(duration.Seconds())
	lastRunTimestamp.WithLabelValues(suite).SetToCurrentTime()
}

func isValidVerdict(verdict types.Verdict) bool {
	return slices.Contains(validVerdicts, verdict)
}
