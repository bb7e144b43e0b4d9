package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tetherctl",
			Subsystem: "executor",
			Name:      "commands_total",
			Help:      "Commands executed through the facade.",
		},
		[]string{"endpoint", "outcome"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tetherctl",
			Subsystem: "executor",
			Name:      "command_duration_seconds",
			Help:      "Wall time per command including recovery.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint", "outcome"},
	)
	episodes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tetherctl",
			Subsystem: "recovery",
			Name:      "episodes_total",
			Help:      "Reconnection episodes by terminal outcome.",
		},
		[]string{"endpoint", "outcome"},
	)
	reboots = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tetherctl",
			Subsystem: "recovery",
			Name:      "reboots_detected_total",
			Help:      "Remote reboots detected via boot-token mismatch.",
		},
		[]string{"endpoint"},
	)
	probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tetherctl",
			Subsystem: "recovery",
			Name:      "probes_total",
			Help:      "Reachability probes by result.",
		},
		[]string{"endpoint", "reachable"},
	)
	backoffWaited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tetherctl",
			Subsystem: "recovery",
			Name:      "backoff_seconds_total",
			Help:      "Seconds spent waiting in backoff.",
		},
		[]string{"endpoint"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			commands,
			commandDuration,
			episodes,
			reboots,
			probes,
			backoffWaited,
		)
	})
}

func RecordCommand(endpoint, outcome string, d time.Duration) {
	RegisterMetrics()
	commands.WithLabelValues(endpoint, outcome).Inc()
	commandDuration.WithLabelValues(endpoint, outcome).Observe(d.Seconds())
}

func RecordEpisode(endpoint, outcome string) {
	RegisterMetrics()
	episodes.WithLabelValues(endpoint, outcome).Inc()
}

func RecordReboot(endpoint string) {
	RegisterMetrics()
	reboots.WithLabelValues(endpoint).Inc()
}

func RecordProbe(endpoint string, reachable bool) {
	RegisterMetrics()
	probes.WithLabelValues(endpoint, strconv.FormatBool(reachable)).Inc()
}

func RecordBackoffWait(endpoint string, d time.Duration) {
	RegisterMetrics()
	backoffWaited.WithLabelValues(endpoint).Add(d.Seconds())
}
