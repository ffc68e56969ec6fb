package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ParameterWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lipsync_parameter_writes_total",
			Help: "Total number of parameter values written to the model",
		},
		[]string{"source"},
	)

	ParameterDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lipsync_parameter_drops_total",
			Help: "Total number of parameter writes dropped by the protection window",
		},
		[]string{"source"},
	)

	MissingParameters = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lipsync_missing_parameters_total",
			Help: "Total number of writes skipped because the model lacks the parameter",
		},
	)

	DriftCorrections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lipsync_transform_drift_corrections_total",
			Help: "Total number of model transform drifts reverted by the protection monitor",
		},
	)

	ProtectionWindows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lipsync_protection_windows_total",
			Help: "Total number of protection windows opened",
		},
	)

	TickFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lipsync_scheduler_tick_failures_total",
			Help: "Total number of scheduled tasks halted by a failing tick",
		},
		[]string{"task"},
	)

	ScheduledTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lipsync_scheduler_tasks",
			Help: "Number of tasks currently scheduled on the frame loop",
		},
	)

	ClipsPlayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lipsync_clips_played_total",
			Help: "Total number of animation clips started",
		},
		[]string{"kind"},
	)

	RealtimeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lipsync_realtime_sessions_active",
			Help: "Number of active realtime analysis sessions",
		},
	)

	AnalyzedFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lipsync_analyzed_frames_total",
			Help: "Total number of realtime frames analyzed, by detected vowel",
		},
		[]string{"vowel"},
	)
)
