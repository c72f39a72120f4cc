package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ArmsTotal tracks arm cycles issued to trigger groups, including rearms.
var ArmsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "triggersync_arms_total",
		Help: "Total arm cycles issued to trigger groups",
	},
	[]string{"group", "trigger_type"},
)

// RearmsTotal tracks automatic rearms of free-running multi-instrument groups.
var RearmsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "triggersync_rearms_total",
		Help: "Total automatic rearms of free-running multi-instrument groups",
	},
	[]string{"group"},
)

// StopsTotal tracks stop requests.
var StopsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "triggersync_stops_total",
		Help: "Total stop requests",
	},
	[]string{"group"},
)

// DownloadsTotal tracks completed group-wide download passes.
var DownloadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "triggersync_downloads_total",
		Help: "Total group-wide download passes",
	},
	[]string{"group"},
)

// DownloadFailuresTotal tracks per-instrument download failures.
var DownloadFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "triggersync_download_failures_total",
		Help: "Total per-instrument download failures",
	},
	[]string{"group", "instrument"},
)

// HardwareErrorsTotal tracks per-instrument hardware communication failures by operation.
var HardwareErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "triggersync_hardware_errors_total",
		Help: "Total per-instrument hardware communication failures",
	},
	[]string{"group", "op"},
)

// TriggerTimeoutsTotal tracks armed groups stopped because they never triggered.
var TriggerTimeoutsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "triggersync_trigger_timeouts_total",
		Help: "Total armed groups stopped after the trigger timeout",
	},
	[]string{"group"},
)

// GroupInstruments tracks the number of instruments in a group.
var GroupInstruments = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "triggersync_group_instruments",
		Help: "Current number of instruments in the group",
	},
	[]string{"group"},
)

// AcquisitionState tracks the acquisition state (value 1 for current state, 0 otherwise).
var AcquisitionState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "triggersync_acquisition_state",
		Help: "Acquisition state (1 for current state, 0 otherwise)",
	},
	[]string{"group", "state"},
)

// ActiveGroups tracks the number of groups a session is currently driving.
var ActiveGroups = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "triggersync_active_groups",
		Help: "Current number of active trigger groups",
	},
	[]string{"session"},
)

// TriggerWait tracks time from arm until every member reported data.
var TriggerWait = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "triggersync_trigger_wait_seconds",
		Help:    "Time from arm until all members reported a waveform",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"group"},
)

// DownloadDuration tracks the length of group-wide download passes.
var DownloadDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "triggersync_download_duration_seconds",
		Help:    "Time spent downloading waveforms from all members",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"group"},
)
