// Package metrics provides Prometheus instrumentation for FlairWarden.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics.
var (
	ModLogEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flairwarden_modlog_entries_total",
		Help: "Total number of mod-log entries seen, by action.",
	}, []string{"action"})

	ActionsEnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flairwarden_actions_enqueued_total",
		Help: "Total number of action rows inserted into the queue.",
	})

	ActionsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flairwarden_actions_completed_total",
		Help: "Total number of actions marked completed, by kind.",
	}, []string{"kind"})

	JobsForceCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flairwarden_jobs_force_completed_total",
		Help: "Total number of jobs force-completed after exhausting retries.",
	})

	PendingActions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flairwarden_pending_actions",
		Help: "Number of action rows currently pending.",
	})
)

// Config metrics.
var (
	ConfigReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flairwarden_config_reloads_total",
		Help: "Total number of community config ingest outcomes, by result.",
	}, []string{"result"})
)

// Supervisor metrics.
var (
	TaskRestartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flairwarden_task_restarts_total",
		Help: "Total number of supervised task restarts, by task.",
	}, []string{"task"})

	RunningTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flairwarden_running_tasks",
		Help: "Number of currently running supervised tasks.",
	})
)
