package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksPlanned tracks tasks created by daily planning
	TasksPlanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_crm_tasks_planned_total",
			Help: "Total number of proactive tasks created by the planner",
		},
		[]string{"type"},
	)

	// PlanningUsers tracks users visited by the last planning run
	PlanningUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oracle_crm_planning_users",
			Help: "Number of eligible users visited by the last planning run",
		},
	)

	// PlanningErrors tracks per-user planning failures
	PlanningErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oracle_crm_planning_errors_total",
			Help: "Total number of users whose planning failed",
		},
	)

	// TasksDispatched tracks dispatch outcomes
	TasksDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_crm_tasks_dispatched_total",
			Help: "Total number of dispatched tasks by outcome",
		},
		[]string{"type", "outcome"}, // sent, failed, blocked
	)

	// GenerationFallbacks tracks messages sent with fallback text
	GenerationFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_crm_generation_fallbacks_total",
			Help: "Total number of messages sent with fallback text after a generation failure",
		},
		[]string{"type"},
	)

	// DispatchDuration tracks dispatch batch duration
	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oracle_crm_dispatch_duration_seconds",
			Help:    "Dispatch batch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CadenceTransitions tracks cadence level changes
	CadenceTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_crm_cadence_transitions_total",
			Help: "Total number of cadence level transitions",
		},
		[]string{"from", "to"},
	)

	// TasksRescheduled tracks tasks postponed after a user reply
	TasksRescheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oracle_crm_tasks_rescheduled_total",
			Help: "Total number of tasks postponed because the user wrote to the bot",
		},
	)

	// SendThrottled tracks outbound sends that waited on the rate limiter
	SendThrottled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oracle_telegram_send_throttled_total",
			Help: "Total number of outbound messages delayed by the send rate limiter",
		},
	)

	// SubscriptionsExpired tracks subscriptions flipped to expired
	SubscriptionsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oracle_subscriptions_expired_total",
			Help: "Total number of subscriptions marked expired by the sweep job",
		},
	)
)
