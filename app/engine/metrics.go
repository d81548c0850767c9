package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Messages dispatched partitioned by outcome
	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_messages_total",
			Help: "Total number of campaign messages dispatched",
		},
		[]string{"outcome"},
	)

	// Campaign runs finished partitioned by final status
	runsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_runs_finished_total",
			Help: "Total number of campaign runs that reached a final state",
		},
		[]string{"status"},
	)

	// Campaigns started
	runsStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campaign_runs_started_total",
			Help: "Total number of campaign runs started or resumed",
		},
	)

	// Currently active dispatch loops
	runsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "campaign_runs_active",
			Help: "Number of campaign dispatch loops currently active",
		},
	)
)
