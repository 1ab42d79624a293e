// Package metrics provides Prometheus instrumentation for the matchmaking
// service. It exposes gauges for queue depth and connections, counters for
// the match funnel and penalties, and histograms for tick and remote-call
// latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveConnections tracks the current number of WebSocket connections.
	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "matchmaking_active_connections",
		Help: "Current number of active WebSocket connections",
	})

	// QueueSize tracks the current number of waiting players.
	QueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "matchmaking_queue_size",
		Help: "Current number of players waiting in the matchmaking queue",
	})

	// PendingMatches tracks the current number of matches in ready check.
	PendingMatches = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "matchmaking_pending_matches",
		Help: "Current number of pending matches awaiting accept/decline",
	})

	// MatchesTotal counts matches through the funnel, labeled by outcome:
	// "proposed", "confirmed", or "failed".
	MatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchmaking_matches_total",
		Help: "Total number of matches by outcome",
	}, []string{"outcome"}) // outcome = "proposed", "confirmed", "failed"

	// ReadyChecksTotal counts resolved ready checks, labeled by result:
	// "accepted", "declined", or "timeout".
	ReadyChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchmaking_ready_checks_total",
		Help: "Total number of resolved ready checks by result",
	}, []string{"result"}) // result = "accepted", "declined", "timeout"

	// PenaltiesTotal counts penalties recorded for declines and timeouts.
	PenaltiesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matchmaking_penalties_total",
		Help: "Total number of matchmaking penalties recorded",
	})

	// TickDuration records matcher tick latency in seconds.
	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "matchmaking_tick_duration_seconds",
		Help:    "Matcher tick latency in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
	})

	// GameCreationDuration records game-service create-game latency.
	GameCreationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "matchmaking_game_creation_seconds",
		Help:    "Game service create-game call latency in seconds",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 3, 5},
	})
)

func init() {
	prometheus.MustRegister(
		ActiveConnections,
		QueueSize,
		PendingMatches,
		MatchesTotal,
		ReadyChecksTotal,
		PenaltiesTotal,
		TickDuration,
		GameCreationDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
