package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckInsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkins_total",
			Help:      "Total number of check-in attempts by result",
		},
		[]string{"result"},
	)

	ThresholdUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threshold_updates_total",
			Help:      "Total number of timeout threshold updates by result",
		},
		[]string{"result"},
	)

	ProfileUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_updates_total",
			Help:      "Total number of profile updates by result",
		},
		[]string{"result"},
	)

	StatusLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_lookups_total",
			Help:      "Total number of public status lookups by result",
		},
		[]string{"result"},
	)

	StatusSubscriptionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "status_subscriptions_active",
			Help:      "Number of open public status streams",
		},
	)

	StatusSubscriptionsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_subscriptions_rejected_total",
			Help:      "Total number of status streams rejected due to the subscription limit",
		},
	)

	StatusStreamMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_stream_messages_total",
			Help:      "Total number of status snapshots written to streams",
		},
	)

	StatusStreamCoalescedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_stream_coalesced_total",
			Help:      "Total number of snapshots replaced before a slow stream consumed them",
		},
	)

	StatusStreamDisconnections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_stream_disconnections_total",
			Help:      "Total number of status stream disconnections by reason",
		},
		[]string{"reason"},
	)

	ChangeFeedEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changefeed_events_total",
			Help:      "Total number of record change events by source",
		},
		[]string{"source"},
	)

	ChangeFeedStaleDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changefeed_stale_dropped_total",
			Help:      "Total number of change events dropped because a newer version was already delivered",
		},
	)

	ChangeFeedListenerReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changefeed_listener_reconnects_total",
			Help:      "Total number of LISTEN connection re-establishments",
		},
	)
)
