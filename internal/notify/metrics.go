package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	liveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "medigate_notify_subscribers",
		Help: "Number of live notification subscriptions",
	})
	eventsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medigate_notify_events_delivered_total",
		Help: "Total notification events delivered to subscribers",
	})
	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medigate_notify_events_dropped_total",
		Help: "Total notification events dropped because a subscriber buffer was full",
	})
)
