// Package metrics exposes the feed handler's prometheus collectors. All
// collectors are package level and registered once at init, so any
// component can increment them without plumbing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PacketsProcessed counts packets handed to ProcessPacket by result.
var PacketsProcessed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pincex_feed_packets_processed_total",
		Help: "Total number of packets processed by feed sessions",
	},
	[]string{"result"},
)

// MessagesDecoded counts decoded wire messages by kind.
var MessagesDecoded = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pincex_feed_messages_decoded_total",
		Help: "Total number of wire messages decoded",
	},
	[]string{"kind"},
)

// DecodeErrors counts decode failures by reason.
var DecodeErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pincex_feed_decode_errors_total",
		Help: "Total number of decode failures",
	},
	[]string{"reason"},
)

// EventsDispatched counts subscriber events by event kind bit.
var EventsDispatched = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pincex_feed_events_dispatched_total",
		Help: "Total number of events dispatched to subscribers",
	},
	[]string{"kind"},
)

// LevelsEvicted counts price levels dropped by the max-orders depth bound.
var LevelsEvicted = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "pincex_feed_levels_evicted_total",
		Help: "Total number of price levels evicted by the depth bound",
	},
)

// TailBytes tracks the buffered unconsumed tail awaiting the next packet.
var TailBytes = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "pincex_feed_tail_bytes",
		Help: "Bytes of truncated message tail buffered by the session",
	},
)

func init() {
	prometheus.MustRegister(PacketsProcessed, MessagesDecoded, DecodeErrors)
	prometheus.MustRegister(EventsDispatched, LevelsEvicted, TailBytes)
}
