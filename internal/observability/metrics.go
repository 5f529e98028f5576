package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OffersDispatched = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridelink", Name: "offers_dispatched_total", Help: "Offers pushed to candidate drivers"})
	OfferTimeouts    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridelink", Name: "offer_timeouts_total", Help: "Offers that expired without a driver response"})
	MatchesTotal     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridelink", Name: "matches_total", Help: "Searches that ended with an accepted booking"})
	SearchesFailed   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridelink", Name: "searches_failed_total", Help: "Searches that exhausted all candidates"})
	DeclinesTotal    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridelink", Name: "declines_total", Help: "Offers explicitly declined by drivers"})
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ridelink", Name: "connected_clients", Help: "Participants with an active websocket connection"})
	ChatMessages     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridelink", Name: "chat_messages_total", Help: "Chat messages accepted and broadcast"})
)
