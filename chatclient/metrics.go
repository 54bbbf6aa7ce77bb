package chatclient

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragchat_chat_requests_total",
			Help: "Chat exchanges by outcome (ok or error kind).",
		},
		[]string{"outcome"},
	)

	requestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ragchat_chat_request_duration_seconds",
			Help:    "Wall time of chat exchanges, including failures.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(requestDuration)
}
