package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "happyfinder_messages_processed_total",
		Help: "Messages handled and acknowledged, per stage.",
	}, []string{"stage"})

	MessagesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "happyfinder_messages_failed_total",
		Help: "Messages whose handler failed past the retry budget, per stage.",
	}, []string{"stage"})

	HandlerRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "happyfinder_handler_retries_total",
		Help: "In-process handler retries, per stage.",
	}, []string{"stage"})

	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "happyfinder_api_requests_total",
		Help: "Outbound API requests by provider and outcome.",
	}, []string{"provider", "outcome"})

	RateLimitHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "happyfinder_rate_limit_hits_total",
		Help: "Provider rate-limit rejections by provider.",
	}, []string{"provider"})
)

// Serve exposes /metrics on addr. Best effort: a worker is useful without
// its metrics endpoint, so the caller runs this in a goroutine and ignores
// the returned error after logging it.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
