package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsInitiated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_initiated_total",
		Help: "Purchase initiations that produced a pay-prompt.",
	})

	PromptFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_prompts_failed_total",
		Help: "Pay-prompt requests that failed at the gateway.",
	})

	// CallbacksProcessed is labeled by reconciliation result:
	// completed, failed, unknown, replayed, malformed, error.
	CallbacksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callbacks_total",
		Help: "Provider callbacks by reconciliation result.",
	}, []string{"result"})
)
