package reset

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tokensIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medigate_reset_tokens_issued_total",
		Help: "Total number of password-reset tokens issued",
	})
	tokensRedeemed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medigate_reset_tokens_redeemed_total",
		Help: "Total number of password-reset tokens successfully redeemed",
	})
	redeemFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medigate_reset_redeem_failures_total",
		Help: "Total number of rejected redemption attempts (missing, mismatched, or expired tokens)",
	})
)
