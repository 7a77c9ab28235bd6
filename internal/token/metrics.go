package token

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tokensIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_tokens_issued_total",
			Help: "Total number of tokens issued, by kind",
		},
		[]string{"kind"},
	)

	tokenValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_token_validations_total",
			Help: "Total number of token validation attempts, by result",
		},
		[]string{"result"},
	)
)
