package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TokenErrors tracks JWT token validation errors
	TokenErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_errors_total",
			Help: "Total number of token validation errors by type",
		},
		[]string{"error_type"},
	)
)
