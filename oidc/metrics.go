// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation names used as the "operation" metrics label.
const (
	OpDiscover     = "discover"
	OpAuthenticate = "authenticate"
	OpExchange     = "exchange"
	OpRefresh      = "refresh"
	OpLogout       = "logout"
)

// Metrics records the outcome and duration of flow operations.  A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// NewMetrics creates Metrics registered with reg.  A nil reg registers with
// the prometheus default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hseauth_flow_operations_total",
			Help: "Total number of flow operations by operation and result",
		}, []string{"operation", "result"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hseauth_flow_operation_duration_seconds",
			Help:    "Duration of flow operations, including time spent waiting on the user",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"operation"}),
	}
}

// Observe records one operation which started at start and ended with err.
func (m *Metrics) Observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, Result(err)).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Result classifies err into a low cardinality label value.
func Result(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrSessionCancelled):
		return "cancelled"
	case errors.Is(err, ErrSessionInProgress):
		return "rejected"
	case errors.Is(err, ErrSessionPresentationFailed), errors.Is(err, ErrPlatformUnsupported):
		return "session_failed"
	case errors.Is(err, ErrLoginFailed):
		return "login_failed"
	case errors.Is(err, ErrProtocolViolation):
		return "protocol_violation"
	case errors.Is(err, ErrNetworkFailure):
		return "network_failure"
	default:
		return "error"
	}
}
