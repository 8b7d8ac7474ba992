// Package metrics holds the Prometheus collectors of the auth and notification services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	LoginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kusaidia_login_attempts_total",
			Help: "Wallet login attempts by result",
		},
		[]string{"result"},
	)

	RoleTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kusaidia_role_transitions_total",
			Help: "Role additions and switches by kind and target role",
		},
		[]string{"kind", "role"},
	)

	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kusaidia_ws_connections_active",
			Help: "Open notification channel connections",
		},
	)

	NotificationsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kusaidia_notifications_delivered_total",
			Help: "Notifications stored, by whether an open connection received them",
		},
		[]string{"pushed"},
	)

	HubReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kusaidia_hub_reconnect_attempts_total",
			Help: "Notification hub connection attempts by result",
		},
		[]string{"result"},
	)

	HubPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kusaidia_hub_polls_total",
			Help: "Notification hub polling cycles by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		LoginAttempts,
		RoleTransitions,
		ActiveConnections,
		NotificationsDelivered,
		HubReconnects,
		HubPolls,
	)
}

// Result maps an error to the "ok"/"error" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
