package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		activationsTotal,
		validationsTotal,
		licensesIssuedTotal,
		licensesExpiredTotal,
		deviceChangesTotal,
	)
}

var (
	activationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_activations_total",
			Help: "Activation attempts by result.",
		},
		[]string{"result"}, // 'activated', 'already_active', 'limit_reached', 'expired', ...
	)

	validationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_validations_total",
			Help: "Validation attempts by result.",
		},
		[]string{"result"},
	)

	licensesIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "licenses_issued_total",
			Help: "Total number of licenses issued.",
		},
	)

	licensesExpiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "licenses_expired_total",
			Help: "Licenses moved to expired, by path.",
		},
		[]string{"path"}, // 'lazy', 'sweep'
	)

	deviceChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "device_changes_total",
			Help: "Owner and admin device changes by action.",
		},
		[]string{"action"}, // 'rename', 'revoke', 'deactivate'
	)
)

func IncActivation(result string) {
	activationsTotal.WithLabelValues(norm(result)).Inc()
}

func IncValidation(result string) {
	validationsTotal.WithLabelValues(norm(result)).Inc()
}

func IncLicenseIssued() {
	licensesIssuedTotal.Inc()
}

func AddLicensesExpired(path string, n int) {
	if n <= 0 {
		return
	}
	licensesExpiredTotal.WithLabelValues(norm(path)).Add(float64(n))
}

func IncDeviceChange(action string) {
	deviceChangesTotal.WithLabelValues(norm(action)).Inc()
}
