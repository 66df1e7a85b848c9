package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	AuthRegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_registrations_total",
			Help: "Total number of registration attempts.",
		},
		[]string{"service", "result"},
	)

	AuthLoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Total number of login attempts.",
		},
		[]string{"service", "result"},
	)

	EmailVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_email_verifications_total",
			Help: "Total number of email verification attempts.",
		},
		[]string{"service", "result"},
	)

	VerificationCodesIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_verification_codes_issued_total",
			Help: "Total number of verification codes issued.",
		},
		[]string{"service", "flow", "result"},
	)

	AuthenticationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_gate_attempts_total",
			Help: "Total number of bearer token checks at the access gate.",
		},
		[]string{"service", "result"},
	)
)

// service label value used by the Observe helpers
var serviceName = "authflow"

// MustRegister binds the service label and registers all collectors with reg.
func MustRegister(reg prometheus.Registerer, service string) {
	serviceName = service
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		AuthRegistrationsTotal,
		AuthLoginsTotal,
		EmailVerificationsTotal,
		VerificationCodesIssuedTotal,
		AuthenticationAttemptsTotal,
	)
}

func ObserveRegistration(result string) {
	AuthRegistrationsTotal.WithLabelValues(serviceName, result).Inc()
}

func ObserveLogin(result string) {
	AuthLoginsTotal.WithLabelValues(serviceName, result).Inc()
}

func ObserveEmailVerification(result string) {
	EmailVerificationsTotal.WithLabelValues(serviceName, result).Inc()
}

func ObserveCodeIssued(flow, result string) {
	VerificationCodesIssuedTotal.WithLabelValues(serviceName, flow, result).Inc()
}

func ObserveGate(result string) {
	AuthenticationAttemptsTotal.WithLabelValues(serviceName, result).Inc()
}

func ObserveRequest(method, path, status string, seconds float64) {
	HTTPRequestsTotal.WithLabelValues(serviceName, method, path, status).Inc()
	HTTPRequestDurationSeconds.WithLabelValues(serviceName, method, path).Observe(seconds)
}
