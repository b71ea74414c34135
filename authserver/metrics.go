package authserver

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	requests      *prometheus.CounterVec
	logins        *prometheus.CounterVec
	pin2Changes   *prometheus.CounterVec
	loginsCreated prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loginkit_http_requests_total",
			Help: "HTTP requests handled, by route and status code.",
		}, []string{"route", "status"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loginkit_login_attempts_total",
			Help: "Login attempts, by result.",
		}, []string{"result"}),
		pin2Changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loginkit_pin2_changes_total",
			Help: "PIN credential changes, by operation.",
		}, []string{"op"}),
		loginsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loginkit_logins_created_total",
			Help: "Logins registered.",
		}),
	}
	reg.MustRegister(m.requests, m.logins, m.pin2Changes, m.loginsCreated)
	return m
}
