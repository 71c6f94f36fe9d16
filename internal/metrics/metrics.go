package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas del gate de captcha y del broker de federación. Viven en un
// paquete propio para que captcha/federation/binding no importen HTTP.

var (
	ChallengesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "captcha_challenges_sent_total",
		Help: "Challenges generados y enviados, por canal y resultado",
	}, []string{"channel", "outcome"})

	ChallengeValidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "captcha_validations_total",
		Help: "Validaciones de challenge, por canal y resultado",
	}, []string{"channel", "outcome"})

	FederationLogins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "federation_logins_total",
		Help: "Callbacks de federación, por registración y resultado",
	}, []string{"registration_id", "outcome"})

	ProviderLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "federation_provider_request_seconds",
		Help:    "Latencia de llamadas al proveedor (token, userinfo)",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "op"})

	BindingsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "social_bindings_created_total",
		Help: "Vínculos identidad federada -> cuenta local creados",
	})
)

// Register registra las métricas en el registry dado (o el default si es nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		ChallengesSent, ChallengeValidations, FederationLogins, ProviderLatency, BindingsCreated,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
