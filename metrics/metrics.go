package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Verifications         *prometheus.CounterVec
	VerificationStepFails *prometheus.CounterVec
	ReferralAttributions  *prometheus.CounterVec
	CRMSync               *prometheus.CounterVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer in production
// and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Verifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "powerca_payment_verifications_total",
				Help: "Payment verification requests by result",
			},
			[]string{"result"},
		),
		VerificationStepFails: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "powerca_verification_step_failures_total",
				Help: "Bookkeeping steps that failed after a payment was verified",
			},
			[]string{"step"},
		),
		ReferralAttributions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "powerca_referral_attributions_total",
				Help: "Referral attribution attempts by result",
			},
			[]string{"result"},
		),
		CRMSync: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "powerca_crm_sync_total",
				Help: "CRM sync calls by operation and result",
			},
			[]string{"operation", "result"},
		),
	}
}

// Nop returns collectors registered nowhere.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
