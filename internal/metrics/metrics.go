package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AnswersTotal counts recorded answers by correctness.
	AnswersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crqbank",
		Name:      "answers_total",
		Help:      "Answers recorded in practice sessions.",
	}, []string{"correct"})

	PersistenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crqbank",
		Name:      "persistence_failures_total",
		Help:      "Answers that could not be written to the durable store.",
	})

	QuizzesStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crqbank",
		Name:      "quizzes_started_total",
		Help:      "Quizzes started by mode.",
	}, []string{"mode"})

	QuizzesSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crqbank",
		Name:      "quizzes_submitted_total",
		Help:      "Quizzes submitted for scoring.",
	})

	// Entitlements counts gate outcomes: blocked, granted, verify_failed.
	Entitlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crqbank",
		Name:      "entitlement_events_total",
		Help:      "Entitlement gate outcomes.",
	}, []string{"outcome"})
)

func BoolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
