package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sst_risk_scores_total",
			Help: "Risk scores computed, by resulting tier.",
		},
		[]string{"tier"},
	)

	scoreErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sst_risk_score_rejections_total",
			Help: "Risk score requests rejected for out of range inputs.",
		},
	)
)
