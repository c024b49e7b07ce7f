package expansion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var candidatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "seoforge_expansion_candidates_total",
	Help: "Expansion candidates by tier and final outcome.",
}, []string{"tier", "outcome"})
