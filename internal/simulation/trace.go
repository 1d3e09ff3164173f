package simulation

import (
	"math/rand"

	"gonum.org/v1/gonum/stat"

	"github.com/replenlab/replenish-backend/internal/domain"
)

// Trace is a daily demand series a strategy is replayed against.
type Trace struct {
	Demand []float64
}

// Mean returns the average daily demand of the trace.
func (t Trace) Mean() float64 {
	if len(t.Demand) == 0 {
		return 0
	}
	return stat.Mean(t.Demand, nil)
}

// SyntheticTrace draws `days` of Normal(mean, std) demand, floored at zero.
// A fixed seed gives a reproducible trace.
func SyntheticTrace(days int, mean, std float64, seed int64) Trace {
	rng := rand.New(rand.NewSource(seed))
	demand := make([]float64, days)
	for i := range demand {
		d := mean + std*rng.NormFloat64()
		if d < 0 {
			d = 0
		}
		demand[i] = d
	}
	return Trace{Demand: demand}
}

// HistoricalTrace builds a trace from recorded demand observations,
// skipping forecast rows.
func HistoricalTrace(observations []domain.DemandObservation) Trace {
	demand := make([]float64, 0, len(observations))
	for _, o := range observations {
		if o.IsForecast {
			continue
		}
		demand = append(demand, o.QuantityDemanded)
	}
	return Trace{Demand: demand}
}
