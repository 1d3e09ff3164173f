package features

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/replenlab/replenish-backend/internal/domain"
)

const (
	// MinLookbackDays is the smallest usable demand window.
	MinLookbackDays = 7

	// VolatilityFloor keeps downstream risk math away from divide-by-zero
	// on perfectly flat demand series.
	VolatilityFloor = 1e-6

	// DaysSupplySentinel is reported when mean demand is zero.
	DaysSupplySentinel = 999.0

	// Dim is the fixed dimensionality of a state vector.
	Dim = 8
)

// Feature indices into StateVector.Values. The order is part of the contract;
// persisted vectors rely on it.
const (
	FStockLevel = iota
	FInTransit
	FAvgDemand
	FVolatility
	FDaysSupply
	FStockoutRisk
	FLeadTime
	FTimeProgress
)

// StateVector is the fixed-size featurized state of one product plus the
// summary statistics the optimizers consume directly.
type StateVector struct {
	Values [Dim]float64

	MeanDailyDemand float64
	DemandStdDev    float64
	DaysOfSupply    float64
	StockoutRisk    float64
	Available       int
	InTransit       int
	Stale           bool
}

// Slice returns the raw feature values as a slice, for persistence.
func (s StateVector) Slice() []float64 {
	out := make([]float64, Dim)
	copy(out, s.Values[:])
	return out
}

// Featurize turns a product's recent snapshots and demand history into a
// StateVector. Values is a pure function of the inputs: fixed input, fixed
// feature vector. The Stale flag alone depends on the wall clock, since it
// compares the newest snapshot's age against the staleness cutoff.
//
// reviewProgress is how far the product is through its current review period,
// in [0,1]; callers without a review schedule pass 0.
func Featurize(product domain.Product, snapshots []domain.InventorySnapshot, demand []domain.DemandObservation, lookbackDays int, reviewProgress float64) (StateVector, error) {
	if lookbackDays < MinLookbackDays {
		return StateVector{}, &domain.InsufficientHistoryError{ProductID: product.ID, Have: lookbackDays, Need: MinLookbackDays}
	}

	observed := historicalDemand(demand, lookbackDays)
	if len(observed) < MinLookbackDays {
		return StateVector{}, &domain.InsufficientHistoryError{ProductID: product.ID, Have: len(observed), Need: MinLookbackDays}
	}

	current, stale := latestSnapshot(snapshots)

	mean := stat.Mean(observed, nil)
	std := math.Sqrt(stat.Variance(observed, nil))
	if std < VolatilityFloor {
		std = VolatilityFloor
	}

	available := current.Available()

	daysSupply := DaysSupplySentinel
	if mean > 0 {
		daysSupply = float64(available) / mean
		if daysSupply > DaysSupplySentinel {
			daysSupply = DaysSupplySentinel
		}
	}

	risk := stockoutRisk(float64(available), mean, std, product.LeadTimeDays)

	sv := StateVector{
		MeanDailyDemand: mean,
		DemandStdDev:    std,
		DaysOfSupply:    daysSupply,
		StockoutRisk:    risk,
		Available:       available,
		InTransit:       current.InTransit,
		Stale:           stale,
	}
	sv.Values[FStockLevel] = float64(current.StockLevel)
	sv.Values[FInTransit] = float64(current.InTransit)
	sv.Values[FAvgDemand] = mean
	sv.Values[FVolatility] = std
	sv.Values[FDaysSupply] = daysSupply
	sv.Values[FStockoutRisk] = risk
	sv.Values[FLeadTime] = float64(product.LeadTimeDays)
	sv.Values[FTimeProgress] = clamp01(reviewProgress)

	return sv, nil
}

// AugmentWithFeed folds a pre-validated external feed row into the state
// vector. The feed's demand velocity replaces the moving average when it is
// fresher; risk and supply figures are recomputed to stay consistent.
func AugmentWithFeed(sv StateVector, product domain.Product, row domain.FeedRow) StateVector {
	if row.DemandVelocity <= 0 {
		return sv
	}

	sv.MeanDailyDemand = row.DemandVelocity
	sv.Values[FAvgDemand] = row.DemandVelocity

	if row.DemandVelocity > 0 {
		sv.DaysOfSupply = float64(sv.Available) / row.DemandVelocity
		if sv.DaysOfSupply > DaysSupplySentinel {
			sv.DaysOfSupply = DaysSupplySentinel
		}
		sv.Values[FDaysSupply] = sv.DaysOfSupply
	}

	sv.StockoutRisk = stockoutRisk(float64(sv.Available), sv.MeanDailyDemand, sv.DemandStdDev, product.LeadTimeDays)
	sv.Values[FStockoutRisk] = sv.StockoutRisk
	return sv
}

// stockoutRisk is P(available < demand over lead time) with lead-time demand
// modeled as Normal(mean*L, std*sqrt(L)).
func stockoutRisk(available, meanDaily, stdDaily float64, leadTimeDays int) float64 {
	if leadTimeDays <= 0 {
		return 0
	}
	l := float64(leadTimeDays)
	mu := meanDaily * l
	sigma := stdDaily * math.Sqrt(l)
	if sigma < VolatilityFloor {
		sigma = VolatilityFloor
	}
	dist := distuv.Normal{Mu: mu, Sigma: sigma}
	// P(demand > available)
	return 1 - dist.CDF(available)
}

// historicalDemand extracts the most recent non-forecast daily quantities,
// oldest first, capped at the lookback window.
func historicalDemand(demand []domain.DemandObservation, lookbackDays int) []float64 {
	obs := make([]domain.DemandObservation, 0, len(demand))
	for _, d := range demand {
		if !d.IsForecast {
			obs = append(obs, d)
		}
	}
	sort.Slice(obs, func(i, j int) bool { return obs[i].Date.Before(obs[j].Date) })

	if len(obs) > lookbackDays {
		obs = obs[len(obs)-lookbackDays:]
	}

	out := make([]float64, len(obs))
	for i, d := range obs {
		out[i] = d.QuantityDemanded
	}
	return out
}

// latestSnapshot picks the newest snapshot, forward-filling when the series
// is empty or older than a day. Returns staleness alongside the snapshot.
func latestSnapshot(snapshots []domain.InventorySnapshot) (domain.InventorySnapshot, bool) {
	if len(snapshots) == 0 {
		return domain.InventorySnapshot{}, true
	}
	newest := snapshots[0]
	for _, s := range snapshots[1:] {
		if s.Timestamp.After(newest.Timestamp) {
			newest = s
		}
	}
	stale := time.Since(newest.Timestamp) > 24*time.Hour
	return newest, stale
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
