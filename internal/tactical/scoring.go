package tactical

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Candidate multipliers applied to the MPC-recommended first-period order.
var candidateMultipliers = []float64{0, 0.5, 1.0, 1.5, 2.0}

// Candidate is one scored order alternative.
type Candidate struct {
	Multiplier float64
	Quantity   int

	// Objective scores: cost and cash lower is better, service higher.
	Cost    float64
	Service float64
	Cash    float64

	QValue float64
	key    StateActionKey
}

// ObjectiveWeights steers the weighted-sum tie-break among Pareto-optimal
// candidates. Weights need not sum to one; they are normalized on use.
type ObjectiveWeights struct {
	Cost    float64
	Service float64
	Cash    float64
}

// DefaultObjectiveWeights favors cost slightly over service, with cash flow
// as the minor axis.
func DefaultObjectiveWeights() ObjectiveWeights {
	return ObjectiveWeights{Cost: 0.5, Service: 0.35, Cash: 0.15}
}

// scoringInput bundles what candidate scoring needs from the cycle.
type scoringInput struct {
	baseQuantity    int
	available       float64
	meanDemand      float64
	stdDemand       float64
	leadTime        int
	unitCost        float64
	holdingRate     float64
	stockoutPenalty float64
	orderCostFixed  float64
	minOrder        int
	maxOrder        int
}

// scoreCandidates builds and scores the candidate set around the MPC
// recommendation. Each candidate gets a cost score (expected holding +
// stockout + ordering over the lead time), a service score (probability of
// covering lead-time demand), and a cash score (capital tied up).
func scoreCandidates(in scoringInput, qt *QTable) []Candidate {
	lead := float64(in.leadTime)
	if lead < 1 {
		lead = 1
	}
	muLT := in.meanDemand * lead
	sigmaLT := math.Max(in.stdDemand*math.Sqrt(lead), 1e-6)
	dist := distuv.Normal{Mu: muLT, Sigma: sigmaLT}

	seen := make(map[int]bool)
	out := make([]Candidate, 0, len(candidateMultipliers))
	for _, m := range candidateMultipliers {
		qty := int(math.Round(float64(in.baseQuantity) * m))
		if qty > 0 {
			if qty < in.minOrder {
				qty = in.minOrder
			}
			if in.maxOrder > 0 && qty > in.maxOrder {
				qty = in.maxOrder
			}
		}
		if seen[qty] {
			continue
		}
		seen[qty] = true

		position := in.available + float64(qty)
		service := dist.CDF(position)

		expectedShort := expectedShortfall(dist, position)
		expectedLeft := math.Max(position-muLT, 0)
		cost := expectedLeft*in.unitCost*in.holdingRate*lead + expectedShort*in.unitCost*in.stockoutPenalty
		if qty > 0 {
			cost += in.orderCostFixed
		}
		cash := float64(qty) * in.unitCost

		c := Candidate{
			Multiplier: m,
			Quantity:   qty,
			Cost:       cost,
			Service:    service,
			Cash:       cash,
		}
		c.key = StateActionKey{
			SupplyTier: SupplyTier(safeDiv(in.available, in.meanDemand)),
			ActionTier: ActionTier(qty, in.meanDemand),
		}
		if qt != nil {
			c.QValue = qt.Value(c.key)
		}
		out = append(out, c)
	}
	return out
}

// selectCandidate keeps the Pareto frontier (cost down, service up, cash
// down) and breaks ties with a weighted sum, blending in the learned Q-value
// as a bonus scaled by qWeight. With qWeight zero the choice is pure MPC
// economics.
func selectCandidate(cands []Candidate, w ObjectiveWeights, qWeight float64) Candidate {
	if len(cands) == 0 {
		return Candidate{}
	}

	frontier := paretoFrontier(cands)

	total := w.Cost + w.Service + w.Cash
	if total <= 0 {
		w = DefaultObjectiveWeights()
		total = w.Cost + w.Service + w.Cash
	}

	maxCost, maxCash := 1e-9, 1e-9
	for _, c := range frontier {
		maxCost = math.Max(maxCost, c.Cost)
		maxCash = math.Max(maxCash, c.Cash)
	}

	best := frontier[0]
	bestScore := math.Inf(1)
	for _, c := range frontier {
		score := (w.Cost/total)*(c.Cost/maxCost) +
			(w.Service/total)*(1-c.Service) +
			(w.Cash/total)*(c.Cash/maxCash) -
			qWeight*c.QValue
		if score < bestScore {
			bestScore = score
			best = c
		}
	}
	return best
}

// paretoFrontier filters out candidates dominated on all three objectives.
func paretoFrontier(cands []Candidate) []Candidate {
	frontier := make([]Candidate, 0, len(cands))
	for i, c := range cands {
		dominated := false
		for j, other := range cands {
			if i == j {
				continue
			}
			if dominates(other, c) {
				dominated = true
				break
			}
		}
		if !dominated {
			frontier = append(frontier, c)
		}
	}
	if len(frontier) == 0 {
		return cands
	}
	return frontier
}

func dominates(a, b Candidate) bool {
	if a.Cost > b.Cost || a.Service < b.Service || a.Cash > b.Cash {
		return false
	}
	return a.Cost < b.Cost || a.Service > b.Service || a.Cash < b.Cash
}

// expectedShortfall is E[(D - x)+] for normal lead-time demand D.
func expectedShortfall(dist distuv.Normal, x float64) float64 {
	z := (x - dist.Mu) / dist.Sigma
	std := distuv.Normal{Mu: 0, Sigma: 1}
	return dist.Sigma * (std.Prob(z) - z*(1-std.CDF(z)))
}

func safeDiv(a, b float64) float64 {
	if b <= 0 {
		return math.Inf(1)
	}
	return a / b
}
