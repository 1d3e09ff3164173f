package tactical

import (
	"testing"
)

func testScoringInput(base int) scoringInput {
	return scoringInput{
		baseQuantity:    base,
		available:       20,
		meanDemand:      10,
		stdDemand:       3,
		leadTime:        5,
		unitCost:        10,
		holdingRate:     0.02,
		stockoutPenalty: 3,
		orderCostFixed:  25,
		minOrder:        1,
		maxOrder:        500,
	}
}

func TestScoreCandidatesCoversMultipliers(t *testing.T) {
	cands := scoreCandidates(testScoringInput(40), NewQTable(0.1, 0.9))
	if len(cands) != len(candidateMultipliers) {
		t.Fatalf("got %d candidates, want %d", len(cands), len(candidateMultipliers))
	}

	// Service must be monotone in quantity; cash is linear in it.
	for i := 1; i < len(cands); i++ {
		if cands[i].Quantity > cands[i-1].Quantity && cands[i].Service < cands[i-1].Service {
			t.Errorf("service decreased with larger order: %+v -> %+v", cands[i-1], cands[i])
		}
	}
	if cands[0].Quantity != 0 {
		t.Errorf("first candidate quantity = %d, want 0 (hold)", cands[0].Quantity)
	}
	if cands[0].Cash != 0 {
		t.Errorf("hold candidate cash = %v, want 0", cands[0].Cash)
	}
}

func TestScoreCandidatesDeduplicates(t *testing.T) {
	// Base 0 collapses every multiplier to quantity 0.
	cands := scoreCandidates(testScoringInput(0), nil)
	if len(cands) != 1 {
		t.Fatalf("got %d candidates for base 0, want 1", len(cands))
	}
}

func TestSelectCandidatePrefersServiceUnderRisk(t *testing.T) {
	// 20 on hand against ~50 units of lead-time demand: holding is cheap and
	// shortage is punitive, so the selection must order rather than hold.
	cands := scoreCandidates(testScoringInput(40), nil)
	chosen := selectCandidate(cands, DefaultObjectiveWeights(), 0)
	if chosen.Quantity == 0 {
		t.Error("selection chose hold while badly understocked")
	}
}

func TestSelectCandidateZeroQWeightIgnoresQValues(t *testing.T) {
	qt := NewQTable(0.5, 0.9)
	in := testScoringInput(40)

	// Poison the Q-table in favor of holding.
	holdKey := StateActionKey{SupplyTier: SupplyTier(2), ActionTier: 0}
	for i := 0; i < 50; i++ {
		qt.Update(holdKey, 5, 2)
	}

	withQ := selectCandidate(scoreCandidates(in, qt), DefaultObjectiveWeights(), 0)
	without := selectCandidate(scoreCandidates(in, nil), DefaultObjectiveWeights(), 0)
	if withQ.Quantity != without.Quantity {
		t.Errorf("qWeight=0 still let Q-values change the choice: %d vs %d", withQ.Quantity, without.Quantity)
	}
}

func TestSelectCandidateQBonusBreaksTies(t *testing.T) {
	qt := NewQTable(0.5, 0.9)
	in := testScoringInput(40)
	cands := scoreCandidates(in, qt)

	// Give one specific action tier a strong learned value.
	target := cands[len(cands)-1]
	for i := 0; i < 200; i++ {
		qt.Update(target.key, 2, target.key.SupplyTier)
	}

	rescored := scoreCandidates(in, qt)
	chosen := selectCandidate(rescored, DefaultObjectiveWeights(), 5)
	if chosen.Quantity != target.Quantity {
		t.Errorf("large q bonus did not steer selection: chose %d, want %d", chosen.Quantity, target.Quantity)
	}
}

func TestParetoFrontierDropsDominated(t *testing.T) {
	cands := []Candidate{
		{Quantity: 10, Cost: 100, Service: 0.9, Cash: 100},
		{Quantity: 20, Cost: 120, Service: 0.8, Cash: 200}, // dominated by the first
		{Quantity: 30, Cost: 90, Service: 0.95, Cash: 300},
	}
	frontier := paretoFrontier(cands)
	for _, c := range frontier {
		if c.Quantity == 20 {
			t.Error("dominated candidate survived the frontier filter")
		}
	}
	if len(frontier) != 2 {
		t.Errorf("frontier size = %d, want 2", len(frontier))
	}
}

func TestDominates(t *testing.T) {
	a := Candidate{Cost: 10, Service: 0.9, Cash: 50}
	b := Candidate{Cost: 20, Service: 0.8, Cash: 60}
	if !dominates(a, b) {
		t.Error("a should dominate b")
	}
	if dominates(b, a) {
		t.Error("b should not dominate a")
	}
	if dominates(a, a) {
		t.Error("a candidate never dominates itself")
	}
}
