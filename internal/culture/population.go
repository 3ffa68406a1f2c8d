// Package culture provides the two-state trait model: trait labels,
// populations of trait carriers, and the payoff table used by success-biased copying.
package culture

import (
	"errors"
	"fmt"
	"math"

	"github.com/talgya/cultsim/internal/entropy"
)

// ErrZeroPayoff is returned when payoffs cannot be normalised into a distribution.
var ErrZeroPayoff = errors.New("culture: payoffs do not sum to a positive finite value")

// SumTolerance bounds |Σ relative payoff − 1|.
const SumTolerance = 1e-9

// Trait is a discrete cultural variant held by one individual.
type Trait uint8

const (
	TraitA Trait = iota // The focal variant whose frequency is recorded
	TraitB              // The alternative variant
)

// String returns the trait label.
func (t Trait) String() string {
	switch t {
	case TraitA:
		return "A"
	case TraitB:
		return "B"
	default:
		return fmt.Sprintf("Trait(%d)", uint8(t))
	}
}

// Population is an ordered set of trait carriers. Its length is fixed for a run.
type Population []Trait

// Seed draws n individuals, each carrying TraitA with probability pA.
func Seed(src *entropy.Source, n int, pA float64) Population {
	pop := make(Population, n)
	for i := range pop {
		if src.Float() < pA {
			pop[i] = TraitA
		} else {
			pop[i] = TraitB
		}
	}
	return pop
}

// Count returns how many individuals carry t.
func (p Population) Count(t Trait) int {
	n := 0
	for _, v := range p {
		if v == t {
			n++
		}
	}
	return n
}

// Frequency returns the fraction of the population carrying t.
func (p Population) Frequency(t Trait) float64 {
	if len(p) == 0 {
		return 0
	}
	return float64(p.Count(t)) / float64(len(p))
}

// Copy builds the next generation by copying the individuals at the given indices.
func (p Population) Copy(indices []int) Population {
	next := make(Population, len(indices))
	for i, idx := range indices {
		next[i] = p[idx]
	}
	return next
}

// PayoffTable maps each trait to the payoff its carriers receive.
type PayoffTable [2]float64

// NewPayoffTable returns the success-bias table {A: 1+s, B: 1}.
func NewPayoffTable(s float64) PayoffTable {
	var pt PayoffTable
	pt[TraitA] = 1 + s
	pt[TraitB] = 1
	return pt
}

// Payoff returns the payoff for a carrier of t.
func (pt PayoffTable) Payoff(t Trait) float64 {
	return pt[t]
}

// Payoffs returns the payoff vector parallel to pop.
func (pt PayoffTable) Payoffs(pop Population) []float64 {
	out := make([]float64, len(pop))
	for i, t := range pop {
		out[i] = pt.Payoff(t)
	}
	return out
}

// RelativePayoffs normalises payoffs into copying probabilities.
func RelativePayoffs(payoffs []float64) ([]float64, error) {
	total := 0.0
	for _, p := range payoffs {
		if p < 0 || math.IsNaN(p) {
			return nil, fmt.Errorf("%w: payoff %v", ErrZeroPayoff, p)
		}
		total += p
	}
	if total <= 0 || math.IsInf(total, 0) {
		return nil, fmt.Errorf("%w: total %v", ErrZeroPayoff, total)
	}

	rel := make([]float64, len(payoffs))
	sum := 0.0
	for i, p := range payoffs {
		rel[i] = p / total
		sum += rel[i]
	}
	if math.Abs(sum-1) > SumTolerance {
		return nil, fmt.Errorf("%w: relative payoffs sum to %v", ErrZeroPayoff, sum)
	}
	return rel, nil
}
