// Cultural transmission in a finite two-trait population: unbiased copying
// and success-biased (indirect bias) copying.
package engine

import (
	"fmt"

	"github.com/talgya/cultsim/internal/culture"
	"github.com/talgya/cultsim/internal/entropy"
)

// Unbiased copies N random members of the previous generation, uniformly
// and with replacement. Homogeneous populations are absorbing.
type Unbiased struct {
	N  int     // Population size
	P0 float64 // Probability that a generation-0 individual carries A
}

// NewUnbiased returns the unbiased model with A and B equally likely at start.
func NewUnbiased(n int) Unbiased {
	return Unbiased{N: n, P0: 0.5}
}

func (m Unbiased) Name() string { return ModelUnbiased }

func (m Unbiased) Params() map[string]float64 {
	return map[string]float64{"n": float64(m.N), "p0": m.P0}
}

func (m Unbiased) Validate() error {
	if err := checkPopulation(m.N); err != nil {
		return err
	}
	return checkProbability("p0", m.P0)
}

func (m Unbiased) Frequencies() bool { return true }

func (m Unbiased) NewProcess(src *entropy.Source) Process {
	return &unbiasedProcess{src: src, n: m.N, p0: m.P0}
}

type unbiasedProcess struct {
	src *entropy.Source
	n   int
	p0  float64
	pop culture.Population
}

func (p *unbiasedProcess) Init() (float64, error) {
	p.pop = culture.Seed(p.src, p.n, p.p0)
	return p.pop.Frequency(culture.TraitA), nil
}

func (p *unbiasedProcess) Step(int) (float64, error) {
	p.pop = p.pop.Copy(p.src.SampleUniform(p.n, p.n))
	return p.pop.Frequency(culture.TraitA), nil
}

// IndirectBias copies individuals in proportion to their payoff, where
// carriers of A earn 1+S and carriers of B earn 1. With S = 0 it copies
// by frequency alone. A lost trait never returns.
type IndirectBias struct {
	N  int     // Population size
	S  float64 // Bias strength, >= 0
	P0 float64 // Probability that a generation-0 individual carries A
}

// NewIndirectBias returns the success-biased model starting with A rare.
func NewIndirectBias(n int, s float64) IndirectBias {
	return IndirectBias{N: n, S: s, P0: 0.01}
}

func (m IndirectBias) Name() string { return ModelIndirectBias }

func (m IndirectBias) Params() map[string]float64 {
	return map[string]float64{"n": float64(m.N), "s": m.S, "p0": m.P0}
}

func (m IndirectBias) Validate() error {
	if err := checkPopulation(m.N); err != nil {
		return err
	}
	if err := checkFinite("s", m.S); err != nil {
		return err
	}
	if m.S < 0 {
		return invalid("bias strength s must be >= 0, got %v", m.S)
	}
	return checkProbability("p0", m.P0)
}

func (m IndirectBias) Frequencies() bool { return true }

func (m IndirectBias) NewProcess(src *entropy.Source) Process {
	return &biasedProcess{src: src, n: m.N, p0: m.P0, table: culture.NewPayoffTable(m.S)}
}

type biasedProcess struct {
	src     *entropy.Source
	n       int
	p0      float64
	table   culture.PayoffTable
	pop     culture.Population
	payoffs []float64
}

func (p *biasedProcess) Init() (float64, error) {
	p.pop = culture.Seed(p.src, p.n, p.p0)
	p.payoffs = p.table.Payoffs(p.pop)
	return p.pop.Frequency(culture.TraitA), nil
}

func (p *biasedProcess) Step(t int) (float64, error) {
	rel, err := culture.RelativePayoffs(p.payoffs)
	if err != nil {
		return 0, fmt.Errorf("%w: generation %d: %w", ErrNumericDegeneracy, t, err)
	}
	p.pop = p.pop.Copy(p.src.SampleWeighted(rel, p.n))
	p.payoffs = p.table.Payoffs(p.pop)
	return p.pop.Frequency(culture.TraitA), nil
}
