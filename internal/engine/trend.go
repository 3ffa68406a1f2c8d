// Scalar-trait models: directional selection with optional environmental
// noise, and the ±1 biased random walk.
package engine

import (
	"math"

	"github.com/talgya/cultsim/internal/entropy"
	"github.com/talgya/cultsim/internal/environment"
)

// Directional shifts a quantitative trait by C every generation, plus
// environmental noise of standard deviation Sigma. The trait is unbounded.
type Directional struct {
	X0    float64          // Initial trait value shared by every replicate
	C     float64          // Per-generation selection increment
	Sigma float64          // Noise standard deviation; 0 disables noise
	Noise environment.Kind // Noise process
}

// NewDirectional returns the directional-selection model without noise.
func NewDirectional(x0, c float64) Directional {
	return Directional{X0: x0, C: c}
}

func (m Directional) Name() string { return ModelDirectional }

func (m Directional) Params() map[string]float64 {
	return map[string]float64{"x0": m.X0, "c": m.C, "sigma": m.Sigma}
}

func (m Directional) Validate() error {
	if err := checkFinite("x0", m.X0); err != nil {
		return err
	}
	if err := checkFinite("c", m.C); err != nil {
		return err
	}
	if err := checkFinite("sigma", m.Sigma); err != nil {
		return err
	}
	if m.Sigma < 0 {
		return invalid("noise standard deviation must be >= 0, got %v", m.Sigma)
	}
	if m.Noise > environment.KindSimplex {
		return invalid("unknown noise kind %v", m.Noise)
	}
	return nil
}

func (m Directional) Frequencies() bool { return false }

func (m Directional) NewProcess(src *entropy.Source) Process {
	return &directionalProcess{model: m, src: src}
}

type directionalProcess struct {
	model Directional
	src   *entropy.Source
	noise environment.Noise
	x     float64
}

func (p *directionalProcess) Init() (float64, error) {
	p.noise = environment.New(p.model.Noise, p.model.Sigma, p.src)
	p.x = p.model.X0
	return p.x, nil
}

func (p *directionalProcess) Step(t int) (float64, error) {
	p.x = p.x + p.model.C + p.noise.Sample(t)
	return p.x, nil
}

// Default start range of a random-walk trajectory.
const (
	DefaultWalkStartMin = 1
	DefaultWalkStartMax = 20
)

// RandomWalk moves an integer value +1 with probability clip(0.5+Bias, 0, 1)
// and −1 otherwise. Each trajectory starts from its own uniform draw in
// [StartMin, StartMax].
type RandomWalk struct {
	Bias     float64 // Additive bias on the 0.5 step-up probability
	StartMin int
	StartMax int
}

// NewRandomWalk returns a random walk starting in [1, 20].
func NewRandomWalk(bias float64) RandomWalk {
	return RandomWalk{Bias: bias, StartMin: DefaultWalkStartMin, StartMax: DefaultWalkStartMax}
}

// EffectiveProbability is the probability of a +1 step. The clip to [0, 1]
// is part of the model, not error recovery.
func (m RandomWalk) EffectiveProbability() float64 {
	return math.Min(1, math.Max(0, 0.5+m.Bias))
}

func (m RandomWalk) Name() string { return ModelRandomWalk }

func (m RandomWalk) Params() map[string]float64 {
	return map[string]float64{
		"bias":      m.Bias,
		"p":         m.EffectiveProbability(),
		"start_min": float64(m.StartMin),
		"start_max": float64(m.StartMax),
	}
}

func (m RandomWalk) Validate() error {
	if math.IsNaN(m.Bias) {
		return invalid("bias must be a number")
	}
	if m.StartMin > m.StartMax {
		return invalid("start range [%d, %d] is empty", m.StartMin, m.StartMax)
	}
	// The range width StartMax-StartMin+1 must fit in an int.
	if (m.StartMin < 0 && m.StartMax > math.MaxInt+m.StartMin) || m.StartMax-m.StartMin >= math.MaxInt {
		return invalid("start range [%d, %d] is too wide", m.StartMin, m.StartMax)
	}
	return nil
}

func (m RandomWalk) Frequencies() bool { return false }

func (m RandomWalk) NewProcess(src *entropy.Source) Process {
	return &walkProcess{model: m, p: m.EffectiveProbability(), src: src}
}

type walkProcess struct {
	model RandomWalk
	p     float64
	src   *entropy.Source
	x     int
}

func (w *walkProcess) Init() (float64, error) {
	w.x = w.src.IntRange(w.model.StartMin, w.model.StartMax)
	return float64(w.x), nil
}

func (w *walkProcess) Step(int) (float64, error) {
	if w.src.Float() < w.p {
		w.x++
	} else {
		w.x--
	}
	return float64(w.x), nil
}
