// Package environment provides the per-generation environmental perturbation
// added to a scalar trait: independent gaussian draws or a smooth simplex field.
package environment

import (
	"fmt"
	"strings"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/cultsim/internal/entropy"
)

// Kind selects how environmental noise is generated.
type Kind uint8

const (
	KindGaussian Kind = iota // Independent N(0, σ²) draw every generation
	KindSimplex              // Temporally correlated simplex field scaled by σ
)

// Simplex field shape.
const (
	simplexOctaves     = 3
	simplexFrequency   = 0.05
	simplexPersistence = 0.5
)

// String returns the config name of the kind.
func (k Kind) String() string {
	switch k {
	case KindGaussian:
		return "gaussian"
	case KindSimplex:
		return "simplex"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ParseKind maps a config name to a Kind. Empty means gaussian.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "gaussian", "normal":
		return KindGaussian, nil
	case "simplex":
		return KindSimplex, nil
	default:
		return 0, fmt.Errorf("unknown noise kind %q (valid: gaussian, simplex)", s)
	}
}

// Noise yields the perturbation for generation t.
type Noise interface {
	Sample(t int) float64
}

// New builds the noise process for one replicate. A zero sd disables noise
// entirely and takes no draws from src. The simplex field consumes one draw
// from src for its seed.
func New(kind Kind, sd float64, src *entropy.Source) Noise {
	if sd == 0 {
		return quiet{}
	}
	if kind == KindSimplex {
		return &simplex{field: opensimplex.New(src.Int63()), sd: sd}
	}
	return &gaussian{src: src, sd: sd}
}

type quiet struct{}

func (quiet) Sample(int) float64 { return 0 }

type gaussian struct {
	src *entropy.Source
	sd  float64
}

func (g *gaussian) Sample(int) float64 {
	return g.src.Normal(g.sd)
}

type simplex struct {
	field opensimplex.Noise
	sd    float64
}

func (s *simplex) Sample(t int) float64 {
	return s.sd * octaveNoise(s.field, float64(t), simplexOctaves, simplexFrequency, simplexPersistence)
}

// octaveNoise layers frequencies along the time axis; the result stays in [-1, 1].
func octaveNoise(field opensimplex.Noise, x float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0
	for i := 0; i < octaves; i++ {
		total += field.Eval2(x*frequency, 0) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / maxVal
}
