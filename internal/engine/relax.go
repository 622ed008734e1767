package engine

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync/atomic"

	"gonum.org/v1/gonum/optimize"
)

// Relaxer drives a candidate conformer to a nearby energy minimum and
// reports its potential. A failed relaxation is reported as a NaN
// potential with nil coordinates, never as an error; the caller drops
// such conformers.
type Relaxer interface {
	Relax(ctx context.Context, cycle int, coords []float64) (potential float64, relaxed []float64)
}

// SerialRelaxer is an optional capability: a relaxer that must not be
// called from more than one goroutine at a time.
type SerialRelaxer interface {
	SerialOnly() bool
}

type spring struct {
	i, j int
	rest float64
}

// HarmonicRelaxerConfig configures the built-in spring-network relaxer.
// Springs connect every atom pair within Cutoff of the reference
// geometry, with the reference distance as rest length.
type HarmonicRelaxerConfig struct {
	Coords         []float64
	Cutoff         float64
	SpringConstant float64
	// Sim enables noisy pre-minimization steps that let candidates cross
	// small barriers before settling. TSteps is indexed by cycle, slot 0
	// unused; a missing entry falls back to DefaultHeatSteps.
	Sim    bool
	Temp   float64
	TSteps []int
	Seed   int64
}

const (
	DefaultHeatSteps = 100
	heatStepSize     = 1e-3
)

// HarmonicRelaxer minimizes a harmonic network potential anchored to
// the topology of the starting structure. It stands in where a full
// force-field minimizer is not available and is safe for concurrent
// use.
type HarmonicRelaxer struct {
	springs []spring
	k       float64
	sim     bool
	temp    float64
	tSteps  []int
	seed    int64
	calls   atomic.Int64
}

func NewHarmonicRelaxer(cfg HarmonicRelaxerConfig) (*HarmonicRelaxer, error) {
	if len(cfg.Coords) == 0 || len(cfg.Coords)%3 != 0 {
		return nil, errors.New("reference coordinates must be a non-empty multiple of 3")
	}
	if cfg.Cutoff <= 0 {
		return nil, errors.New("cutoff must be > 0")
	}
	k := cfg.SpringConstant
	if k <= 0 {
		k = 1
	}

	n := len(cfg.Coords) / 3
	var springs []spring
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			r := distance(cfg.Coords, i, j)
			if r <= cfg.Cutoff {
				springs = append(springs, spring{i: i, j: j, rest: r})
			}
		}
	}
	if len(springs) == 0 {
		return nil, errors.New("no atom pairs within cutoff")
	}
	return &HarmonicRelaxer{
		springs: springs,
		k:       k,
		sim:     cfg.Sim,
		temp:    cfg.Temp,
		tSteps:  cfg.TSteps,
		seed:    cfg.Seed,
	}, nil
}

func (r *HarmonicRelaxer) Relax(ctx context.Context, cycle int, coords []float64) (float64, []float64) {
	if ctx.Err() != nil {
		return math.NaN(), nil
	}

	x := append([]float64(nil), coords...)
	if r.sim {
		r.heat(x, cycle)
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 { return r.energy(x) },
		Grad: func(grad, x []float64) { r.gradient(grad, x) },
	}
	settings := &optimize.Settings{
		GradientThreshold: 1e-6,
		MajorIterations:   500,
	}
	result, err := optimize.Minimize(problem, x, settings, &optimize.LBFGS{})
	if err != nil || result == nil || !isFinite(result.X) {
		return math.NaN(), nil
	}
	return result.F, result.X
}

// heat applies Langevin-like noisy descent steps before minimization.
func (r *HarmonicRelaxer) heat(x []float64, cycle int) {
	steps := DefaultHeatSteps
	if cycle < len(r.tSteps) && r.tSteps[cycle] > 0 {
		steps = r.tSteps[cycle]
	}
	rng := rand.New(rand.NewSource(r.seed + r.calls.Add(1)))
	noise := math.Sqrt(2 * heatStepSize * r.temp)
	grad := make([]float64, len(x))
	for s := 0; s < steps; s++ {
		r.gradient(grad, x)
		for d := range x {
			x[d] += -heatStepSize*grad[d] + noise*rng.NormFloat64()
		}
	}
}

func (r *HarmonicRelaxer) energy(x []float64) float64 {
	e := 0.0
	for _, s := range r.springs {
		d := distance(x, s.i, s.j) - s.rest
		e += r.k * d * d
	}
	return e
}

func (r *HarmonicRelaxer) gradient(grad []float64, x []float64) {
	for d := range grad {
		grad[d] = 0
	}
	for _, s := range r.springs {
		dx := x[3*s.i] - x[3*s.j]
		dy := x[3*s.i+1] - x[3*s.j+1]
		dz := x[3*s.i+2] - x[3*s.j+2]
		r0 := math.Sqrt(dx*dx + dy*dy + dz*dz)
		if r0 == 0 {
			continue
		}
		f := 2 * r.k * (r0 - s.rest) / r0
		grad[3*s.i] += f * dx
		grad[3*s.i+1] += f * dy
		grad[3*s.i+2] += f * dz
		grad[3*s.j] -= f * dx
		grad[3*s.j+1] -= f * dy
		grad[3*s.j+2] -= f * dz
	}
}

func distance(coords []float64, i, j int) float64 {
	dx := coords[3*i] - coords[3*j]
	dy := coords[3*i+1] - coords[3*j+1]
	dz := coords[3*i+2] - coords[3*j+2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func isFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
