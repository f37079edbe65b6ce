package evo

import (
	"math/bits"

	"bitevo/internal/genotype"
	"bitevo/internal/model"
)

// FitnessFunc scores a decoded chromosome value. Implementations must be pure.
type FitnessFunc func(x uint64) float64

// Parabola is the default objective f(x) = -x² + 4x, peaking at f(2) = 4.
func Parabola(x uint64) float64 {
	v := float64(x)
	return -v*v + 4*v
}

// Identity maximizes the decoded value itself.
func Identity(x uint64) float64 {
	return float64(x)
}

// OneMax counts set genes.
func OneMax(x uint64) float64 {
	return float64(bits.OnesCount64(x))
}

// Evaluate decodes and scores every individual, preserving population order.
func Evaluate(population model.Population, fn FitnessFunc) model.GenerationRecord {
	if fn == nil {
		fn = Parabola
	}
	out := make(model.GenerationRecord, len(population))
	for i, c := range population {
		out[i] = fn(genotype.Decode(c))
	}
	return out
}
