package evo

import (
	"math/rand"

	"bitevo/internal/model"
)

// UniformCrossover recombines with probability pc, drawing a fresh coin per
// gene position to decide whether the parents swap contributions there.
// Otherwise both children are copies of their parents.
type UniformCrossover struct{}

func (UniformCrossover) Name() string {
	return "uniform"
}

func (UniformCrossover) Crossover(rng *rand.Rand, a, b model.Chromosome, pc float64) (model.Chromosome, model.Chromosome) {
	if rng.Float64() >= pc {
		return a.Clone(), b.Clone()
	}
	c1 := make(model.Chromosome, len(a))
	c2 := make(model.Chromosome, len(b))
	for i := range a {
		if rng.Float64() < 0.5 {
			c1[i], c2[i] = a[i], b[i]
		} else {
			c1[i], c2[i] = b[i], a[i]
		}
	}
	return c1, c2
}

// SinglePointCrossover exchanges the tails of both parents after a cut point
// drawn uniformly from [1, len-1].
type SinglePointCrossover struct{}

func (SinglePointCrossover) Name() string {
	return "single_point"
}

func (SinglePointCrossover) Crossover(rng *rand.Rand, a, b model.Chromosome, pc float64) (model.Chromosome, model.Chromosome) {
	if rng.Float64() >= pc || len(a) < 2 {
		return a.Clone(), b.Clone()
	}
	cut := 1 + rng.Intn(len(a)-1)
	c1 := make(model.Chromosome, 0, len(a))
	c2 := make(model.Chromosome, 0, len(b))
	c1 = append(append(c1, a[:cut]...), b[cut:]...)
	c2 = append(append(c2, b[:cut]...), a[cut:]...)
	return c1, c2
}
