package evo

import (
	"math/rand"

	"bitevo/internal/model"
)

// Operator is the common capability of every genetic operator: a stable name
// used for lookup and reporting. Operators hold no per-run state; the random
// source is always passed in by the engine that owns it.
type Operator interface {
	Name() string
}

// Selector picks two parents, with replacement, from a scored population.
type Selector interface {
	Operator
	Select(rng *rand.Rand, population model.Population, fitness model.GenerationRecord) (model.Chromosome, model.Chromosome, error)
}

// Recombinator produces two children from two parents.
type Recombinator interface {
	Operator
	Crossover(rng *rand.Rand, a, b model.Chromosome, pc float64) (model.Chromosome, model.Chromosome)
}

// Mutator returns a mutated copy of a chromosome.
type Mutator interface {
	Operator
	Mutate(rng *rand.Rand, c model.Chromosome, pm float64) model.Chromosome
}
