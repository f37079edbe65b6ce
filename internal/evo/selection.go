package evo

import (
	"errors"
	"fmt"
	"math/rand"

	"bitevo/internal/model"
)

// ErrInvalidDistribution reports selection weights that do not sum to a
// positive total.
var ErrInvalidDistribution = errors.New("invalid selection distribution")

// SelectionWeights returns the roulette weights for a fitness vector and their
// total. When any fitness is negative every value is shifted by -min+1 so the
// smallest weight becomes exactly 1; otherwise raw values are used. A
// non-positive total yields ErrInvalidDistribution.
func SelectionWeights(fitness model.GenerationRecord) ([]float64, float64, error) {
	if len(fitness) == 0 {
		return nil, 0, fmt.Errorf("%w: empty fitness vector", ErrInvalidDistribution)
	}
	minFitness := fitness[0]
	for _, f := range fitness[1:] {
		if f < minFitness {
			minFitness = f
		}
	}
	shifted := minFitness < 0

	weights := make([]float64, len(fitness))
	total := 0.0
	for i, f := range fitness {
		if shifted {
			// subtract first: adding -min+1 loses the 1 once |min| > 2^53
			weights[i] = (f - minFitness) + 1
		} else {
			weights[i] = f
		}
		total += weights[i]
	}
	if !(total > 0) {
		return weights, total, fmt.Errorf("%w: total=%g", ErrInvalidDistribution, total)
	}
	return weights, total, nil
}

// SelectionProbabilities normalizes the roulette weights. On an invalid
// distribution it returns the uniform distribution together with the error.
func SelectionProbabilities(fitness model.GenerationRecord) ([]float64, error) {
	weights, total, err := SelectionWeights(fitness)
	probabilities := make([]float64, len(fitness))
	if err != nil {
		for i := range probabilities {
			probabilities[i] = 1 / float64(len(probabilities))
		}
		return probabilities, err
	}
	for i, w := range weights {
		probabilities[i] = w / total
	}
	return probabilities, nil
}

// RouletteSelector draws parents with probability proportional to their
// (possibly shifted) fitness.
type RouletteSelector struct{}

func (RouletteSelector) Name() string {
	return "roulette"
}

func (RouletteSelector) Select(rng *rand.Rand, population model.Population, fitness model.GenerationRecord) (model.Chromosome, model.Chromosome, error) {
	if err := checkSelectionInput(rng, population, fitness); err != nil {
		return nil, nil, err
	}
	weights, total, err := SelectionWeights(fitness)
	if err != nil {
		return nil, nil, err
	}
	a := population[spin(rng, weights, total)]
	b := population[spin(rng, weights, total)]
	return a, b, nil
}

func spin(rng *rand.Rand, weights []float64, total float64) int {
	target := rng.Float64() * total
	cumulative := 0.0
	last := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		cumulative += w
		last = i
		if target < cumulative {
			return i
		}
	}
	// rounding can leave target just above the final cumulative sum
	return last
}

// UniformSelector ignores fitness and draws both parents uniformly.
type UniformSelector struct{}

func (UniformSelector) Name() string {
	return "uniform"
}

func (UniformSelector) Select(rng *rand.Rand, population model.Population, fitness model.GenerationRecord) (model.Chromosome, model.Chromosome, error) {
	if err := checkSelectionInput(rng, population, fitness); err != nil {
		return nil, nil, err
	}
	return population[rng.Intn(len(population))], population[rng.Intn(len(population))], nil
}

// TournamentSelector samples Size individuals with replacement and keeps the
// fittest, once per parent.
type TournamentSelector struct {
	Size int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) Select(rng *rand.Rand, population model.Population, fitness model.GenerationRecord) (model.Chromosome, model.Chromosome, error) {
	if err := checkSelectionInput(rng, population, fitness); err != nil {
		return nil, nil, err
	}
	size := s.Size
	if size <= 0 {
		size = 2
	}
	pick := func() model.Chromosome {
		best := rng.Intn(len(population))
		for i := 1; i < size; i++ {
			candidate := rng.Intn(len(population))
			if fitness[candidate] > fitness[best] {
				best = candidate
			}
		}
		return population[best]
	}
	a := pick()
	b := pick()
	return a, b, nil
}

func checkSelectionInput(rng *rand.Rand, population model.Population, fitness model.GenerationRecord) error {
	if rng == nil {
		return fmt.Errorf("random source is required")
	}
	if len(population) == 0 {
		return fmt.Errorf("population is empty")
	}
	if len(population) != len(fitness) {
		return fmt.Errorf("fitness mismatch: population=%d fitness=%d", len(population), len(fitness))
	}
	return nil
}
