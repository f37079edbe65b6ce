package genotype

import (
	"errors"
	"fmt"
	"math/rand"

	"bitevo/internal/model"
)

var ErrUnsupportedSeed = errors.New("unsupported seed")

// LiteralPopulation returns the fixed four-individual seed used for parity
// runs: 18, 6, 11 and 27.
func LiteralPopulation() model.Population {
	return model.Population{
		{1, 0, 0, 1, 0},
		{0, 0, 1, 1, 0},
		{0, 1, 0, 1, 1},
		{1, 1, 0, 1, 1},
	}
}

// RandomPopulation draws every gene uniformly from rng.
func RandomPopulation(rng *rand.Rand, size, length int) (model.Population, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if size <= 0 || length <= 0 {
		return nil, fmt.Errorf("invalid population shape: size=%d length=%d", size, length)
	}
	population := make(model.Population, size)
	for i := range population {
		c := make(model.Chromosome, length)
		for j := range c {
			c[j] = uint8(rng.Intn(2))
		}
		population[i] = c
	}
	return population, nil
}

// Seed builds an initial population for the requested mode. The literal seed
// only exists for populations of 4 chromosomes of length 5.
func Seed(mode model.InitMode, rng *rand.Rand, size, length int) (model.Population, error) {
	switch mode {
	case "", model.InitLiteral:
		literal := LiteralPopulation()
		if size != len(literal) || length != len(literal[0]) {
			return nil, fmt.Errorf("%w: literal seed is %dx%d, got size=%d length=%d",
				ErrUnsupportedSeed, len(literal), len(literal[0]), size, length)
		}
		return literal, nil
	case model.InitRandom:
		return RandomPopulation(rng, size, length)
	default:
		return nil, fmt.Errorf("%w: init mode %q", ErrUnsupportedSeed, mode)
	}
}
