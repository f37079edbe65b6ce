package evo

import (
	"math/rand"

	"bitevo/internal/model"
)

// BitFlipMutation flips each gene independently with probability pm.
type BitFlipMutation struct{}

func (BitFlipMutation) Name() string {
	return "bit_flip"
}

func (BitFlipMutation) Mutate(rng *rand.Rand, c model.Chromosome, pm float64) model.Chromosome {
	out := make(model.Chromosome, len(c))
	for i, gene := range c {
		if rng.Float64() < pm {
			out[i] = 1 - gene
		} else {
			out[i] = gene
		}
	}
	return out
}
