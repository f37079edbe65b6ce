package genotype

import (
	"errors"
	"fmt"

	"bitevo/internal/model"
)

// MaxChromosomeLength bounds the chromosome so its decoded value fits the
// signed range used by fitness functions.
const MaxChromosomeLength = 63

var ErrInvalidChromosome = errors.New("invalid chromosome")

// Decode reads the chromosome as a big-endian unsigned integer. Genes other
// than 0 and 1 are a caller bug and panic; use Validate on untrusted input.
func Decode(c model.Chromosome) uint64 {
	var value uint64
	for i, gene := range c {
		if gene > 1 {
			panic(fmt.Sprintf("genotype: gene %d at position %d is not binary", gene, i))
		}
		value = value<<1 | uint64(gene)
	}
	return value
}

// Encode is the inverse of Decode for values representable in length genes.
func Encode(value uint64, length int) model.Chromosome {
	out := make(model.Chromosome, length)
	for i := length - 1; i >= 0; i-- {
		out[i] = uint8(value & 1)
		value >>= 1
	}
	return out
}

func Validate(c model.Chromosome, length int) error {
	if len(c) != length {
		return fmt.Errorf("%w: length=%d want=%d", ErrInvalidChromosome, len(c), length)
	}
	for i, gene := range c {
		if gene > 1 {
			return fmt.Errorf("%w: gene %d at position %d", ErrInvalidChromosome, gene, i)
		}
	}
	return nil
}

// Hamming counts the positions where a and b differ.
func Hamming(a, b model.Chromosome) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	diff := 0
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			diff++
		}
	}
	return diff
}
