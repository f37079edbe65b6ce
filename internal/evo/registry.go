package evo

import (
	"errors"
	"fmt"
	"strings"
)

var ErrOperatorNotFound = errors.New("operator not found")

// SelectorFromName resolves a selection strategy. tournamentSize only applies
// to "tournament".
func SelectorFromName(name string, tournamentSize int) (Selector, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "roulette":
		return RouletteSelector{}, nil
	case "tournament":
		return TournamentSelector{Size: tournamentSize}, nil
	case "uniform":
		return UniformSelector{}, nil
	default:
		return nil, fmt.Errorf("%w: selection %s", ErrOperatorNotFound, name)
	}
}

func RecombinatorFromName(name string) (Recombinator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "uniform":
		return UniformCrossover{}, nil
	case "single_point":
		return SinglePointCrossover{}, nil
	default:
		return nil, fmt.Errorf("%w: crossover %s", ErrOperatorNotFound, name)
	}
}

func MutatorFromName(name string) (Mutator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "bit_flip":
		return BitFlipMutation{}, nil
	default:
		return nil, fmt.Errorf("%w: mutation %s", ErrOperatorNotFound, name)
	}
}

func FitnessFromName(name string) (FitnessFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "parabola":
		return Parabola, nil
	case "identity":
		return Identity, nil
	case "onemax":
		return OneMax, nil
	default:
		return nil, fmt.Errorf("%w: fitness %s", ErrOperatorNotFound, name)
	}
}

func ListSelectors() []string     { return []string{"roulette", "tournament", "uniform"} }
func ListRecombinators() []string { return []string{"single_point", "uniform"} }
func ListMutators() []string      { return []string{"bit_flip"} }
func ListFitness() []string       { return []string{"identity", "onemax", "parabola"} }
