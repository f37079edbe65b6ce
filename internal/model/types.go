package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Chromosome is a fixed-length sequence of binary genes, most significant
// gene first.
type Chromosome []uint8

// Equal reports whether both chromosomes carry the same genes.
func (c Chromosome) Equal(other Chromosome) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

func (c Chromosome) Clone() Chromosome {
	return append(Chromosome(nil), c...)
}

func (c Chromosome) String() string {
	buf := make([]byte, len(c))
	for i, gene := range c {
		buf[i] = '0' + gene
	}
	return string(buf)
}

// MarshalJSON encodes the chromosome as a bit string such as "10010".
func (c Chromosome) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Chromosome) UnmarshalJSON(data []byte) error {
	var bits string
	if err := json.Unmarshal(data, &bits); err != nil {
		return err
	}
	parsed, err := ParseChromosome(bits)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseChromosome reads a bit string such as "10010".
func ParseChromosome(bits string) (Chromosome, error) {
	out := make(Chromosome, len(bits))
	for i := 0; i < len(bits); i++ {
		switch bits[i] {
		case '0':
			out[i] = 0
		case '1':
			out[i] = 1
		default:
			return nil, fmt.Errorf("invalid gene %q at position %d", bits[i], i)
		}
	}
	return out, nil
}

type Population []Chromosome

func (p Population) Clone() Population {
	out := make(Population, len(p))
	for i, c := range p {
		out[i] = c.Clone()
	}
	return out
}

// GenerationRecord holds the fitness of every individual at one generation
// boundary, index-aligned with the population.
type GenerationRecord []float64

type InitMode string

const (
	InitLiteral InitMode = "literal"
	InitRandom  InitMode = "random"
)

// Scenario is the configuration of one run.
type Scenario struct {
	Name             string   `json:"name,omitempty"`
	Pc               float64  `json:"pc"`
	Pm               float64  `json:"pm"`
	MaxGen           int      `json:"max_gen"`
	PopulationSize   int      `json:"population_size"`
	ChromosomeLength int      `json:"chromosome_length"`
	Seed             int64    `json:"seed"`
	Init             InitMode `json:"init,omitempty"`
}

// Snapshot captures the roulette wheel of one generation.
type Snapshot struct {
	Generation    int              `json:"generation"`
	Population    Population       `json:"population"`
	Fitness       GenerationRecord `json:"fitness"`
	Probabilities []float64        `json:"probabilities"`
}

// RunReport is the aggregate result of one run. AverageFitness and
// MaxFitness describe the population after the last replacement, while
// FitnessPerGeneration is captured before each generation's reproduction.
type RunReport struct {
	Elapsed              time.Duration      `json:"elapsed_ns"`
	FitnessPerGeneration []GenerationRecord `json:"fitness_per_generation"`
	AverageFitness       float64            `json:"average_fitness"`
	MaxFitness           float64            `json:"max_fitness"`
	CrossoverCount       int                `json:"crossover_count"`
	MutationCount        int                `json:"mutation_count"`
	UniformFallbacks     int                `json:"uniform_fallbacks,omitempty"`
	FinalPopulation      Population         `json:"final_population"`
	FinalFitness         GenerationRecord   `json:"final_fitness"`
	Snapshots            []Snapshot         `json:"snapshots,omitempty"`
}

// RunRecord is a persisted run: the scenario that produced it and its report.
type RunRecord struct {
	VersionedRecord
	RunID        string    `json:"run_id"`
	Scenario     Scenario  `json:"scenario"`
	Report       RunReport `json:"report"`
	CreatedAtUTC time.Time `json:"created_at_utc"`
}
