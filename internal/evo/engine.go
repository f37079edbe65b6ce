package evo

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"bitevo/internal/genotype"
	"bitevo/internal/model"
)

var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrNonFiniteFitness     = errors.New("non-finite fitness")
	ErrEngineCompleted      = errors.New("engine already completed")
	ErrEngineFailed         = errors.New("engine failed")
)

// DistributionPolicy decides what the engine does when the selector reports
// ErrInvalidDistribution (every fitness is exactly zero).
type DistributionPolicy string

const (
	// FallbackUniform draws both parents uniformly and counts the event in
	// RunReport.UniformFallbacks.
	FallbackUniform DistributionPolicy = "fallback_uniform"
	// FailRun aborts the run with the selector error.
	FailRun DistributionPolicy = "fail_run"
)

type State int

const (
	StateInitialized State = iota
	StateEvolving
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateEvolving:
		return "evolving"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type EngineConfig struct {
	Scenario              model.Scenario
	Fitness               FitnessFunc
	Selector              Selector
	Crossover             Recombinator
	Mutation              Mutator
	OnInvalidDistribution DistributionPolicy
	// SnapshotEvery records the roulette wheel of every generation divisible
	// by it. Zero disables snapshots.
	SnapshotEvery int
	// Rand overrides the source seeded from Scenario.Seed.
	Rand *rand.Rand
	Now  func() time.Time
}

// Engine runs one scenario to completion. It owns its random source and
// population and is not safe for concurrent use.
type Engine struct {
	cfg        EngineConfig
	rng        *rand.Rand
	state      State
	generation int
}

// ValidateScenario rejects configurations the generational loop cannot run.
// Values are never clamped.
func ValidateScenario(s model.Scenario) error {
	if s.PopulationSize <= 0 || s.PopulationSize%2 != 0 {
		return fmt.Errorf("%w: population size must be positive and even, got %d", ErrInvalidConfiguration, s.PopulationSize)
	}
	if s.ChromosomeLength <= 0 || s.ChromosomeLength > genotype.MaxChromosomeLength {
		return fmt.Errorf("%w: chromosome length must be in [1, %d], got %d", ErrInvalidConfiguration, genotype.MaxChromosomeLength, s.ChromosomeLength)
	}
	if !inUnitInterval(s.Pc) {
		return fmt.Errorf("%w: crossover probability must be in [0, 1], got %v", ErrInvalidConfiguration, s.Pc)
	}
	if !inUnitInterval(s.Pm) {
		return fmt.Errorf("%w: mutation probability must be in [0, 1], got %v", ErrInvalidConfiguration, s.Pm)
	}
	if s.MaxGen < 0 {
		return fmt.Errorf("%w: max generations must be >= 0, got %d", ErrInvalidConfiguration, s.MaxGen)
	}
	switch s.Init {
	case "", model.InitLiteral, model.InitRandom:
	default:
		return fmt.Errorf("%w: unknown init mode %q", ErrInvalidConfiguration, s.Init)
	}
	return nil
}

func inUnitInterval(p float64) bool {
	return p >= 0 && p <= 1
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := ValidateScenario(cfg.Scenario); err != nil {
		return nil, err
	}
	switch cfg.OnInvalidDistribution {
	case "":
		cfg.OnInvalidDistribution = FallbackUniform
	case FallbackUniform, FailRun:
	default:
		return nil, fmt.Errorf("%w: unknown distribution policy %q", ErrInvalidConfiguration, cfg.OnInvalidDistribution)
	}
	if cfg.SnapshotEvery < 0 {
		return nil, fmt.Errorf("%w: snapshot interval must be >= 0", ErrInvalidConfiguration)
	}
	if cfg.Fitness == nil {
		cfg.Fitness = Parabola
	}
	if cfg.Selector == nil {
		cfg.Selector = RouletteSelector{}
	}
	if cfg.Crossover == nil {
		cfg.Crossover = UniformCrossover{}
	}
	if cfg.Mutation == nil {
		cfg.Mutation = BitFlipMutation{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(cfg.Scenario.Seed))
	}
	return &Engine{cfg: cfg, rng: rng, state: StateInitialized}, nil
}

func (e *Engine) State() State {
	return e.state
}

// Generation returns the number of completed generations.
func (e *Engine) Generation() int {
	return e.generation
}

func (e *Engine) Scenario() model.Scenario {
	return e.cfg.Scenario
}

// Run evolves the population for Scenario.MaxGen generations. A nil initial
// population is seeded according to Scenario.Init. An engine runs once; after
// a mid-run error it stays in StateFailed.
func (e *Engine) Run(initial model.Population) (model.RunReport, error) {
	switch e.state {
	case StateInitialized:
	case StateFailed:
		return model.RunReport{}, fmt.Errorf("%w: generation %d", ErrEngineFailed, e.generation)
	default:
		return model.RunReport{}, ErrEngineCompleted
	}
	population, err := e.initialPopulation(initial)
	if err != nil {
		return model.RunReport{}, err
	}

	e.state = StateEvolving
	report, err := e.evolve(population)
	if err != nil {
		e.state = StateFailed
		return model.RunReport{}, err
	}
	e.state = StateCompleted
	return report, nil
}

func (e *Engine) evolve(population model.Population) (model.RunReport, error) {
	sc := e.cfg.Scenario
	start := e.cfg.Now()

	report := model.RunReport{
		FitnessPerGeneration: make([]model.GenerationRecord, 0, sc.MaxGen),
	}
	for gen := 0; gen < sc.MaxGen; gen++ {
		fitness, err := e.evaluate(population)
		if err != nil {
			return model.RunReport{}, err
		}
		report.FitnessPerGeneration = append(report.FitnessPerGeneration, fitness)

		if e.cfg.SnapshotEvery > 0 && gen%e.cfg.SnapshotEvery == 0 {
			probabilities, _ := SelectionProbabilities(fitness)
			report.Snapshots = append(report.Snapshots, model.Snapshot{
				Generation:    gen,
				Population:    population.Clone(),
				Fitness:       append(model.GenerationRecord(nil), fitness...),
				Probabilities: probabilities,
			})
		}

		population, err = e.reproduce(population, fitness, &report)
		if err != nil {
			return model.RunReport{}, err
		}
		e.generation = gen + 1
	}

	end := e.cfg.Now()
	final, err := e.evaluate(population)
	if err != nil {
		return model.RunReport{}, err
	}
	report.Elapsed = end.Sub(start)
	report.FinalPopulation = population
	report.FinalFitness = final
	report.AverageFitness = stat.Mean(final, nil)
	report.MaxFitness = floats.Max(final)
	return report, nil
}

func (e *Engine) initialPopulation(initial model.Population) (model.Population, error) {
	sc := e.cfg.Scenario
	if initial == nil {
		return genotype.Seed(sc.Init, e.rng, sc.PopulationSize, sc.ChromosomeLength)
	}
	if len(initial) != sc.PopulationSize {
		return nil, fmt.Errorf("%w: initial population mismatch: got=%d want=%d", ErrInvalidConfiguration, len(initial), sc.PopulationSize)
	}
	for i, c := range initial {
		if err := genotype.Validate(c, sc.ChromosomeLength); err != nil {
			return nil, fmt.Errorf("%w: individual %d: %v", ErrInvalidConfiguration, i, err)
		}
	}
	return initial.Clone(), nil
}

func (e *Engine) evaluate(population model.Population) (model.GenerationRecord, error) {
	fitness := Evaluate(population, e.cfg.Fitness)
	for i, f := range fitness {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: individual %d (%s) scored %v", ErrNonFiniteFitness, i, population[i], f)
		}
	}
	return fitness, nil
}

// reproduce builds the next generation pair by pair. The crossover counter
// increments when either child differs from its parent before mutation; the
// mutation counter adds each mutated child's distance to its original parent.
func (e *Engine) reproduce(population model.Population, fitness model.GenerationRecord, report *model.RunReport) (model.Population, error) {
	sc := e.cfg.Scenario
	next := make(model.Population, 0, len(population)+1)
	for len(next) < len(population) {
		p1, p2, err := e.selectParents(population, fitness, report)
		if err != nil {
			return nil, err
		}

		c1, c2 := e.cfg.Crossover.Crossover(e.rng, p1, p2, sc.Pc)
		if !c1.Equal(p1) || !c2.Equal(p2) {
			report.CrossoverCount++
		}

		c1 = e.cfg.Mutation.Mutate(e.rng, c1, sc.Pm)
		c2 = e.cfg.Mutation.Mutate(e.rng, c2, sc.Pm)
		report.MutationCount += genotype.Hamming(c1, p1) + genotype.Hamming(c2, p2)

		next = append(next, c1, c2)
	}
	return next[:len(population)], nil
}

func (e *Engine) selectParents(population model.Population, fitness model.GenerationRecord, report *model.RunReport) (model.Chromosome, model.Chromosome, error) {
	p1, p2, err := e.cfg.Selector.Select(e.rng, population, fitness)
	if err == nil {
		return p1, p2, nil
	}
	if !errors.Is(err, ErrInvalidDistribution) || e.cfg.OnInvalidDistribution != FallbackUniform {
		return nil, nil, fmt.Errorf("generation %d: %s selection: %w", e.generation, e.cfg.Selector.Name(), err)
	}
	report.UniformFallbacks++
	return UniformSelector{}.Select(e.rng, population, fitness)
}
