package scenario

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"bitevo/internal/evo"
	"bitevo/internal/genotype"
	"bitevo/internal/model"
)

// Observer receives progress events. Calls are serialized by the runner.
type Observer interface {
	ScenarioStarted(index int, s model.Scenario)
	ScenarioFinished(result Result)
}

type Result struct {
	Index        int
	RunID        string
	Scenario     model.Scenario
	Report       model.RunReport
	CreatedAtUTC time.Time
}

type Options struct {
	// Parallelism bounds concurrently running scenarios; <= 0 uses GOMAXPROCS.
	Parallelism           int
	Selection             string
	TournamentSize        int
	Crossover             string
	Mutation              string
	Fitness               string
	OnInvalidDistribution evo.DistributionPolicy
	SnapshotEvery         int
	// Initial, when set, seeds every scenario instead of Scenario.Init.
	Initial  model.Population
	Observer Observer
	Now      func() time.Time
	NewRunID func() string
}

type Runner struct {
	opts      Options
	selector  evo.Selector
	crossover evo.Recombinator
	mutation  evo.Mutator
	fitness   evo.FitnessFunc

	observerMu sync.Mutex
}

func NewRunner(opts Options) (*Runner, error) {
	selector, err := evo.SelectorFromName(opts.Selection, opts.TournamentSize)
	if err != nil {
		return nil, err
	}
	crossover, err := evo.RecombinatorFromName(opts.Crossover)
	if err != nil {
		return nil, err
	}
	mutation, err := evo.MutatorFromName(opts.Mutation)
	if err != nil {
		return nil, err
	}
	fitness, err := evo.FitnessFromName(opts.Fitness)
	if err != nil {
		return nil, err
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.GOMAXPROCS(0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = NewRunID
	}
	return &Runner{
		opts:      opts,
		selector:  selector,
		crossover: crossover,
		mutation:  mutation,
		fitness:   fitness,
	}, nil
}

// Validate checks every scenario before any of them starts.
func (r *Runner) Validate(scenarios []model.Scenario) error {
	if len(scenarios) == 0 {
		return fmt.Errorf("%w: no scenarios", evo.ErrInvalidConfiguration)
	}
	for i, s := range scenarios {
		if err := evo.ValidateScenario(s); err != nil {
			return fmt.Errorf("%s: %w", Label(i, s), err)
		}
		if r.opts.Initial != nil {
			if len(r.opts.Initial) != s.PopulationSize {
				return fmt.Errorf("%s: %w: initial population has %d individuals, want %d",
					Label(i, s), evo.ErrInvalidConfiguration, len(r.opts.Initial), s.PopulationSize)
			}
			for j, c := range r.opts.Initial {
				if err := genotype.Validate(c, s.ChromosomeLength); err != nil {
					return fmt.Errorf("%s: %w: individual %d: %v", Label(i, s), evo.ErrInvalidConfiguration, j, err)
				}
			}
		}
	}
	return nil
}

// RunAll runs every scenario on its own engine and returns results in input
// order. Cancellation is only observed before a scenario starts; a started
// scenario always runs to completion.
func (r *Runner) RunAll(ctx context.Context, scenarios []model.Scenario) ([]Result, error) {
	if err := r.Validate(scenarios); err != nil {
		return nil, err
	}

	results := make([]Result, len(scenarios))
	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(r.opts.Parallelism)
	for i, s := range scenarios {
		i, s := i, s // per-iteration copies (go.mod targets go 1.21)
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			result, err := r.runOne(i, s)
			if err != nil {
				return fmt.Errorf("%s: %w", Label(i, s), err)
			}
			results[i] = result
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Runner) runOne(index int, s model.Scenario) (Result, error) {
	r.notify(func(o Observer) { o.ScenarioStarted(index, s) })

	engine, err := evo.NewEngine(evo.EngineConfig{
		Scenario:              s,
		Fitness:               r.fitness,
		Selector:              r.selector,
		Crossover:             r.crossover,
		Mutation:              r.mutation,
		OnInvalidDistribution: r.opts.OnInvalidDistribution,
		SnapshotEvery:         r.opts.SnapshotEvery,
		Now:                   r.opts.Now,
	})
	if err != nil {
		return Result{}, err
	}
	var initial model.Population
	if r.opts.Initial != nil {
		initial = r.opts.Initial.Clone()
	}
	report, err := engine.Run(initial)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Index:        index,
		RunID:        r.opts.NewRunID(),
		Scenario:     s,
		Report:       report,
		CreatedAtUTC: r.opts.Now().UTC(),
	}
	r.notify(func(o Observer) { o.ScenarioFinished(result) })
	return result, nil
}

func (r *Runner) notify(fn func(Observer)) {
	if r.opts.Observer == nil {
		return
	}
	r.observerMu.Lock()
	defer r.observerMu.Unlock()
	fn(r.opts.Observer)
}
