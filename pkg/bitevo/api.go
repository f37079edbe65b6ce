package bitevo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"bitevo/internal/evo"
	"bitevo/internal/genotype"
	"bitevo/internal/model"
	"bitevo/internal/scenario"
	"bitevo/internal/stats"
	"bitevo/internal/storage"
)

const (
	defaultBenchmarksDir = "benchmarks"
	defaultExportsDir    = "exports"
	defaultDBPath        = "bitevo.db"
	comparisonsDir       = "comparisons"
)

type Options struct {
	StoreKind     string
	DBPath        string
	BenchmarksDir string
	ExportsDir    string
	// Now overrides the wall clock for run timing and timestamps.
	Now func() time.Time
	// NewRunID overrides run and batch identifier generation.
	NewRunID func() string
}

type Client struct {
	store      storage.Store
	storeReady bool
	now        func() time.Time
	newRunID   func() string
	benchmarks string
	exportsDir string
}

type RunRequest struct {
	// Scenarios defaults to scenario.DefaultScenarios().
	Scenarios      []model.Scenario
	Initial        model.Population
	Parallelism    int
	Selection      string
	TournamentSize int
	Crossover      string
	Mutation       string
	Fitness        string
	Policy         string
	SnapshotEvery  int
	Observer       scenario.Observer
}

type RunResult struct {
	RunID        string
	Label        string
	ArtifactsDir string
	Scenario     model.Scenario
	Report       model.RunReport
}

type RunSummary struct {
	BatchID       string
	Runs          []RunResult
	Comparison    []stats.MetricSeries
	ComparisonDir string
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID          string
	Name           string
	CreatedAtUTC   string
	Pc             float64
	Pm             float64
	MaxGen         int
	PopulationSize int
	Seed           int64
	AverageFitness float64
	MaxFitness     float64
}

type ReportRequest struct {
	RunID  string
	Latest bool
}

type ReportSummary struct {
	RunID        string
	Scenario     model.Scenario
	Report       model.RunReport
	Diagnostics  []stats.GenerationDiagnostics
	CreatedAtUTC time.Time
}

type CompareRequest struct {
	RunIDs []string
	// Latest compares the most recent runs when no ids are given.
	Latest int
	OutDir string
}

type CompareSummary struct {
	RunIDs    []string
	Series    []stats.MetricSeries
	Directory string
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type DeleteRequest struct {
	RunID string
}

type DeleteSummary struct {
	RunID string
	// Stored and Artifacts report which copies of the run were removed.
	Stored    bool
	Artifacts bool
}

type ProbabilitiesRequest struct {
	Population []string
	Fitness    string
}

type ProbabilityItem struct {
	Chromosome  string
	Value       uint64
	Fitness     float64
	Probability float64
}

type ProbabilitiesSummary struct {
	Items []ProbabilityItem
	// Uniform is set when every weight was zero and the uniform distribution
	// was substituted.
	Uniform bool
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	benchmarksDir := opts.BenchmarksDir
	if benchmarksDir == "" {
		benchmarksDir = defaultBenchmarksDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newRunID := opts.NewRunID
	if newRunID == nil {
		newRunID = scenario.NewRunID
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		now:        now,
		newRunID:   newRunID,
		benchmarks: benchmarksDir,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.ensureStore(ctx)
}

// Run executes every requested scenario, persists each result and writes
// per-run artifacts plus a cross-scenario comparison.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	scenarios := req.Scenarios
	if len(scenarios) == 0 {
		scenarios = scenario.DefaultScenarios()
	}
	if req.Selection == "" {
		req.Selection = "roulette"
	}
	if req.Crossover == "" {
		req.Crossover = "uniform"
	}
	if req.Mutation == "" {
		req.Mutation = "bit_flip"
	}
	if req.Fitness == "" {
		req.Fitness = "parabola"
	}
	policy, err := policyFromName(req.Policy)
	if err != nil {
		return RunSummary{}, err
	}
	if req.SnapshotEvery < 0 {
		return RunSummary{}, errors.New("snapshot interval must be >= 0")
	}

	if err := c.ensureStore(ctx); err != nil {
		return RunSummary{}, err
	}

	runner, err := scenario.NewRunner(scenario.Options{
		Parallelism:           req.Parallelism,
		Selection:             req.Selection,
		TournamentSize:        req.TournamentSize,
		Crossover:             req.Crossover,
		Mutation:              req.Mutation,
		Fitness:               req.Fitness,
		OnInvalidDistribution: policy,
		SnapshotEvery:         req.SnapshotEvery,
		Initial:               req.Initial,
		Observer:              req.Observer,
		Now:                   c.now,
		NewRunID:              c.newRunID,
	})
	if err != nil {
		return RunSummary{}, err
	}
	results, err := runner.RunAll(ctx, scenarios)
	if err != nil {
		return RunSummary{}, err
	}

	summary := RunSummary{
		BatchID: c.newRunID(),
		Runs:    make([]RunResult, 0, len(results)),
	}
	entries := make([]stats.ComparisonEntry, 0, len(results))
	for _, result := range results {
		if err := c.store.SaveRun(ctx, storage.Stamp(model.RunRecord{
			RunID:        result.RunID,
			Scenario:     result.Scenario,
			Report:       result.Report,
			CreatedAtUTC: result.CreatedAtUTC,
		})); err != nil {
			return RunSummary{}, err
		}

		artifacts := stats.RunArtifacts{
			RunID:        result.RunID,
			Scenario:     result.Scenario,
			Report:       result.Report,
			CreatedAtUTC: result.CreatedAtUTC,
		}
		runDir, err := stats.WriteRunArtifacts(c.benchmarks, artifacts)
		if err != nil {
			return RunSummary{}, err
		}
		if err := stats.AppendRunIndex(c.benchmarks, stats.NewRunIndexEntry(artifacts)); err != nil {
			return RunSummary{}, err
		}

		label := scenario.Label(result.Index, result.Scenario)
		summary.Runs = append(summary.Runs, RunResult{
			RunID:        result.RunID,
			Label:        label,
			ArtifactsDir: filepath.Clean(runDir),
			Scenario:     result.Scenario,
			Report:       result.Report,
		})
		entries = append(entries, stats.ComparisonEntry{Label: label, Report: result.Report})
	}

	series, err := stats.BuildComparison(entries)
	if err != nil {
		return RunSummary{}, err
	}
	comparisonDir := filepath.Join(c.benchmarks, comparisonsDir, summary.BatchID)
	if err := stats.WriteComparison(comparisonDir, series); err != nil {
		return RunSummary{}, err
	}
	summary.Comparison = series
	summary.ComparisonDir = filepath.Clean(comparisonDir)
	return summary, nil
}

// Runs lists runs from the artifact index together with stored runs whose
// artifacts are gone, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}

	entries, err := stats.ListRunIndex(c.benchmarks)
	if err != nil {
		return nil, err
	}
	records, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}

	type listed struct {
		item    RunItem
		created time.Time
	}
	all := make([]listed, 0, len(entries)+len(records))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		seen[e.RunID] = struct{}{}
		all = append(all, listed{
			item: RunItem{
				RunID:          e.RunID,
				Name:           e.Name,
				CreatedAtUTC:   e.CreatedAtUTC,
				Pc:             e.Pc,
				Pm:             e.Pm,
				MaxGen:         e.MaxGen,
				PopulationSize: e.PopulationSize,
				Seed:           e.Seed,
				AverageFitness: e.AverageFitness,
				MaxFitness:     e.MaxFitness,
			},
			created: parseIndexTime(e.CreatedAtUTC),
		})
	}
	for _, r := range records {
		if _, ok := seen[r.RunID]; ok {
			continue
		}
		all = append(all, listed{
			item: RunItem{
				RunID:          r.RunID,
				Name:           r.Scenario.Name,
				CreatedAtUTC:   r.CreatedAtUTC.UTC().Format(time.RFC3339Nano),
				Pc:             r.Scenario.Pc,
				Pm:             r.Scenario.Pm,
				MaxGen:         r.Scenario.MaxGen,
				PopulationSize: r.Scenario.PopulationSize,
				Seed:           r.Scenario.Seed,
				AverageFitness: r.Report.AverageFitness,
				MaxFitness:     r.Report.MaxFitness,
			},
			created: r.CreatedAtUTC,
		})
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].created.After(all[j].created)
	})
	if len(all) > req.Limit {
		all = all[:req.Limit]
	}

	out := make([]RunItem, 0, len(all))
	for _, l := range all {
		out = append(out, l.item)
	}
	return out, nil
}

// Delete removes a run from the store and from the artifact directory.
func (c *Client) Delete(ctx context.Context, req DeleteRequest) (DeleteSummary, error) {
	if req.RunID == "" {
		return DeleteSummary{}, errors.New("delete requires run id")
	}
	if err := c.ensureStore(ctx); err != nil {
		return DeleteSummary{}, err
	}

	summary := DeleteSummary{RunID: req.RunID}
	_, ok, err := c.store.GetRun(ctx, req.RunID)
	if err != nil {
		return DeleteSummary{}, err
	}
	if ok {
		if err := c.store.DeleteRun(ctx, req.RunID); err != nil {
			return DeleteSummary{}, err
		}
		summary.Stored = true
	}
	summary.Artifacts, err = stats.RemoveRunArtifacts(c.benchmarks, req.RunID)
	if err != nil {
		return DeleteSummary{}, err
	}
	if !summary.Stored && !summary.Artifacts {
		return DeleteSummary{}, fmt.Errorf("%w: %s", storage.ErrRunNotFound, req.RunID)
	}
	return summary, nil
}

func (c *Client) Report(ctx context.Context, req ReportRequest) (ReportSummary, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, "report")
	if err != nil {
		return ReportSummary{}, err
	}
	record, err := c.loadRun(ctx, runID)
	if err != nil {
		return ReportSummary{}, err
	}
	return ReportSummary{
		RunID:        record.RunID,
		Scenario:     record.Scenario,
		Report:       record.Report,
		Diagnostics:  stats.SummarizeGenerations(record.Report.FitnessPerGeneration),
		CreatedAtUTC: record.CreatedAtUTC,
	}, nil
}

// Compare builds the cross-scenario metric series for stored runs and writes
// them to OutDir when one is given.
func (c *Client) Compare(ctx context.Context, req CompareRequest) (CompareSummary, error) {
	if len(req.RunIDs) > 0 && req.Latest > 0 {
		return CompareSummary{}, errors.New("use either run ids or latest")
	}
	if req.Latest < 0 {
		return CompareSummary{}, errors.New("latest must be >= 0")
	}

	runIDs := append([]string(nil), req.RunIDs...)
	if len(runIDs) == 0 {
		if req.Latest == 0 {
			return CompareSummary{}, errors.New("compare requires run ids or latest")
		}
		entries, err := stats.ListRunIndex(c.benchmarks)
		if err != nil {
			return CompareSummary{}, err
		}
		if len(entries) == 0 {
			return CompareSummary{}, errors.New("no runs available to compare")
		}
		if len(entries) > req.Latest {
			entries = entries[:req.Latest]
		}
		// The index is newest first; compare in run order.
		for i := len(entries) - 1; i >= 0; i-- {
			runIDs = append(runIDs, entries[i].RunID)
		}
	}

	comparison := make([]stats.ComparisonEntry, 0, len(runIDs))
	for i, runID := range runIDs {
		record, err := c.loadRun(ctx, runID)
		if err != nil {
			return CompareSummary{}, err
		}
		comparison = append(comparison, stats.ComparisonEntry{
			Label:  scenario.Label(i, record.Scenario),
			Report: record.Report,
		})
	}
	series, err := stats.BuildComparison(comparison)
	if err != nil {
		return CompareSummary{}, err
	}

	summary := CompareSummary{RunIDs: runIDs, Series: series}
	if req.OutDir != "" {
		if err := stats.WriteComparison(req.OutDir, series); err != nil {
			return CompareSummary{}, err
		}
		summary.Directory = filepath.Clean(req.OutDir)
	}
	return summary, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "export")
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	exportedDir, err := stats.ExportRunArtifacts(c.benchmarks, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// Probabilities computes the roulette wheel for an explicit population.
func (c *Client) Probabilities(_ context.Context, req ProbabilitiesRequest) (ProbabilitiesSummary, error) {
	if len(req.Population) == 0 {
		return ProbabilitiesSummary{}, errors.New("population is required")
	}
	if req.Fitness == "" {
		req.Fitness = "parabola"
	}
	fitnessFn, err := evo.FitnessFromName(req.Fitness)
	if err != nil {
		return ProbabilitiesSummary{}, err
	}

	length := len(req.Population[0])
	if length == 0 || length > genotype.MaxChromosomeLength {
		return ProbabilitiesSummary{}, fmt.Errorf("chromosome length must be in [1, %d], got %d", genotype.MaxChromosomeLength, length)
	}
	population := make(model.Population, 0, len(req.Population))
	for i, bits := range req.Population {
		chromosome, err := model.ParseChromosome(bits)
		if err != nil {
			return ProbabilitiesSummary{}, fmt.Errorf("individual %d: %w", i, err)
		}
		if err := genotype.Validate(chromosome, length); err != nil {
			return ProbabilitiesSummary{}, fmt.Errorf("individual %d: %w", i, err)
		}
		population = append(population, chromosome)
	}

	fitness := evo.Evaluate(population, fitnessFn)
	probabilities, err := evo.SelectionProbabilities(fitness)
	uniform := false
	if err != nil {
		if !errors.Is(err, evo.ErrInvalidDistribution) {
			return ProbabilitiesSummary{}, err
		}
		uniform = true
	}

	items := make([]ProbabilityItem, 0, len(population))
	for i, chromosome := range population {
		items = append(items, ProbabilityItem{
			Chromosome:  chromosome.String(),
			Value:       genotype.Decode(chromosome),
			Fitness:     fitness[i],
			Probability: probabilities[i],
		})
	}
	return ProbabilitiesSummary{Items: items, Uniform: uniform}, nil
}

func (c *Client) ensureStore(ctx context.Context) error {
	if c.storeReady {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.storeReady = true
	return nil
}

func (c *Client) resolveRunID(runID string, latest bool, action string) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if !latest {
		if runID == "" {
			return "", fmt.Errorf("%s requires run id or latest", action)
		}
		return runID, nil
	}
	entries, err := stats.ListRunIndex(c.benchmarks)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("no runs available to %s", action)
	}
	return entries[0].RunID, nil
}

// loadRun reads a run from the store, falling back to on-disk artifacts for
// runs recorded by an earlier process.
func (c *Client) loadRun(ctx context.Context, runID string) (model.RunRecord, error) {
	if err := c.ensureStore(ctx); err != nil {
		return model.RunRecord{}, err
	}
	record, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if ok {
		return record, nil
	}

	cfg, ok, err := stats.ReadRunConfig(c.benchmarks, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if !ok {
		return model.RunRecord{}, fmt.Errorf("%w: %s", storage.ErrRunNotFound, runID)
	}
	report, ok, err := stats.ReadRunReport(c.benchmarks, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if !ok {
		return model.RunRecord{}, fmt.Errorf("%w: report missing for %s", storage.ErrRunNotFound, runID)
	}
	record = model.RunRecord{RunID: cfg.RunID, Scenario: cfg.Scenario, Report: report}
	entry, ok, err := stats.FindRunIndexEntry(c.benchmarks, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if ok {
		record.CreatedAtUTC = parseIndexTime(entry.CreatedAtUTC)
	}
	return record, nil
}

func parseIndexTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func policyFromName(name string) (evo.DistributionPolicy, error) {
	switch evo.DistributionPolicy(name) {
	case "", evo.FallbackUniform:
		return evo.FallbackUniform, nil
	case evo.FailRun:
		return evo.FailRun, nil
	default:
		return "", fmt.Errorf("unsupported distribution policy: %s", name)
	}
}
