package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bitevo/internal/model"
	"bitevo/internal/scenario"
	"bitevo/internal/stats"
	"bitevo/internal/storage"
	bitevoapi "bitevo/pkg/bitevo"
)

const (
	benchmarksDir = "benchmarks"
	exportsDir    = "exports"
	defaultDBPath = "bitevo.db"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "report":
		return runReport(ctx, args[1:])
	case "compare":
		return runCompare(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "delete":
		return runDelete(ctx, args[1:])
	case "probabilities":
		return runProbabilities(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional scenarios JSON path")
	name := fs.String("name", "", "scenario name for a single flag-defined scenario")
	pc := fs.Float64("pc", 0.75, "crossover probability")
	pm := fs.Float64("pm", 0.005, "per-gene mutation probability")
	gens := fs.Int("gens", 30, "generation count")
	pop := fs.Int("pop", scenario.DefaultPopulationSize, "population size (even)")
	length := fs.Int("length", scenario.DefaultChromosomeLength, "chromosome length in genes")
	seed := fs.Int64("seed", 1, "rng seed")
	initMode := fs.String("init", string(model.InitLiteral), "initial population: literal|random")
	initial := fs.String("initial", "", "comma-separated initial population bit strings (overrides init)")
	parallel := fs.Int("parallel", 0, "max scenarios running at once (<=0 uses GOMAXPROCS)")
	snapshotEvery := fs.Int("snapshot-every", defaultSnapshotEvery, "record the roulette wheel every N generations (0 disables)")
	selectionName := fs.String("selection", "roulette", "parent selection: roulette|tournament|uniform")
	tournamentSize := fs.Int("tournament-size", 2, "contestants per draw for tournament selection")
	crossoverName := fs.String("crossover", "uniform", "crossover: uniform|single_point")
	mutationName := fs.String("mutation", "bit_flip", "mutation: bit_flip")
	fitnessName := fs.String("fitness", "parabola", "fitness function: parabola|identity|onemax")
	policyName := fs.String("policy", "fallback_uniform", "all-zero fitness policy: fallback_uniform|fail_run")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	defaults := model.Scenario{
		Name:             *name,
		Pc:               *pc,
		Pm:               *pm,
		MaxGen:           *gens,
		PopulationSize:   *pop,
		ChromosomeLength: *length,
		Seed:             *seed,
		Init:             model.InitMode(*initMode),
	}
	req, err := loadOrDefaultRunRequest(*configPath, defaults)
	if err != nil {
		return err
	}
	if *configPath == "" {
		req = bitevoapi.RunRequest{
			Parallelism:    *parallel,
			Selection:      *selectionName,
			TournamentSize: *tournamentSize,
			Crossover:      *crossoverName,
			Mutation:       *mutationName,
			Fitness:        *fitnessName,
			Policy:         *policyName,
			SnapshotEvery:  *snapshotEvery,
		}
		if hasAnyScenarioFlag(setFlags) {
			req.Scenarios = []model.Scenario{defaults}
		}
	} else {
		overrideFromFlags(&req, setFlags, map[string]any{
			"selection":       *selectionName,
			"tournament-size": *tournamentSize,
			"crossover":       *crossoverName,
			"mutation":        *mutationName,
			"fitness":         *fitnessName,
			"policy":          *policyName,
			"parallel":        *parallel,
			"snapshot-every":  *snapshotEvery,
		})
	}
	if *initial != "" {
		population, err := parsePopulation(*initial)
		if err != nil {
			return err
		}
		req.Initial = population
	}

	out := newPrinter()
	if !*jsonOut {
		req.Observer = progressObserver{p: out}
	}

	client, err := bitevoapi.New(bitevoapi.Options{
		StoreKind:     *storeKind,
		DBPath:        *dbPath,
		BenchmarksDir: benchmarksDir,
		ExportsDir:    exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}
	if *jsonOut {
		return out.json(summary)
	}
	for _, r := range summary.Runs {
		out.printf("run completed run_id=%s label=%q pc=%g pm=%g gens=%d avg_fitness=%.6f max_fitness=%.6f artifacts_dir=%s\n",
			r.RunID, r.Label, r.Scenario.Pc, r.Scenario.Pm, r.Scenario.MaxGen,
			r.Report.AverageFitness, r.Report.MaxFitness, r.ArtifactsDir)
	}
	printComparison(out, summary.Comparison)
	out.printf("comparison_dir=%s\n", summary.ComparisonDir)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := bitevoapi.New(bitevoapi.Options{
		StoreKind:     *storeKind,
		DBPath:        *dbPath,
		BenchmarksDir: benchmarksDir,
		ExportsDir:    exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, bitevoapi.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	out := newPrinter()
	if *jsonOut {
		return out.json(items)
	}
	if len(items) == 0 {
		out.printf("no runs found\n")
		return nil
	}
	for _, item := range items {
		out.printf("run_id=%s created_at=%s name=%q pc=%g pm=%g gens=%d pop=%d seed=%d avg_fitness=%.6f max_fitness=%.6f\n",
			item.RunID,
			out.timestamp(item.CreatedAtUTC),
			item.Name,
			item.Pc,
			item.Pm,
			item.MaxGen,
			item.PopulationSize,
			item.Seed,
			item.AverageFitness,
			item.MaxFitness,
		)
	}
	return nil
}

func runReport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "report the most recent run from run index")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}

	client, err := bitevoapi.New(bitevoapi.Options{
		StoreKind:     *storeKind,
		DBPath:        *dbPath,
		BenchmarksDir: benchmarksDir,
		ExportsDir:    exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Report(ctx, bitevoapi.ReportRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	out := newPrinter()
	if *jsonOut {
		return out.json(summary)
	}
	s := summary.Scenario
	out.printf("run_id=%s name=%q pc=%g pm=%g gens=%d pop=%d length=%d seed=%d\n",
		summary.RunID, s.Name, s.Pc, s.Pm, s.MaxGen, s.PopulationSize, s.ChromosomeLength, s.Seed)
	for _, d := range summary.Diagnostics {
		out.printf("generation=%d best=%.6f mean=%.6f min=%.6f std=%.6f\n",
			d.Generation, d.BestFitness, d.MeanFitness, d.MinFitness, d.StdFitness)
	}
	r := summary.Report
	out.printf("avg_fitness=%.6f max_fitness=%.6f crossovers=%s mutations=%s uniform_fallbacks=%d elapsed=%s\n",
		r.AverageFitness, r.MaxFitness, out.count(r.CrossoverCount), out.count(r.MutationCount), r.UniformFallbacks, out.duration(r.Elapsed))
	finals := make([]string, 0, len(r.FinalPopulation))
	for _, c := range r.FinalPopulation {
		finals = append(finals, c.String())
	}
	out.printf("final_population=%s\n", strings.Join(finals, ","))
	return nil
}

func runCompare(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	runIDs := fs.String("run-ids", "", "comma-separated run ids in display order")
	latest := fs.Int("latest", 0, "compare the N most recent runs")
	outDir := fs.String("out", "", "write comparison.json and comparison.csv to this directory")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit comparison as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var ids []string
	for _, id := range strings.Split(*runIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	client, err := bitevoapi.New(bitevoapi.Options{
		StoreKind:     *storeKind,
		DBPath:        *dbPath,
		BenchmarksDir: benchmarksDir,
		ExportsDir:    exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Compare(ctx, bitevoapi.CompareRequest{RunIDs: ids, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	out := newPrinter()
	if *jsonOut {
		return out.json(summary)
	}
	out.printf("compared run_ids=%s\n", strings.Join(summary.RunIDs, ","))
	printComparison(out, summary.Series)
	if summary.Directory != "" {
		out.printf("comparison_dir=%s\n", summary.Directory)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := bitevoapi.New(bitevoapi.Options{BenchmarksDir: benchmarksDir, ExportsDir: *outDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Export(ctx, bitevoapi.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	newPrinter().printf("exported run_id=%s to=%s\n", summary.RunID, filepath.Clean(summary.Directory))
	return nil
}

func runDelete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("delete requires --run-id")
	}

	client, err := bitevoapi.New(bitevoapi.Options{
		StoreKind:     *storeKind,
		DBPath:        *dbPath,
		BenchmarksDir: benchmarksDir,
		ExportsDir:    exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Delete(ctx, bitevoapi.DeleteRequest{RunID: *runID})
	if err != nil {
		return err
	}
	newPrinter().printf("deleted run_id=%s stored=%t artifacts=%t\n", summary.RunID, summary.Stored, summary.Artifacts)
	return nil
}

func runProbabilities(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("probabilities", flag.ContinueOnError)
	population := fs.String("population", "10010,00110,01011,11011", "comma-separated population bit strings")
	fitnessName := fs.String("fitness", "parabola", "fitness function: parabola|identity|onemax")
	jsonOut := fs.Bool("json", false, "emit probabilities as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var bits []string
	for _, part := range strings.Split(*population, ",") {
		bits = append(bits, strings.TrimSpace(part))
	}

	client, err := bitevoapi.New(bitevoapi.Options{BenchmarksDir: benchmarksDir, ExportsDir: exportsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Probabilities(ctx, bitevoapi.ProbabilitiesRequest{Population: bits, Fitness: *fitnessName})
	if err != nil {
		return err
	}
	out := newPrinter()
	if *jsonOut {
		return out.json(summary)
	}
	for _, item := range summary.Items {
		out.printf("chromosome=%s value=%d fitness=%.6f probability=%.6f\n",
			item.Chromosome, item.Value, item.Fitness, item.Probability)
	}
	if summary.Uniform {
		out.printf("distribution=uniform reason=all_zero_fitness\n")
	}
	return nil
}

func printComparison(out printer, series []stats.MetricSeries) {
	for _, s := range series {
		out.printf("metric=%s mean=%.6f std=%.6f max_label=%q\n", s.Metric, s.Mean, s.Std, s.MaxLabel)
		for i, label := range s.Labels {
			out.printf("  label=%q value=%.6f\n", label, s.Values[i])
		}
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: bitevoctl <run|runs|report|compare|export|delete|probabilities> [flags]", msg)
}
