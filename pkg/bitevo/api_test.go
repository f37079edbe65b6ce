package bitevo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bitevo/internal/model"
	"bitevo/internal/stats"
	"bitevo/internal/storage"
)

func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()
	base := t.TempDir()
	var (
		mu sync.Mutex
		n  int
	)
	client, err := New(Options{
		StoreKind:     "memory",
		BenchmarksDir: filepath.Join(base, "benchmarks"),
		ExportsDir:    filepath.Join(base, "exports"),
		Now: func() time.Time {
			return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		},
		NewRunID: func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("run-%02d", n)
		},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client, base
}

func TestClientRunRunsReportAndExport(t *testing.T) {
	client, base := newTestClient(t)
	ctx := context.Background()

	summary, err := client.Run(ctx, RunRequest{Parallelism: 2, SnapshotEvery: 29})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(summary.Runs) != 4 {
		t.Fatalf("expected 4 default scenario runs, got %d", len(summary.Runs))
	}
	for i, run := range summary.Runs {
		if run.Label != fmt.Sprintf("Scenario %d", i+1) {
			t.Fatalf("unexpected label at %d: %s", i, run.Label)
		}
		if _, err := os.Stat(filepath.Join(run.ArtifactsDir, "report.json")); err != nil {
			t.Fatalf("expected report artifact for %s: %v", run.RunID, err)
		}
		if len(run.Report.Snapshots) == 0 || run.Report.Snapshots[0].Generation != 0 {
			t.Fatalf("expected generation 0 snapshot for %s", run.RunID)
		}
	}
	if len(summary.Comparison) != len(stats.ComparisonMetrics()) {
		t.Fatalf("unexpected comparison series: %d", len(summary.Comparison))
	}
	if _, err := os.Stat(filepath.Join(summary.ComparisonDir, "comparison.csv")); err != nil {
		t.Fatalf("expected comparison csv: %v", err)
	}

	runs, err := client.Runs(ctx, RunsRequest{Limit: 2})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != summary.Runs[3].RunID {
		t.Fatalf("expected latest runs first: %+v", runs)
	}

	report, err := client.Report(ctx, ReportRequest{RunID: summary.Runs[0].RunID})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Scenario.Pc != 0.75 || len(report.Diagnostics) != 30 {
		t.Fatalf("unexpected report: scenario=%+v diagnostics=%d", report.Scenario, len(report.Diagnostics))
	}
	if report.Diagnostics[0].BestFitness != -12 {
		t.Fatalf("expected generation 0 best of the literal seed, got %v", report.Diagnostics[0].BestFitness)
	}

	exported, err := client.Export(ctx, ExportRequest{Latest: true})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exported.RunID != summary.Runs[3].RunID {
		t.Fatalf("expected latest run export, got %s", exported.RunID)
	}
	if exported.Directory != filepath.Join(base, "exports", exported.RunID) {
		t.Fatalf("unexpected export directory: %s", exported.Directory)
	}
	for _, file := range []string{"config.json", "report.json", "fitness_history.csv", "snapshots.json"} {
		if _, err := os.Stat(filepath.Join(exported.Directory, file)); err != nil {
			t.Fatalf("expected exported %s: %v", file, err)
		}
	}
}

func TestClientRunPersistsToStore(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	summary, err := client.Run(ctx, RunRequest{
		Scenarios: []model.Scenario{{Name: "short", Pc: 0.9, Pm: 0.01, MaxGen: 3, PopulationSize: 4, ChromosomeLength: 5, Seed: 9}},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	record, ok, err := client.store.GetRun(ctx, summary.Runs[0].RunID)
	if err != nil || !ok {
		t.Fatalf("expected stored run: ok=%t err=%v", ok, err)
	}
	if record.SchemaVersion != storage.CurrentSchemaVersion || record.Scenario.Name != "short" {
		t.Fatalf("unexpected stored record: %+v", record.VersionedRecord)
	}
	if len(record.Report.FitnessPerGeneration) != 3 {
		t.Fatalf("unexpected stored history length: %d", len(record.Report.FitnessPerGeneration))
	}
}

func TestClientReportFallsBackToArtifacts(t *testing.T) {
	client, base := newTestClient(t)
	ctx := context.Background()

	summary, err := client.Run(ctx, RunRequest{
		Scenarios: []model.Scenario{{Pc: 0.75, Pm: 0.005, MaxGen: 2, PopulationSize: 4, ChromosomeLength: 5, Seed: 1}},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	reopened, err := New(Options{
		StoreKind:     "memory",
		BenchmarksDir: filepath.Join(base, "benchmarks"),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	report, err := reopened.Report(ctx, ReportRequest{Latest: true})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.RunID != summary.Runs[0].RunID || len(report.Report.FitnessPerGeneration) != 2 {
		t.Fatalf("unexpected fallback report: %+v", report)
	}
	if want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC); !report.CreatedAtUTC.Equal(want) {
		t.Fatalf("expected creation time from run index, got %s", report.CreatedAtUTC)
	}

	if _, err := reopened.Report(ctx, ReportRequest{RunID: "missing"}); !errors.Is(err, storage.ErrRunNotFound) {
		t.Fatalf("expected run not found, got %v", err)
	}
}

func TestClientRunsIncludesStoredRunsWithoutArtifacts(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	summary, err := client.Run(ctx, RunRequest{
		Scenarios: []model.Scenario{{Name: "indexed", Pc: 0.75, Pm: 0.005, MaxGen: 2, PopulationSize: 4, ChromosomeLength: 5, Seed: 1}},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	stored := storage.Stamp(model.RunRecord{
		RunID:        "stored-only",
		Scenario:     model.Scenario{Name: "stored", Pc: 0.5, MaxGen: 7, PopulationSize: 4, ChromosomeLength: 5, Seed: 3},
		Report:       model.RunReport{AverageFitness: 1.5, MaxFitness: 4},
		CreatedAtUTC: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
	})
	if err := client.store.SaveRun(ctx, stored); err != nil {
		t.Fatalf("save: %v", err)
	}

	runs, err := client.Runs(ctx, RunsRequest{Limit: 10})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected indexed and stored runs, got %+v", runs)
	}
	if runs[0].RunID != "stored-only" || runs[0].Name != "stored" || runs[0].MaxGen != 7 || runs[0].MaxFitness != 4 {
		t.Fatalf("unexpected stored run item: %+v", runs[0])
	}
	if runs[1].RunID != summary.Runs[0].RunID {
		t.Fatalf("unexpected indexed run item: %+v", runs[1])
	}

	limited, err := client.Runs(ctx, RunsRequest{Limit: 1})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(limited) != 1 || limited[0].RunID != "stored-only" {
		t.Fatalf("unexpected limited runs: %+v", limited)
	}
}

func TestClientDelete(t *testing.T) {
	client, base := newTestClient(t)
	ctx := context.Background()

	summary, err := client.Run(ctx, RunRequest{
		Scenarios: []model.Scenario{
			{Pc: 0.75, Pm: 0.005, MaxGen: 2, PopulationSize: 4, ChromosomeLength: 5, Seed: 1},
			{Pc: 0.9, Pm: 0.005, MaxGen: 2, PopulationSize: 4, ChromosomeLength: 5, Seed: 2},
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	target := summary.Runs[0].RunID

	deleted, err := client.Delete(ctx, DeleteRequest{RunID: target})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !deleted.Stored || !deleted.Artifacts {
		t.Fatalf("expected store and artifacts removal: %+v", deleted)
	}
	if _, ok, err := client.store.GetRun(ctx, target); err != nil || ok {
		t.Fatalf("expected run removed from store: ok=%t err=%v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(base, "benchmarks", target)); !os.IsNotExist(err) {
		t.Fatalf("expected run directory removed, got %v", err)
	}
	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != summary.Runs[1].RunID {
		t.Fatalf("unexpected runs after delete: %+v", runs)
	}
	if _, err := client.Report(ctx, ReportRequest{RunID: target}); !errors.Is(err, storage.ErrRunNotFound) {
		t.Fatalf("expected deleted run to be missing, got %v", err)
	}

	if _, err := client.Delete(ctx, DeleteRequest{RunID: target}); !errors.Is(err, storage.ErrRunNotFound) {
		t.Fatalf("expected run not found on second delete, got %v", err)
	}
	if _, err := client.Delete(ctx, DeleteRequest{}); err == nil {
		t.Fatal("expected missing run id error")
	}
}

func TestClientCompare(t *testing.T) {
	client, base := newTestClient(t)
	ctx := context.Background()

	summary, err := client.Run(ctx, RunRequest{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	outDir := filepath.Join(base, "compare")
	compared, err := client.Compare(ctx, CompareRequest{Latest: 2, OutDir: outDir})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	want := []string{summary.Runs[2].RunID, summary.Runs[3].RunID}
	if len(compared.RunIDs) != 2 || compared.RunIDs[0] != want[0] || compared.RunIDs[1] != want[1] {
		t.Fatalf("unexpected compared runs: got=%v want=%v", compared.RunIDs, want)
	}
	for _, series := range compared.Series {
		if len(series.Values) != 2 {
			t.Fatalf("expected two values for %s, got %v", series.Metric, series.Values)
		}
	}
	if _, err := os.Stat(filepath.Join(outDir, "comparison.json")); err != nil {
		t.Fatalf("expected comparison json: %v", err)
	}

	byID, err := client.Compare(ctx, CompareRequest{RunIDs: []string{summary.Runs[0].RunID}})
	if err != nil {
		t.Fatalf("compare by id: %v", err)
	}
	if byID.Directory != "" || byID.Series[0].Values[0] != summary.Runs[0].Report.AverageFitness {
		t.Fatalf("unexpected compare by id: %+v", byID)
	}

	if _, err := client.Compare(ctx, CompareRequest{}); err == nil {
		t.Fatal("expected compare without runs to fail")
	}
	if _, err := client.Compare(ctx, CompareRequest{RunIDs: []string{"a"}, Latest: 1}); err == nil {
		t.Fatal("expected conflicting compare request to fail")
	}
}

func TestClientRunRejectsBadRequests(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	if _, err := client.Run(ctx, RunRequest{Policy: "retry"}); err == nil {
		t.Fatal("expected unknown policy to fail")
	}
	if _, err := client.Run(ctx, RunRequest{Selection: "rank"}); err == nil {
		t.Fatal("expected unknown selection to fail")
	}
	if _, err := client.Run(ctx, RunRequest{SnapshotEvery: -1}); err == nil {
		t.Fatal("expected negative snapshot interval to fail")
	}
	if _, err := client.Run(ctx, RunRequest{
		Scenarios: []model.Scenario{{Pc: 1.5, Pm: 0, MaxGen: 1, PopulationSize: 4, ChromosomeLength: 5}},
	}); err == nil {
		t.Fatal("expected invalid scenario to fail")
	}
	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs after failed requests, got %d", len(runs))
	}
	if _, err := client.Export(ctx, ExportRequest{}); err == nil {
		t.Fatal("expected export without run id to fail")
	}
	if _, err := client.Export(ctx, ExportRequest{RunID: "x", Latest: true}); err == nil {
		t.Fatal("expected conflicting export request to fail")
	}
}

func TestClientProbabilities(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	summary, err := client.Probabilities(ctx, ProbabilitiesRequest{Population: []string{"10010", "00110", "01011", "11011"}})
	if err != nil {
		t.Fatalf("probabilities: %v", err)
	}
	if summary.Uniform {
		t.Fatal("expected shifted roulette wheel, not uniform")
	}
	wantValues := []uint64{18, 6, 11, 27}
	wantWeights := []float64{370, 610, 545, 1}
	for i, item := range summary.Items {
		if item.Value != wantValues[i] {
			t.Fatalf("item %d: value=%d want=%d", i, item.Value, wantValues[i])
		}
		want := wantWeights[i] / 1526
		if diff := item.Probability - want; diff > 1e-12 || diff < -1e-12 {
			t.Fatalf("item %d: probability=%v want=%v", i, item.Probability, want)
		}
	}

	zero, err := client.Probabilities(ctx, ProbabilitiesRequest{Population: []string{"00000", "00100"}})
	if err != nil {
		t.Fatalf("zero probabilities: %v", err)
	}
	if !zero.Uniform || zero.Items[0].Probability != 0.5 {
		t.Fatalf("expected uniform fallback for all-zero fitness: %+v", zero)
	}

	if _, err := client.Probabilities(ctx, ProbabilitiesRequest{Population: []string{"101", "10"}}); err == nil {
		t.Fatal("expected mismatched lengths to fail")
	}
	if _, err := client.Probabilities(ctx, ProbabilitiesRequest{Population: []string{"1x1"}}); err == nil {
		t.Fatal("expected invalid gene to fail")
	}
}
