package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bitevo/internal/stats"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	origWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	workdir := t.TempDir()
	if err := os.Chdir(workdir); err != nil {
		t.Fatalf("chdir tempdir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(origWD)
	})
	return workdir
}

func TestRunCommandDefaultScenarios(t *testing.T) {
	chdirTemp(t)

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"run", "--parallel", "2"})
	})
	if err != nil {
		t.Fatalf("run command: %v", err)
	}
	if strings.Count(out, "scenario_finished") != 4 || strings.Count(out, "run completed") != 4 {
		t.Fatalf("expected four scenarios in output: %s", out)
	}
	for _, metric := range stats.ComparisonMetrics() {
		if !strings.Contains(out, "metric="+metric) {
			t.Fatalf("missing comparison metric %s: %s", metric, out)
		}
	}

	entries, err := stats.ListRunIndex(benchmarksDir)
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 indexed runs, got %d", len(entries))
	}
	for _, file := range []string{"config.json", "report.json", "fitness_history.csv", "generation_diagnostics.json", "snapshots.json"} {
		path := filepath.Join(benchmarksDir, entries[0].RunID, file)
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected artifact %s: %v", path, err)
		}
	}
}

func TestRunCommandSingleScenarioFromFlags(t *testing.T) {
	chdirTemp(t)

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{
			"run",
			"--name", "flags",
			"--pc", "0.9",
			"--pm", "0.01",
			"--gens", "5",
			"--seed", "3",
			"--json",
		})
	})
	if err != nil {
		t.Fatalf("run command: %v", err)
	}
	var summary struct {
		Runs []struct {
			RunID    string
			Label    string
			Scenario struct {
				MaxGen int `json:"max_gen"`
			}
			Report struct {
				FitnessPerGeneration [][]float64 `json:"fitness_per_generation"`
			}
		}
	}
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode json output: %v\n%s", err, out)
	}
	if len(summary.Runs) != 1 || summary.Runs[0].Label != "flags" {
		t.Fatalf("unexpected runs: %+v", summary.Runs)
	}
	if summary.Runs[0].Scenario.MaxGen != 5 || len(summary.Runs[0].Report.FitnessPerGeneration) != 5 {
		t.Fatalf("unexpected run shape: %+v", summary.Runs[0])
	}
}

func TestRunCommandFromConfig(t *testing.T) {
	workdir := chdirTemp(t)
	configPath := filepath.Join(workdir, "scenarios.json")
	payload := `{"selection":"tournament","scenarios":[{"name":"a","pc":0.75,"pm":0.005,"max_gen":3},{"name":"b","pc":0.9,"pm":0.01,"max_gen":4}]}`
	if err := os.WriteFile(configPath, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"run", "--config", configPath, "--snapshot-every", "0"})
	})
	if err != nil {
		t.Fatalf("run command: %v", err)
	}
	if !strings.Contains(out, `label="a"`) || !strings.Contains(out, `label="b"`) {
		t.Fatalf("expected both configured scenarios: %s", out)
	}
	entries, err := stats.ListRunIndex(benchmarksDir)
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 indexed runs, got %d", len(entries))
	}
	if _, err := os.Stat(filepath.Join(benchmarksDir, entries[0].RunID, "snapshots.json")); !os.IsNotExist(err) {
		t.Fatalf("expected snapshots disabled, stat err=%v", err)
	}
}

func TestRunCommandConfigDisablesSnapshots(t *testing.T) {
	workdir := chdirTemp(t)
	configPath := filepath.Join(workdir, "scenarios.json")
	payload := `{"snapshot_every":0,"scenarios":[{"name":"quiet","max_gen":3}]}`
	if err := os.WriteFile(configPath, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := captureStdout(func() error {
		return run(context.Background(), []string{"run", "--config", configPath})
	}); err != nil {
		t.Fatalf("run command: %v", err)
	}
	entries, err := stats.ListRunIndex(benchmarksDir)
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one indexed run, got %d", len(entries))
	}
	if _, err := os.Stat(filepath.Join(benchmarksDir, entries[0].RunID, "snapshots.json")); !os.IsNotExist(err) {
		t.Fatalf("expected snapshots disabled, stat err=%v", err)
	}
}

func TestRunCommandRejectsFractionalConfigValues(t *testing.T) {
	workdir := chdirTemp(t)
	configPath := filepath.Join(workdir, "scenarios.json")
	if err := os.WriteFile(configPath, []byte(`{"scenarios":[{"population_size":4.5}]}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	err := run(context.Background(), []string{"run", "--config", configPath})
	if err == nil || !strings.Contains(err.Error(), "population_size") {
		t.Fatalf("expected population_size error, got %v", err)
	}
}

func TestDeleteCommand(t *testing.T) {
	chdirTemp(t)

	if _, err := captureStdout(func() error {
		return run(context.Background(), []string{"run", "--gens", "2"})
	}); err != nil {
		t.Fatalf("run command: %v", err)
	}
	entries, err := stats.ListRunIndex(benchmarksDir)
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	runID := entries[0].RunID

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"delete", "--run-id", runID})
	})
	if err != nil {
		t.Fatalf("delete command: %v", err)
	}
	if !strings.Contains(out, "deleted run_id="+runID) || !strings.Contains(out, "artifacts=true") {
		t.Fatalf("unexpected delete output: %s", out)
	}
	if _, err := os.Stat(filepath.Join(benchmarksDir, runID)); !os.IsNotExist(err) {
		t.Fatalf("expected run directory removed, got %v", err)
	}
	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"runs"})
	})
	if err != nil {
		t.Fatalf("runs command: %v", err)
	}
	if strings.Contains(out, "run_id="+runID) {
		t.Fatalf("deleted run still listed: %s", out)
	}

	if err := run(context.Background(), []string{"delete", "--run-id", runID}); err == nil {
		t.Fatal("expected deleting a missing run to fail")
	}
	if err := run(context.Background(), []string{"delete"}); err == nil {
		t.Fatal("expected delete without run id to fail")
	}
}

func TestRunsReportCompareAndExportCommands(t *testing.T) {
	chdirTemp(t)

	if _, err := captureStdout(func() error {
		return run(context.Background(), []string{"run", "--gens", "6", "--seed", "5"})
	}); err != nil {
		t.Fatalf("run command: %v", err)
	}
	entries, err := stats.ListRunIndex(benchmarksDir)
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one indexed run, got %d", len(entries))
	}
	runID := entries[0].RunID

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"runs", "--limit", "1"})
	})
	if err != nil {
		t.Fatalf("runs command: %v", err)
	}
	if !strings.Contains(out, "run_id="+runID) {
		t.Fatalf("runs output missing run id %s: %s", runID, out)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"report", "--latest"})
	})
	if err != nil {
		t.Fatalf("report command: %v", err)
	}
	if strings.Count(out, "generation=") != 6 || !strings.Contains(out, "final_population=") {
		t.Fatalf("unexpected report output: %s", out)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"compare", "--run-ids", runID, "--out", "cmp"})
	})
	if err != nil {
		t.Fatalf("compare command: %v", err)
	}
	if !strings.Contains(out, "metric=mutation_count") || !strings.Contains(out, "comparison_dir=cmp") {
		t.Fatalf("unexpected compare output: %s", out)
	}
	if _, err := os.Stat(filepath.Join("cmp", "comparison.csv")); err != nil {
		t.Fatalf("expected comparison csv: %v", err)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"export", "--latest", "--out", "out"})
	})
	if err != nil {
		t.Fatalf("export command: %v", err)
	}
	if !strings.Contains(out, "exported run_id="+runID) {
		t.Fatalf("unexpected export output: %s", out)
	}
	if _, err := os.Stat(filepath.Join("out", runID, "report.json")); err != nil {
		t.Fatalf("expected exported report: %v", err)
	}
}

func TestProbabilitiesCommand(t *testing.T) {
	chdirTemp(t)

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"probabilities"})
	})
	if err != nil {
		t.Fatalf("probabilities command: %v", err)
	}
	for _, want := range []string{"chromosome=10010 value=18 fitness=-252.000000", "chromosome=11011 value=27"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output: %s", want, out)
		}
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"probabilities", "--population", "00000,00100"})
	})
	if err != nil {
		t.Fatalf("probabilities command: %v", err)
	}
	if !strings.Contains(out, "distribution=uniform") || !strings.Contains(out, "probability=0.500000") {
		t.Fatalf("expected uniform fallback output: %s", out)
	}
}

func TestCommandErrors(t *testing.T) {
	chdirTemp(t)

	if err := run(context.Background(), nil); err == nil || !strings.Contains(err.Error(), "usage:") {
		t.Fatalf("expected usage error, got %v", err)
	}
	if err := run(context.Background(), []string{"evolve"}); err == nil {
		t.Fatal("expected unknown command error")
	}
	if err := run(context.Background(), []string{"run", "--pop", "3"}); err == nil {
		t.Fatal("expected odd population to fail")
	}
	if err := run(context.Background(), []string{"run", "--policy", "retry"}); err == nil {
		t.Fatal("expected unknown policy to fail")
	}
	if err := run(context.Background(), []string{"export"}); err == nil {
		t.Fatal("expected export without run id to fail")
	}
	if err := run(context.Background(), []string{"report", "--run-id", "x", "--latest"}); err == nil {
		t.Fatal("expected conflicting report flags to fail")
	}
	if err := run(context.Background(), []string{"runs", "--limit", "0"}); err == nil {
		t.Fatal("expected non-positive limit to fail")
	}
}

func captureStdout(fn func() error) (string, error) {
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}

	os.Stdout = w
	runErr := fn()
	_ = w.Close()
	os.Stdout = origStdout

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		_ = r.Close()
		return "", err
	}
	_ = r.Close()
	return buf.String(), runErr
}
