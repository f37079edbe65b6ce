//go:build sqlite

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bitevo/internal/stats"
)

func TestRunCommandSQLitePersistsRuns(t *testing.T) {
	workdir := chdirTemp(t)
	dbPath := filepath.Join(workdir, "bitevo.db")

	if _, err := captureStdout(func() error {
		return run(context.Background(), []string{
			"run",
			"--store", "sqlite",
			"--db-path", dbPath,
			"--gens", "4",
			"--seed", "11",
		})
	}); err != nil {
		t.Fatalf("run command: %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected sqlite db at %s: %v", dbPath, err)
	}

	entries, err := stats.ListRunIndex(benchmarksDir)
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one indexed run, got %d", len(entries))
	}
	// Remove the artifact copy so the report must come from the database.
	if err := os.Remove(filepath.Join(benchmarksDir, entries[0].RunID, "report.json")); err != nil {
		t.Fatalf("remove report artifact: %v", err)
	}

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{
			"report",
			"--store", "sqlite",
			"--db-path", dbPath,
			"--run-id", entries[0].RunID,
		})
	})
	if err != nil {
		t.Fatalf("report command: %v", err)
	}
	if !strings.Contains(out, "run_id="+entries[0].RunID) || strings.Count(out, "generation=") != 4 {
		t.Fatalf("unexpected report output: %s", out)
	}
}

func TestRunsAndDeleteCommandsUseSQLiteStore(t *testing.T) {
	workdir := chdirTemp(t)
	dbPath := filepath.Join(workdir, "bitevo.db")

	if _, err := captureStdout(func() error {
		return run(context.Background(), []string{"run", "--store", "sqlite", "--db-path", dbPath, "--gens", "2"})
	}); err != nil {
		t.Fatalf("run command: %v", err)
	}
	entries, err := stats.ListRunIndex(benchmarksDir)
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	runID := entries[0].RunID
	// Drop every artifact so only the database knows about the run.
	if err := os.RemoveAll(benchmarksDir); err != nil {
		t.Fatalf("remove benchmarks: %v", err)
	}

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"runs", "--store", "sqlite", "--db-path", dbPath})
	})
	if err != nil {
		t.Fatalf("runs command: %v", err)
	}
	if !strings.Contains(out, "run_id="+runID) {
		t.Fatalf("expected stored run in listing: %s", out)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"delete", "--store", "sqlite", "--db-path", dbPath, "--run-id", runID})
	})
	if err != nil {
		t.Fatalf("delete command: %v", err)
	}
	if !strings.Contains(out, "stored=true artifacts=false") {
		t.Fatalf("unexpected delete output: %s", out)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"runs", "--store", "sqlite", "--db-path", dbPath})
	})
	if err != nil {
		t.Fatalf("runs command: %v", err)
	}
	if !strings.Contains(out, "no runs found") {
		t.Fatalf("expected empty listing after delete: %s", out)
	}
}
