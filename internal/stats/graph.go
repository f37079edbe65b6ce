package stats

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const fitnessGraphFile = "fitness_graph.dat"

// WriteFitnessGraph writes gnuplot-ready blocks of the per-generation
// diagnostics, one block per series separated by two blank lines.
func WriteFitnessGraph(runDir, label string, diagnostics []GenerationDiagnostics) error {
	file, err := os.Create(filepath.Join(runDir, fitnessGraphFile))
	if err != nil {
		return err
	}
	defer file.Close()

	blocks := []struct {
		title string
		value func(GenerationDiagnostics) float64
		std   bool
	}{
		{"Avg Fitness Vs Generation", func(d GenerationDiagnostics) float64 { return d.MeanFitness }, true},
		{"Max Fitness Vs Generation", func(d GenerationDiagnostics) float64 { return d.BestFitness }, false},
		{"Min Fitness Vs Generation", func(d GenerationDiagnostics) float64 { return d.MinFitness }, false},
	}
	for i, block := range blocks {
		if i > 0 {
			if _, err := io.WriteString(file, "\n\n"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(file, "#%s, Scenario:%s\n", block.title, label); err != nil {
			return err
		}
		for _, d := range diagnostics {
			if block.std {
				_, err = fmt.Fprintf(file, "%d %g %g\n", d.Generation, block.value(d), d.StdFitness)
			} else {
				_, err = fmt.Fprintf(file, "%d %g\n", d.Generation, block.value(d))
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}
