package stats

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"bitevo/internal/model"
)

type GenerationDiagnostics struct {
	Generation  int     `json:"generation"`
	BestFitness float64 `json:"best_fitness"`
	MeanFitness float64 `json:"mean_fitness"`
	MinFitness  float64 `json:"min_fitness"`
	StdFitness  float64 `json:"std_fitness"`
}

// SummarizeGenerations reduces every generation record to best/mean/min and
// population standard deviation.
func SummarizeGenerations(records []model.GenerationRecord) []GenerationDiagnostics {
	out := make([]GenerationDiagnostics, 0, len(records))
	for gen, record := range records {
		if len(record) == 0 {
			out = append(out, GenerationDiagnostics{Generation: gen})
			continue
		}
		mean, std := stat.PopMeanStdDev(record, nil)
		out = append(out, GenerationDiagnostics{
			Generation:  gen,
			BestFitness: floats.Max(record),
			MeanFitness: mean,
			MinFitness:  floats.Min(record),
			StdFitness:  std,
		})
	}
	return out
}

// BestSeries returns the best fitness of every generation.
func BestSeries(records []model.GenerationRecord) []float64 {
	out := make([]float64, 0, len(records))
	for _, d := range SummarizeGenerations(records) {
		out = append(out, d.BestFitness)
	}
	return out
}
