package stats

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"bitevo/internal/model"
)

const (
	MetricAverageFitness = "average_fitness"
	MetricMaxFitness     = "max_fitness"
	MetricExecutionTime  = "execution_time"
	MetricCrossoverCount = "crossover_count"
	MetricMutationCount  = "mutation_count"
)

// ComparisonMetrics lists the per-run metrics compared across scenarios, in
// display order.
func ComparisonMetrics() []string {
	return []string{
		MetricAverageFitness,
		MetricMaxFitness,
		MetricExecutionTime,
		MetricCrossoverCount,
		MetricMutationCount,
	}
}

type ComparisonEntry struct {
	Label  string
	Report model.RunReport
}

// MetricSeries holds one metric across scenarios, ready for a bar chart.
type MetricSeries struct {
	Metric   string    `json:"metric"`
	Labels   []string  `json:"labels"`
	Values   []float64 `json:"values"`
	Mean     float64   `json:"mean"`
	Std      float64   `json:"std"`
	MaxLabel string    `json:"max_label,omitempty"`
}

// MetricValue extracts a comparison metric from a report. Execution time is
// reported in seconds.
func MetricValue(report model.RunReport, metric string) (float64, error) {
	switch metric {
	case MetricAverageFitness:
		return report.AverageFitness, nil
	case MetricMaxFitness:
		return report.MaxFitness, nil
	case MetricExecutionTime:
		return report.Elapsed.Seconds(), nil
	case MetricCrossoverCount:
		return float64(report.CrossoverCount), nil
	case MetricMutationCount:
		return float64(report.MutationCount), nil
	default:
		return 0, fmt.Errorf("unknown comparison metric: %s", metric)
	}
}

func BuildComparison(entries []ComparisonEntry) ([]MetricSeries, error) {
	metrics := ComparisonMetrics()
	out := make([]MetricSeries, 0, len(metrics))
	for _, metric := range metrics {
		series := MetricSeries{
			Metric: metric,
			Labels: make([]string, 0, len(entries)),
			Values: make([]float64, 0, len(entries)),
		}
		for _, entry := range entries {
			value, err := MetricValue(entry.Report, metric)
			if err != nil {
				return nil, err
			}
			series.Labels = append(series.Labels, entry.Label)
			series.Values = append(series.Values, value)
		}
		if len(series.Values) > 0 {
			series.Mean, series.Std = stat.PopMeanStdDev(series.Values, nil)
			series.MaxLabel = series.Labels[floats.MaxIdx(series.Values)]
		}
		out = append(out, series)
	}
	return out, nil
}

// WriteComparison writes comparison.json and a label-by-metric comparison.csv.
func WriteComparison(dir string, series []MetricSeries) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "comparison.json"), series); err != nil {
		return err
	}

	file, err := os.Create(filepath.Join(dir, "comparison.csv"))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{"label"}
	for _, s := range series {
		header = append(header, s.Metric)
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	if len(series) > 0 {
		for row, label := range series[0].Labels {
			record := []string{label}
			for _, s := range series {
				record = append(record, strconv.FormatFloat(s.Values[row], 'f', -1, 64))
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}
