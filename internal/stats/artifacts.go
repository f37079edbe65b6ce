package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"bitevo/internal/model"
)

const runIndexFile = "run_index.json"

type RunArtifacts struct {
	RunID        string
	Scenario     model.Scenario
	Report       model.RunReport
	CreatedAtUTC time.Time
}

type RunConfig struct {
	RunID    string         `json:"run_id"`
	Scenario model.Scenario `json:"scenario"`
}

type RunIndexEntry struct {
	RunID          string  `json:"run_id"`
	Name           string  `json:"name,omitempty"`
	Pc             float64 `json:"pc"`
	Pm             float64 `json:"pm"`
	MaxGen         int     `json:"max_gen"`
	PopulationSize int     `json:"population_size"`
	Seed           int64   `json:"seed"`
	AverageFitness float64 `json:"average_fitness"`
	MaxFitness     float64 `json:"max_fitness"`
	CreatedAtUTC   string  `json:"created_at_utc"`
}

// NewRunIndexEntry summarizes a run for the index.
func NewRunIndexEntry(a RunArtifacts) RunIndexEntry {
	return RunIndexEntry{
		RunID:          a.RunID,
		Name:           a.Scenario.Name,
		Pc:             a.Scenario.Pc,
		Pm:             a.Scenario.Pm,
		MaxGen:         a.Scenario.MaxGen,
		PopulationSize: a.Scenario.PopulationSize,
		Seed:           a.Scenario.Seed,
		AverageFitness: a.Report.AverageFitness,
		MaxFitness:     a.Report.MaxFitness,
		CreatedAtUTC:   a.CreatedAtUTC.UTC().Format(time.RFC3339Nano),
	}
}

// WriteRunArtifacts lays out one run under baseDir/<run id>.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), RunConfig{RunID: artifacts.RunID, Scenario: artifacts.Scenario}); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "report.json"), artifacts.Report); err != nil {
		return "", err
	}
	diagnostics := SummarizeGenerations(artifacts.Report.FitnessPerGeneration)
	if err := writeJSON(filepath.Join(runDir, "generation_diagnostics.json"), diagnostics); err != nil {
		return "", err
	}
	label := artifacts.Scenario.Name
	if label == "" {
		label = artifacts.RunID
	}
	if err := WriteFitnessGraph(runDir, label, diagnostics); err != nil {
		return "", err
	}
	if err := WriteFitnessHistory(runDir, artifacts.Report.FitnessPerGeneration); err != nil {
		return "", err
	}
	if len(artifacts.Report.Snapshots) > 0 {
		if err := writeJSON(filepath.Join(runDir, "snapshots.json"), artifacts.Report.Snapshots); err != nil {
			return "", err
		}
	}
	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// RemoveRunArtifacts deletes a run directory and its index entry. It reports
// whether either existed.
func RemoveRunArtifacts(baseDir, runID string) (bool, error) {
	if runID == "" {
		return false, fmt.Errorf("run id is required")
	}

	var index []RunIndexEntry
	if _, err := readJSON(filepath.Join(baseDir, runIndexFile), &index); err != nil {
		return false, err
	}
	kept := make([]RunIndexEntry, 0, len(index))
	for _, entry := range index {
		if entry.RunID != runID {
			kept = append(kept, entry)
		}
	}
	removed := len(kept) != len(index)
	if removed {
		if err := writeJSON(filepath.Join(baseDir, runIndexFile), kept); err != nil {
			return false, err
		}
	}

	runDir := filepath.Join(baseDir, runID)
	if _, err := os.Stat(runDir); err == nil {
		if err := os.RemoveAll(runDir); err != nil {
			return false, err
		}
		removed = true
	} else if !os.IsNotExist(err) {
		return false, err
	}
	return removed, nil
}

// FindRunIndexEntry returns the index entry for runID.
func FindRunIndexEntry(baseDir, runID string) (RunIndexEntry, bool, error) {
	entries, err := ListRunIndex(baseDir)
	if err != nil {
		return RunIndexEntry{}, false, err
	}
	for _, entry := range entries {
		if entry.RunID == runID {
			return entry, true, nil
		}
	}
	return RunIndexEntry{}, false, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	files := []string{"config.json", "report.json", "generation_diagnostics.json", "fitness_history.csv", fitnessGraphFile}
	for _, file := range files {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	snapshotsPath := filepath.Join(src, "snapshots.json")
	if _, err := os.Stat(snapshotsPath); err == nil {
		if err := copyFile(snapshotsPath, filepath.Join(dst, "snapshots.json")); err != nil {
			return "", err
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, "config.json"), &cfg)
	return cfg, ok, err
}

func ReadRunReport(baseDir, runID string) (model.RunReport, bool, error) {
	var report model.RunReport
	ok, err := readJSON(filepath.Join(baseDir, runID, "report.json"), &report)
	return report, ok, err
}

// WriteFitnessHistory writes one CSV row per generation with every
// individual's fitness.
func WriteFitnessHistory(runDir string, records []model.GenerationRecord) error {
	path := filepath.Join(runDir, "fitness_history.csv")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	width := 0
	for _, record := range records {
		if len(record) > width {
			width = len(record)
		}
	}
	header := []string{"generation"}
	for i := 0; i < width; i++ {
		header = append(header, "ind_"+strconv.Itoa(i))
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	for gen, record := range records {
		row := make([]string, 0, len(record)+1)
		row = append(row, strconv.Itoa(gen))
		for _, f := range record {
			row = append(row, strconv.FormatFloat(f, 'f', -1, 64))
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadFitnessHistory(baseDir, runID string) ([]model.GenerationRecord, bool, error) {
	path := filepath.Join(baseDir, runID, "fitness_history.csv")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return []model.GenerationRecord{}, true, nil
		}
		return nil, false, err
	}

	records := make([]model.GenerationRecord, 0, 64)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(row) < 1 {
			return nil, false, fmt.Errorf("fitness history row must have a generation column")
		}
		record := make(model.GenerationRecord, 0, len(row)-1)
		for _, cell := range row[1:] {
			value, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, false, err
			}
			record = append(record, value)
		}
		records = append(records, record)
	}
	return records, true, nil
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
