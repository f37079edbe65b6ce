package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"bitevo/internal/model"
	bitevoapi "bitevo/pkg/bitevo"
)

const defaultSnapshotEvery = 29

// loadRunRequestFromConfig reads a scenarios file. Scenario keys missing from
// an entry fall back to defaults; entry i without a seed uses defaults.Seed+i.
// A missing snapshot_every means defaultSnapshotEvery.
func loadRunRequestFromConfig(path string, defaults model.Scenario) (bitevoapi.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return bitevoapi.RunRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return bitevoapi.RunRequest{}, err
	}

	req := bitevoapi.RunRequest{SnapshotEvery: defaultSnapshotEvery}
	if v, ok := asString(raw["selection"]); ok {
		req.Selection = v
	}
	if err := intField(raw, "tournament_size", &req.TournamentSize); err != nil {
		return bitevoapi.RunRequest{}, err
	}
	if v, ok := asString(raw["crossover"]); ok {
		req.Crossover = v
	}
	if v, ok := asString(raw["mutation"]); ok {
		req.Mutation = v
	}
	if v, ok := asString(raw["fitness"]); ok {
		req.Fitness = v
	}
	if v, ok := asString(raw["policy"]); ok {
		req.Policy = v
	}
	if err := intField(raw, "parallel", &req.Parallelism); err != nil {
		return bitevoapi.RunRequest{}, err
	}
	if err := intField(raw, "snapshot_every", &req.SnapshotEvery); err != nil {
		return bitevoapi.RunRequest{}, err
	}
	if items, ok := raw["initial_population"].([]any); ok {
		initial := make(model.Population, 0, len(items))
		for i, item := range items {
			bits, ok := asString(item)
			if !ok {
				return bitevoapi.RunRequest{}, fmt.Errorf("initial_population[%d] must be a bit string", i)
			}
			chromosome, err := model.ParseChromosome(bits)
			if err != nil {
				return bitevoapi.RunRequest{}, fmt.Errorf("initial_population[%d]: %w", i, err)
			}
			initial = append(initial, chromosome)
		}
		req.Initial = initial
	}

	items, ok := raw["scenarios"].([]any)
	if !ok || len(items) == 0 {
		return bitevoapi.RunRequest{}, errors.New("config requires a non-empty scenarios list")
	}
	req.Scenarios = make([]model.Scenario, 0, len(items))
	for i, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			return bitevoapi.RunRequest{}, fmt.Errorf("scenarios[%d] must be an object", i)
		}
		s, err := scenarioFromMap(entry, defaults, i)
		if err != nil {
			return bitevoapi.RunRequest{}, fmt.Errorf("scenarios[%d]: %w", i, err)
		}
		req.Scenarios = append(req.Scenarios, s)
	}
	return req, nil
}

func scenarioFromMap(raw map[string]any, defaults model.Scenario, index int) (model.Scenario, error) {
	s := defaults
	s.Name = ""
	s.Seed = defaults.Seed + int64(index)
	if v, ok := asString(raw["name"]); ok {
		s.Name = v
	}
	if v, ok := asFloat64(raw["pc"]); ok {
		s.Pc = v
	}
	if v, ok := asFloat64(raw["pm"]); ok {
		s.Pm = v
	}
	for key, dst := range map[string]*int{
		"max_gen":           &s.MaxGen,
		"population_size":   &s.PopulationSize,
		"chromosome_length": &s.ChromosomeLength,
	} {
		if err := intField(raw, key, dst); err != nil {
			return model.Scenario{}, err
		}
	}
	if v, ok := raw["seed"]; ok {
		seed, err := asInt64(v)
		if err != nil {
			return model.Scenario{}, fmt.Errorf("seed: %w", err)
		}
		s.Seed = seed
	}
	if v, ok := asString(raw["init"]); ok {
		s.Init = model.InitMode(v)
	}
	return s, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// intField stores raw[key] into dst when present. Fractional or out of range
// numbers are errors.
func intField(raw map[string]any, key string, dst *int) error {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	x, err := asInt64(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if x < math.MinInt || x > math.MaxInt {
		return fmt.Errorf("%s: %d out of range", key, x)
	}
	*dst = int(x)
	return nil
}

func asInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("%v is not an integer", x)
		}
		if x < math.MinInt64 || x >= math.MaxInt64 {
			return 0, fmt.Errorf("%v out of range", x)
		}
		return int64(x), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

// overrideFromFlags applies explicitly set operator flags on top of a config
// file request.
func overrideFromFlags(req *bitevoapi.RunRequest, set map[string]bool, flagValue map[string]any) {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "selection":
			req.Selection = v.(string)
		case "tournament-size":
			req.TournamentSize = v.(int)
		case "crossover":
			req.Crossover = v.(string)
		case "mutation":
			req.Mutation = v.(string)
		case "fitness":
			req.Fitness = v.(string)
		case "policy":
			req.Policy = v.(string)
		case "parallel":
			req.Parallelism = v.(int)
		case "snapshot-every":
			req.SnapshotEvery = v.(int)
		}
	}
}

func loadOrDefaultRunRequest(configPath string, defaults model.Scenario) (bitevoapi.RunRequest, error) {
	if configPath == "" {
		return bitevoapi.RunRequest{}, nil
	}
	req, err := loadRunRequestFromConfig(configPath, defaults)
	if err != nil {
		return bitevoapi.RunRequest{}, fmt.Errorf("load config: %w", err)
	}
	return req, nil
}

// parsePopulation reads a comma-separated list of bit strings.
func parsePopulation(value string) (model.Population, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	out := make(model.Population, 0, len(parts))
	for i, part := range parts {
		chromosome, err := model.ParseChromosome(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("individual %d: %w", i, err)
		}
		out = append(out, chromosome)
	}
	return out, nil
}

func hasAnyScenarioFlag(set map[string]bool) bool {
	return set["pc"] ||
		set["pm"] ||
		set["gens"] ||
		set["pop"] ||
		set["length"] ||
		set["seed"] ||
		set["init"] ||
		set["name"]
}
