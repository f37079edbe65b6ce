// Package scenario runs lists of independent scenarios, one engine per
// scenario.
package scenario

import (
	"fmt"

	"github.com/google/uuid"

	"bitevo/internal/model"
)

const (
	DefaultPopulationSize   = 4
	DefaultChromosomeLength = 5
)

// DefaultScenarios returns a fresh copy of the reference scenario table.
func DefaultScenarios() []model.Scenario {
	params := []struct {
		pc, pm float64
		maxGen int
	}{
		{0.75, 0.005, 30},
		{0.75, 0.005, 50},
		{0.90, 0.01, 30},
		{0.90, 0.01, 50},
	}
	out := make([]model.Scenario, 0, len(params))
	for i, p := range params {
		out = append(out, model.Scenario{
			Name:             fmt.Sprintf("Scenario %d", i+1),
			Pc:               p.pc,
			Pm:               p.pm,
			MaxGen:           p.maxGen,
			PopulationSize:   DefaultPopulationSize,
			ChromosomeLength: DefaultChromosomeLength,
			Seed:             int64(i + 1),
			Init:             model.InitLiteral,
		})
	}
	return out
}

func NewRunID() string {
	return uuid.NewString()
}

// Label names a scenario for reports, falling back to its position.
func Label(index int, s model.Scenario) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("Scenario %d", index+1)
}
