package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"bitevo/internal/model"
	"bitevo/internal/scenario"
)

// printer writes key=value lines. On a terminal durations, counts and
// timestamps are humanized; otherwise raw values keep the output scriptable.
type printer struct {
	w     io.Writer
	human bool
}

func newPrinter() printer {
	fd := os.Stdout.Fd()
	return printer{
		w:     os.Stdout,
		human: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	}
}

func (p printer) printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

func (p printer) json(value any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func (p printer) duration(d time.Duration) string {
	if p.human {
		return humanize.SIWithDigits(d.Seconds(), 2, "s")
	}
	return strconv.FormatInt(d.Nanoseconds(), 10) + "ns"
}

func (p printer) count(n int) string {
	if p.human {
		return humanize.Comma(int64(n))
	}
	return strconv.Itoa(n)
}

func (p printer) timestamp(raw string) string {
	if !p.human {
		return raw
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return raw
	}
	return humanize.Time(t)
}

// progressObserver reports scenario progress while a batch runs.
type progressObserver struct {
	p printer
}

func (o progressObserver) ScenarioStarted(index int, s model.Scenario) {
	o.p.printf("scenario_started label=%q pc=%g pm=%g gens=%d pop=%d seed=%d\n",
		scenario.Label(index, s), s.Pc, s.Pm, s.MaxGen, s.PopulationSize, s.Seed)
}

func (o progressObserver) ScenarioFinished(result scenario.Result) {
	o.p.printf("scenario_finished label=%q run_id=%s avg_fitness=%.6f max_fitness=%.6f crossovers=%s mutations=%s elapsed=%s\n",
		scenario.Label(result.Index, result.Scenario),
		result.RunID,
		result.Report.AverageFitness,
		result.Report.MaxFitness,
		o.p.count(result.Report.CrossoverCount),
		o.p.count(result.Report.MutationCount),
		o.p.duration(result.Report.Elapsed),
	)
}
