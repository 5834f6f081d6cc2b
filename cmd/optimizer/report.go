package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Ceezar89/ezbot-sub000/internal/optimizer"
	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
	"github.com/Ceezar89/ezbot-sub000/pkg/params"
	"github.com/Ceezar89/ezbot-sub000/pkg/strategy"
)

// candidateJSON is the serialized form of a scored configuration.
type candidateJSON struct {
	Fitness float64           `json:"fitness"`
	Params  params.VectorSpec `json:"params"`
	Result  *backtest.Result  `json:"result"`
}

type reportJSON struct {
	*optimizer.Report
	DurationText string          `json:"duration_text"`
	Best         *candidateJSON  `json:"best,omitempty"`
	Top          []candidateJSON `json:"top"`
}

func toJSON(c optimizer.Candidate) candidateJSON {
	out := candidateJSON{Fitness: c.Fitness, Result: c.Result}
	if c.Vector != nil {
		out.Params = c.Vector.Spec()
	}
	return out
}

func newReportJSON(r *optimizer.Report) reportJSON {
	out := reportJSON{Report: r, DurationText: r.Duration.String(), Top: make([]candidateJSON, 0, len(r.Top))}
	if r.Best != nil {
		best := toJSON(*r.Best)
		out.Best = &best
	}
	for _, c := range r.Top {
		out.Top = append(out.Top, toJSON(c))
	}
	return out
}

// writeReport encodes the report as indented JSON.
func writeReport(w io.Writer, r *optimizer.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(newReportJSON(r))
}

func writeReportFile(path string, r *optimizer.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := writeReport(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}

// printReport writes the human-readable summary.
func printReport(w io.Writer, r *optimizer.Report, top int) {
	fmt.Fprintf(w, "Run %s  strategy=%s mode=%s stop=%s\n", r.RunID, r.StrategyType, r.Mode, r.StopReason)
	fmt.Fprintf(w, "Evaluations: %d (simulated %d, cached %d, failed %d) in %s\n",
		r.Evaluations(), r.Simulations, r.CacheHits, r.Failures, r.Duration.Round(1e6))

	if r.Best == nil {
		fmt.Fprintln(w, "No configuration was evaluated successfully.")
		return
	}
	fmt.Fprintf(w, "\nBest fitness %.4f\n  %s\n  %s\n", r.Best.Fitness, r.Best.Vector, r.Best.Result)

	if top <= 0 || len(r.Top) == 0 {
		return
	}
	if top > len(r.Top) {
		top = len(r.Top)
	}
	fmt.Fprintf(w, "\nTop %d retained:\n", top)
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Fitness", "Trades", "Win %", "Return %", "Max DD %", "Params"})
	for i, c := range r.Top[:top] {
		t.AppendRow(table.Row{
			i + 1,
			fmt.Sprintf("%.4f", c.Fitness),
			c.Result.TotalTrades,
			fmt.Sprintf("%.1f", c.Result.WinRate),
			fmt.Sprintf("%.2f", c.Result.ReturnPct()),
			fmt.Sprintf("%.2f", c.Result.MaxDrawdown*100),
			c.Vector.String(),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 7, Align: text.AlignLeft},
	})
	t.Render()
}

func printStrategies(w io.Writer) {
	for _, typ := range strategy.Types() {
		v, err := strategy.DefaultVector(typ)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "%-16s %s (%d combinations)\n", typ, strategy.Describe(typ), v.PermutationCount())
	}
}
