// Package report aggregates repeated benchmark runs into summary
// statistics and renders them.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/signalnine/skilltune/internal/logging"
)

type Metadata struct {
	SkillName            string `json:"skill_name"`
	SkillPath            string `json:"skill_path"`
	ExecutorModel        string `json:"executor_model"`
	AnalyzerModel        string `json:"analyzer_model"`
	Timestamp            string `json:"timestamp"`
	EvalsRun             []int  `json:"evals_run"`
	RunsPerConfiguration int    `json:"runs_per_configuration"`
}

type RunMetrics struct {
	PassRate    float64 `json:"pass_rate"`
	Passed      int     `json:"passed"`
	Failed      int     `json:"failed"`
	Total       int     `json:"total"`
	TimeSeconds float64 `json:"time_seconds"`
	Tokens      int     `json:"tokens"`
	ToolCalls   int     `json:"tool_calls"`
	Errors      int     `json:"errors"`
}

type Run struct {
	EvalID        int           `json:"eval_id"`
	Configuration string        `json:"configuration"`
	RunNumber     int           `json:"run_number"`
	Result        RunMetrics    `json:"result"`
	Expectations  []Expectation `json:"expectations"`
	Notes         []string      `json:"notes"`
}

// Benchmark is the benchmark.json document.
type Benchmark struct {
	Metadata   Metadata   `json:"metadata"`
	Runs       []Run      `json:"runs"`
	RunSummary RunSummary `json:"run_summary"`
	Notes      []string   `json:"notes"`
}

type Options struct {
	SkillName     string
	SkillPath     string
	ExecutorModel string
	AnalyzerModel string
	Now           func() time.Time
	Logger        *log.Logger
}

const placeholderModel = "<model-name>"

// Build loads every run under dir and assembles the benchmark document.
func Build(dir string, opts Options) (*Benchmark, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.New("report")
	}
	configs, err := LoadRuns(dir, logger)
	if err != nil {
		return nil, err
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	b := &Benchmark{
		Metadata: Metadata{
			SkillName:            orDefault(opts.SkillName, "<skill-name>"),
			SkillPath:            orDefault(opts.SkillPath, "<path/to/skill>"),
			ExecutorModel:        orDefault(opts.ExecutorModel, placeholderModel),
			AnalyzerModel:        orDefault(opts.AnalyzerModel, placeholderModel),
			Timestamp:            now().UTC().Format("2006-01-02T15:04:05Z"),
			EvalsRun:             []int{},
			RunsPerConfiguration: runsPerConfiguration(configs),
		},
		Runs:       []Run{},
		RunSummary: Aggregate(configs),
		Notes:      []string{},
	}

	seen := map[int]bool{}
	for _, c := range configs {
		for _, r := range c.Runs {
			b.Runs = append(b.Runs, Run{
				EvalID:        r.EvalID,
				Configuration: c.Name,
				RunNumber:     r.RunNumber,
				Result: RunMetrics{
					PassRate:    r.PassRate,
					Passed:      r.Passed,
					Failed:      r.Failed,
					Total:       r.Total,
					TimeSeconds: r.TimeSeconds,
					Tokens:      r.Tokens,
					ToolCalls:   r.ToolCalls,
					Errors:      r.Errors,
				},
				Expectations: r.Expectations,
				Notes:        r.Notes,
			})
			if !seen[r.EvalID] {
				seen[r.EvalID] = true
				b.Metadata.EvalsRun = append(b.Metadata.EvalsRun, r.EvalID)
			}
		}
	}
	sort.Ints(b.Metadata.EvalsRun)
	return b, nil
}

// runsPerConfiguration is the largest number of runs any configuration
// made for a single eval.
func runsPerConfiguration(configs []ConfigRuns) int {
	most := 0
	for _, c := range configs {
		perEval := map[int]int{}
		for _, r := range c.Runs {
			perEval[r.EvalID]++
			most = max(most, perEval[r.EvalID])
		}
	}
	return most
}

// Generate builds the benchmark for dir and writes it to w as a table,
// markdown or JSON.
func Generate(dir, format string, w io.Writer, opts Options) error {
	b, err := Build(dir, opts)
	if err != nil {
		return err
	}
	return Write(b, format, w)
}

func Write(b *Benchmark, format string, w io.Writer) error {
	switch format {
	case "markdown":
		return WriteMarkdown(b, w)
	case "json":
		return writeJSON(b, w)
	default:
		return writeTable(b, w)
	}
}

func writeTable(b *Benchmark, w io.Writer) error {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Configuration", "Runs", "Pass Rate", "Time", "Tokens"})
	counts := map[string]int{}
	for _, r := range b.Runs {
		counts[r.Configuration]++
	}
	for _, c := range b.RunSummary.Configs {
		s := c.Summary
		tw.AppendRow(table.Row{
			label(c.Name),
			counts[c.Name],
			passRateCell(s.PassRate),
			timeCell(s.TimeSeconds),
			tokensCell(s.Tokens),
		})
	}
	d := b.RunSummary.Delta
	tw.AppendFooter(table.Row{"Delta", "", d.PassRate, d.TimeSeconds + "s", d.Tokens})
	_, err := fmt.Fprintln(w, tw.Render())
	return err
}

// WriteMarkdown renders benchmark.md: a two-configuration comparison of
// the first two configurations with their delta.
func WriteMarkdown(b *Benchmark, w io.Writer) error {
	configA, configB := "config_a", "config_b"
	if len(b.RunSummary.Configs) > 0 {
		configA = b.RunSummary.Configs[0].Name
	}
	if len(b.RunSummary.Configs) > 1 {
		configB = b.RunSummary.Configs[1].Name
	}
	sa, _ := b.RunSummary.Get(configA)
	sb, _ := b.RunSummary.Get(configB)
	d := b.RunSummary.Delta

	evals := make([]string, len(b.Metadata.EvalsRun))
	for i, id := range b.Metadata.EvalsRun {
		evals[i] = fmt.Sprint(id)
	}

	var sbuf strings.Builder
	fmt.Fprintf(&sbuf, "# Skill Benchmark: %s\n\n", b.Metadata.SkillName)
	fmt.Fprintf(&sbuf, "**Model**: %s\n", b.Metadata.ExecutorModel)
	fmt.Fprintf(&sbuf, "**Date**: %s\n", b.Metadata.Timestamp)
	fmt.Fprintf(&sbuf, "**Evals**: %s (%d runs each per configuration)\n\n",
		strings.Join(evals, ", "), b.Metadata.RunsPerConfiguration)
	sbuf.WriteString("## Summary\n\n")

	tw := table.NewWriter()
	style := table.StyleDefault
	style.Format.Header = text.FormatDefault
	tw.SetStyle(style)
	tw.AppendHeader(table.Row{"Metric", label(configA), label(configB), "Delta"})
	tw.AppendRow(table.Row{"Pass Rate", passRateCell(sa.PassRate), passRateCell(sb.PassRate), d.PassRate})
	tw.AppendRow(table.Row{"Time", timeCell(sa.TimeSeconds), timeCell(sb.TimeSeconds), d.TimeSeconds + "s"})
	tw.AppendRow(table.Row{"Tokens", tokensCell(sa.Tokens), tokensCell(sb.Tokens), d.Tokens})
	sbuf.WriteString(tw.RenderMarkdown())
	sbuf.WriteString("\n")

	if len(b.Notes) > 0 {
		sbuf.WriteString("\n## Notes\n\n")
		for _, n := range b.Notes {
			fmt.Fprintf(&sbuf, "- %s\n", n)
		}
	}
	_, err := io.WriteString(w, sbuf.String())
	return err
}

func writeJSON(b *Benchmark, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}

func passRateCell(s RunStat) string {
	return fmt.Sprintf("%.0f%% ± %.0f%%", s.Mean*100, s.Stddev*100)
}

func timeCell(s RunStat) string {
	return fmt.Sprintf("%.1fs ± %.1fs", s.Mean, s.Stddev)
}

func tokensCell(s RunStat) string {
	return fmt.Sprintf("%.0f ± %.0f", s.Mean, s.Stddev)
}

// label turns a configuration directory name into a column heading:
// with_skill becomes "With Skill".
func label(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
