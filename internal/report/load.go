package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// Expectation is kept as raw JSON fields so that incomplete entries are
// passed through unchanged.
type Expectation map[string]any

// RunResult is one graded run of one eval under one configuration.
type RunResult struct {
	EvalID       int
	RunNumber    int
	PassRate     float64
	Passed       int
	Failed       int
	Total        int
	TimeSeconds  float64
	Tokens       int
	ToolCalls    int
	Errors       int
	Expectations []Expectation
	Notes        []string
}

// ConfigRuns is every run of one configuration, across evals.
type ConfigRuns struct {
	Name string
	Runs []RunResult
}

var ErrNoEvals = errors.New("no eval directories found")

type grading struct {
	Summary struct {
		PassRate float64 `json:"pass_rate"`
		Passed   int     `json:"passed"`
		Failed   int     `json:"failed"`
		Total    int     `json:"total"`
	} `json:"summary"`
	Timing struct {
		TotalDurationSeconds float64 `json:"total_duration_seconds"`
	} `json:"timing"`
	ExecutionMetrics struct {
		TotalToolCalls    int `json:"total_tool_calls"`
		OutputChars       int `json:"output_chars"`
		ErrorsEncountered int `json:"errors_encountered"`
	} `json:"execution_metrics"`
	Expectations     []Expectation `json:"expectations"`
	UserNotesSummary struct {
		Uncertainties []string `json:"uncertainties"`
		NeedsReview   []string `json:"needs_review"`
		Workarounds   []string `json:"workarounds"`
	} `json:"user_notes_summary"`
}

type timing struct {
	TotalDurationSeconds float64 `json:"total_duration_seconds"`
	TotalTokens          int     `json:"total_tokens"`
}

// LoadRuns reads <dir>/eval-*/<config>/run-*/grading.json, or the same
// tree under <dir>/runs/. Any directory holding run-* subdirectories is a
// configuration. Configurations are returned in the order first seen.
// Unreadable runs are logged and skipped.
func LoadRuns(dir string, logger *log.Logger) ([]ConfigRuns, error) {
	searchDir := dir
	if fi, err := os.Stat(filepath.Join(dir, "runs")); err == nil && fi.IsDir() {
		searchDir = filepath.Join(dir, "runs")
	}
	evalDirs, err := subdirs(searchDir, "eval-")
	if err != nil {
		return nil, fmt.Errorf("reading benchmark dir: %w", err)
	}
	if len(evalDirs) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoEvals)
	}

	var configs []ConfigRuns
	index := map[string]int{}
	for evalIdx, evalDir := range evalDirs {
		evalID := evalIDFor(evalDir, evalIdx)

		configDirs, err := subdirs(evalDir, "")
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", evalDir, err)
		}
		for _, configDir := range configDirs {
			runDirs, err := subdirs(configDir, "run-")
			if err != nil || len(runDirs) == 0 {
				continue
			}
			name := filepath.Base(configDir)
			i, ok := index[name]
			if !ok {
				i = len(configs)
				index[name] = i
				configs = append(configs, ConfigRuns{Name: name})
			}
			for _, runDir := range runDirs {
				r, err := loadRun(runDir, logger)
				if err != nil {
					logger.Warn("skipping run", "dir", runDir, "err", err)
					continue
				}
				r.EvalID = evalID
				configs[i].Runs = append(configs[i].Runs, *r)
			}
		}
	}
	return configs, nil
}

func loadRun(runDir string, logger *log.Logger) (*RunResult, error) {
	num, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(runDir), "run-"))
	if err != nil {
		return nil, fmt.Errorf("bad run directory name: %w", err)
	}
	gradingPath := filepath.Join(runDir, "grading.json")
	data, err := os.ReadFile(gradingPath)
	if err != nil {
		return nil, fmt.Errorf("reading grading.json: %w", err)
	}
	var g grading
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", gradingPath, err)
	}

	r := &RunResult{
		RunNumber:    num,
		PassRate:     g.Summary.PassRate,
		Passed:       g.Summary.Passed,
		Failed:       g.Summary.Failed,
		Total:        g.Summary.Total,
		TimeSeconds:  g.Timing.TotalDurationSeconds,
		ToolCalls:    g.ExecutionMetrics.TotalToolCalls,
		Errors:       g.ExecutionMetrics.ErrorsEncountered,
		Expectations: g.Expectations,
	}
	if r.TimeSeconds == 0 {
		if data, err := os.ReadFile(filepath.Join(runDir, "timing.json")); err == nil {
			var t timing
			if json.Unmarshal(data, &t) == nil {
				r.TimeSeconds = t.TotalDurationSeconds
				r.Tokens = t.TotalTokens
			}
		}
	}
	if r.Tokens == 0 {
		r.Tokens = g.ExecutionMetrics.OutputChars
	}
	if r.Expectations == nil {
		r.Expectations = []Expectation{}
	}
	for _, exp := range r.Expectations {
		_, hasText := exp["text"]
		_, hasPassed := exp["passed"]
		if !hasText || !hasPassed {
			logger.Warn("expectation missing required fields (text, passed, evidence)", "file", gradingPath, "expectation", exp)
		}
	}

	notes := g.UserNotesSummary
	r.Notes = make([]string, 0, len(notes.Uncertainties)+len(notes.NeedsReview)+len(notes.Workarounds))
	r.Notes = append(r.Notes, notes.Uncertainties...)
	r.Notes = append(r.Notes, notes.NeedsReview...)
	r.Notes = append(r.Notes, notes.Workarounds...)
	return r, nil
}

// evalIDFor prefers eval_metadata.json, then the number in eval-N[-...], then
// the directory's position.
func evalIDFor(evalDir string, idx int) int {
	if data, err := os.ReadFile(filepath.Join(evalDir, "eval_metadata.json")); err == nil {
		var meta struct {
			EvalID *int `json:"eval_id"`
		}
		if json.Unmarshal(data, &meta) == nil && meta.EvalID != nil {
			return *meta.EvalID
		}
		return idx
	}
	parts := strings.SplitN(filepath.Base(evalDir), "-", 3)
	if len(parts) > 1 {
		if n, err := strconv.Atoi(parts[1]); err == nil {
			return n
		}
	}
	return idx
}

// subdirs lists the directories under dir whose names start with prefix,
// sorted by name.
func subdirs(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}
