package runner

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/signalnine/skilltune/internal/evalset"
	"github.com/signalnine/skilltune/internal/logging"
	"github.com/signalnine/skilltune/internal/result"
)

const DefaultTriggerThreshold = 0.5

type EvalOpts struct {
	Agent        AgentOpts
	Items        []evalset.Item
	SkillName    string
	Description  string
	RunsPerQuery int
	Workers      int
	Threshold    float64
	Logger       *log.Logger
}

// RunEval fans every (item, repetition) pair out to the pool and reduces
// the outcomes per query. A failed invocation counts as a non-trigger and
// is logged; only context cancellation aborts the batch. Results follow
// the first appearance of each query in Items.
func RunEval(ctx context.Context, opts *EvalOpts) (*result.EvalOutput, error) {
	if len(opts.Items) == 0 {
		return nil, evalset.ErrEmpty
	}
	if opts.Threshold < 0 || opts.Threshold > 1 {
		return nil, fmt.Errorf("trigger threshold must be in [0, 1], got %v", opts.Threshold)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.New("eval")
	}
	runs := opts.RunsPerQuery
	if runs < 1 {
		runs = 1
	}

	// Each job owns one slot, so no locking is needed.
	outcomes := make([][]bool, len(opts.Items))
	var jobs []Job
	for i, item := range opts.Items {
		outcomes[i] = make([]bool, runs)
		for rep := 0; rep < runs; rep++ {
			jobs = append(jobs, func(ctx context.Context) error {
				triggered, err := RunQuery(ctx, &QueryOpts{
					AgentOpts:   opts.Agent,
					Query:       item.Query,
					SkillName:   opts.SkillName,
					Description: opts.Description,
					Logger:      logger,
				})
				if err != nil {
					if ctx.Err() != nil {
						return err
					}
					logger.Warn("query failed", "query", truncate(item.Query, 60), "run", rep+1, "err", err)
					return nil
				}
				outcomes[i][rep] = triggered
				return nil
			})
		}
	}

	logger.Debug("evaluating", "queries", len(opts.Items), "runs_per_query", runs, "jobs", len(jobs), "workers", opts.Workers)
	RunPool(ctx, opts.Workers, jobs)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("evaluation interrupted: %w", err)
	}

	type group struct {
		item     evalset.Item
		outcomes []bool
	}
	var order []string
	groups := make(map[string]*group)
	for i, item := range opts.Items {
		g, ok := groups[item.Query]
		if !ok {
			g = &group{item: item}
			groups[item.Query] = g
			order = append(order, item.Query)
		}
		g.outcomes = append(g.outcomes, outcomes[i]...)
	}

	results := make([]result.QueryResult, 0, len(order))
	for _, q := range order {
		g := groups[q]
		results = append(results, result.NewQueryResult(q, g.item.ShouldTrigger, g.outcomes, opts.Threshold))
	}
	return &result.EvalOutput{
		SkillName:   opts.SkillName,
		Description: opts.Description,
		Results:     results,
		Summary:     result.Summarize(results),
	}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Evaluator runs RunEval with fixed settings for varying items and
// descriptions.
type Evaluator struct {
	Base EvalOpts
}

func (e *Evaluator) Evaluate(ctx context.Context, items []evalset.Item, description string) (*result.EvalOutput, error) {
	opts := e.Base
	opts.Items = items
	opts.Description = description
	return RunEval(ctx, &opts)
}
