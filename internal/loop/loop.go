// Package loop drives the evaluate-and-rewrite search over trigger
// descriptions.
package loop

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/signalnine/skilltune/internal/evalset"
	"github.com/signalnine/skilltune/internal/logging"
	"github.com/signalnine/skilltune/internal/result"
	"github.com/signalnine/skilltune/internal/rewrite"
)

// Evaluator runs one evaluation batch for a description.
type Evaluator interface {
	Evaluate(ctx context.Context, items []evalset.Item, description string) (*result.EvalOutput, error)
}

// Rewriter proposes the next description. *rewrite.Improver implements it.
type Rewriter interface {
	Improve(ctx context.Context, req *rewrite.Request) (string, *rewrite.Transcript, error)
}

type Opts struct {
	Train []evalset.Item
	// Test is the held-out set. It is evaluated every iteration but never
	// shown to the Rewriter.
	Test []evalset.Item

	SkillName           string
	SkillContent        string
	OriginalDescription string
	// StartDescription overrides the first candidate. Defaults to
	// OriginalDescription.
	StartDescription string
	MaxIterations    int
	Holdout          float64

	Evaluator Evaluator
	Rewriter  Rewriter
	// Progress, when set, receives a snapshot after every iteration.
	Progress func(*result.LoopProgress)
	Logger   *log.Logger
}

// Run iterates until every training query passes, the iteration budget
// is spent, or the rewriter fails. The best iteration is then chosen by
// held-out score, or by training score when there is no test set.
func Run(ctx context.Context, opts *Opts) (*result.LoopResult, error) {
	if opts.MaxIterations < 1 {
		return nil, fmt.Errorf("max iterations must be at least 1, got %d", opts.MaxIterations)
	}
	if len(opts.Train)+len(opts.Test) == 0 {
		return nil, evalset.ErrEmpty
	}
	if opts.Evaluator == nil || opts.Rewriter == nil {
		return nil, errors.New("loop needs an evaluator and a rewriter")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.New("loop")
	}

	current := opts.StartDescription
	if current == "" {
		current = opts.OriginalDescription
	}
	hasTest := len(opts.Test) > 0
	inTrain := make(map[string]bool, len(opts.Train))
	for _, it := range opts.Train {
		inTrain[it.Query] = true
	}
	all := make([]evalset.Item, 0, len(opts.Train)+len(opts.Test))
	all = append(append(all, opts.Train...), opts.Test...)

	var (
		history   []result.IterationRecord
		exit      result.ExitReason
		iteration int
	)
	for iteration = 1; ; iteration++ {
		logger.Info("evaluating", "iteration", iteration, "of", opts.MaxIterations, "description", current)
		out, err := opts.Evaluator.Evaluate(ctx, all, current)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iteration, err)
		}

		rec := result.IterationRecord{Iteration: iteration, Description: current}
		var testResults []result.QueryResult
		for _, r := range out.Results {
			if inTrain[r.Query] {
				rec.TrainResults = append(rec.TrainResults, r)
			} else {
				testResults = append(testResults, r)
			}
		}
		rec.TrainSummary = result.Summarize(rec.TrainResults)
		if hasTest {
			s := result.Summarize(testResults)
			rec.TestSummary = &s
			rec.TestResults = testResults
		}
		history = append(history, rec)
		logIteration(logger, &rec)

		if opts.Progress != nil {
			opts.Progress(&result.LoopProgress{
				OriginalDescription: opts.OriginalDescription,
				CurrentDescription:  current,
				BestScore:           "in progress",
				IterationsRun:       len(history),
				Holdout:             opts.Holdout,
				TrainSize:           len(opts.Train),
				TestSize:            len(opts.Test),
				History:             append([]result.IterationRecord(nil), history...),
			})
		}

		if rec.TrainSummary.Failed == 0 {
			exit = result.ExitAllPassed
			logger.Info("all train queries passed", "iteration", iteration)
			break
		}
		if iteration == opts.MaxIterations {
			exit = result.ExitMaxIterations
			logger.Info("max iterations reached", "iterations", iteration)
			break
		}

		next, _, err := opts.Rewriter.Improve(ctx, &rewrite.Request{
			SkillName:          opts.SkillName,
			SkillContent:       opts.SkillContent,
			CurrentDescription: current,
			Results:            rec.TrainResults,
			Summary:            rec.TrainSummary,
			History:            result.BlindHistory(history),
			Iteration:          iteration,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Error("rewrite failed, keeping the best description so far", "iteration", iteration, "err", err)
			exit = result.ExitRewriteFailed
			break
		}
		logger.Info("proposed", "iteration", iteration, "description", next)
		current = next
	}

	best := history[SelectBest(history, hasTest)]
	res := &result.LoopResult{
		ExitReason:          exit,
		ExitIteration:       iteration,
		OriginalDescription: opts.OriginalDescription,
		BestDescription:     best.Description,
		BestIteration:       best.Iteration,
		BestTrainScore:      score(best.TrainSummary),
		FinalDescription:    current,
		IterationsRun:       len(history),
		Holdout:             opts.Holdout,
		TrainSize:           len(opts.Train),
		TestSize:            len(opts.Test),
		History:             history,
	}
	res.BestScore = res.BestTrainScore
	if hasTest {
		s := score(*best.TestSummary)
		res.BestTestScore = &s
		res.BestScore = s
	}
	logger.Info("done", "exit_reason", res.ExitReason, "best_score", res.BestScore, "best_iteration", res.BestIteration)
	return res, nil
}

// SelectBest returns the index of the record with the most passing
// held-out queries, or training queries when hasTest is false. Ties go
// to the earliest record. history must not be empty.
func SelectBest(history []result.IterationRecord, hasTest bool) int {
	best, bestScore := 0, -1
	for i := range history {
		s := history[i].TrainSummary.Passed
		if hasTest {
			s = 0
			if history[i].TestSummary != nil {
				s = history[i].TestSummary.Passed
			}
		}
		if s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

func score(s result.Summary) string {
	return fmt.Sprintf("%d/%d", s.Passed, s.Total)
}

func logIteration(logger *log.Logger, rec *result.IterationRecord) {
	logSet(logger, "train", rec.Iteration, rec.TrainResults)
	if rec.TestSummary != nil {
		logSet(logger, "test", rec.Iteration, rec.TestResults)
	}
	for _, r := range rec.TrainResults {
		status := "FAIL"
		if r.Pass {
			status = "PASS"
		}
		logger.Debug(status, "rate", fmt.Sprintf("%d/%d", r.Triggers, r.Runs), "expected", r.ShouldTrigger, "query", r.Query)
	}
}

func logSet(logger *log.Logger, label string, iteration int, results []result.QueryResult) {
	c := result.ComputeConfusion(results)
	logger.Info(label,
		"iteration", iteration,
		"correct", fmt.Sprintf("%d/%d", c.Correct(), c.Total()),
		"precision", fmt.Sprintf("%.0f%%", c.Precision*100),
		"recall", fmt.Sprintf("%.0f%%", c.Recall*100),
		"accuracy", fmt.Sprintf("%.0f%%", c.Accuracy*100),
	)
}
