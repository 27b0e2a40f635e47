package loop_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/skilltune/internal/evalset"
	"github.com/signalnine/skilltune/internal/logging"
	"github.com/signalnine/skilltune/internal/loop"
	"github.com/signalnine/skilltune/internal/result"
	"github.com/signalnine/skilltune/internal/rewrite"
)

// tableEvaluator passes a query when the description lists it in passing.
type tableEvaluator struct {
	passing map[string][]string
	calls   int
	err     error
}

func (e *tableEvaluator) Evaluate(_ context.Context, items []evalset.Item, description string) (*result.EvalOutput, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	pass := map[string]bool{}
	for _, q := range e.passing[description] {
		pass[q] = true
	}
	var results []result.QueryResult
	for _, it := range items {
		triggered := pass[it.Query] == it.ShouldTrigger
		results = append(results, result.NewQueryResult(it.Query, it.ShouldTrigger, []bool{triggered}, 0.5))
	}
	return &result.EvalOutput{Description: description, Results: results, Summary: result.Summarize(results)}, nil
}

type listRewriter struct {
	next     []string
	err      error
	requests []*rewrite.Request
}

func (r *listRewriter) Improve(_ context.Context, req *rewrite.Request) (string, *rewrite.Transcript, error) {
	r.requests = append(r.requests, req)
	if r.err != nil {
		return "", nil, r.err
	}
	d := r.next[0]
	r.next = r.next[1:]
	return d, &rewrite.Transcript{FinalDescription: d}, nil
}

var (
	train = []evalset.Item{
		{Query: "t1", ShouldTrigger: true},
		{Query: "t2", ShouldTrigger: false},
	}
	test = []evalset.Item{
		{Query: "h1", ShouldTrigger: true},
		{Query: "h2", ShouldTrigger: false},
	}
)

func baseOpts(ev loop.Evaluator, rw loop.Rewriter) *loop.Opts {
	return &loop.Opts{
		Train:               train,
		Test:                test,
		SkillName:           "pdf",
		OriginalDescription: "d1",
		MaxIterations:       5,
		Holdout:             0.5,
		Evaluator:           ev,
		Rewriter:            rw,
		Logger:              logging.Discard(),
	}
}

func TestSelectBestFirstMax(t *testing.T) {
	history := []result.IterationRecord{
		{Iteration: 1, TestSummary: &result.Summary{Passed: 3}},
		{Iteration: 2, TestSummary: &result.Summary{Passed: 5}},
		{Iteration: 3, TestSummary: &result.Summary{Passed: 5}},
	}
	assert.Equal(t, 1, loop.SelectBest(history, true))
}

func TestSelectBestTrainOnly(t *testing.T) {
	history := []result.IterationRecord{
		{Iteration: 1, TrainSummary: result.Summary{Passed: 2}, TestSummary: &result.Summary{Passed: 9}},
		{Iteration: 2, TrainSummary: result.Summary{Passed: 4}},
		{Iteration: 3, TrainSummary: result.Summary{Passed: 1}},
	}
	assert.Equal(t, 1, loop.SelectBest(history, false))
	assert.Equal(t, 0, loop.SelectBest(history, true))
}

func TestRunAllPassed(t *testing.T) {
	ev := &tableEvaluator{passing: map[string][]string{
		"d1": {"t1"},
		"d2": {"t1", "t2", "h1"},
	}}
	rw := &listRewriter{next: []string{"d2"}}

	res, err := loop.Run(context.Background(), baseOpts(ev, rw))
	require.NoError(t, err)

	assert.Equal(t, result.ExitAllPassed, res.ExitReason)
	assert.Equal(t, 2, res.IterationsRun)
	assert.Equal(t, 2, ev.calls)
	assert.Equal(t, "d2", res.BestDescription)
	assert.Equal(t, "d2", res.FinalDescription)
	assert.Equal(t, "1/2", res.BestScore)
	assert.Equal(t, "2/2", res.BestTrainScore)
	require.NotNil(t, res.BestTestScore)
	assert.Equal(t, "1/2", *res.BestTestScore)
	assert.Equal(t, 2, res.TrainSize)
	assert.Equal(t, 2, res.TestSize)
}

func TestRunPicksBestByHeldOutScore(t *testing.T) {
	// d2 wins on train but d1 generalizes better.
	ev := &tableEvaluator{passing: map[string][]string{
		"d1": {"h1", "h2"},
		"d2": {"t1"},
		"d3": {},
	}}
	rw := &listRewriter{next: []string{"d2", "d3"}}
	opts := baseOpts(ev, rw)
	opts.MaxIterations = 3

	res, err := loop.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, result.ExitMaxIterations, res.ExitReason)
	assert.Equal(t, 3, res.IterationsRun)
	assert.Equal(t, "d1", res.BestDescription)
	assert.Equal(t, 1, res.BestIteration)
	assert.Equal(t, "2/2", res.BestScore)
	assert.Equal(t, "d3", res.FinalDescription)
	assert.Len(t, rw.requests, 2, "no rewrite after the last iteration")
}

func TestRunBlindsRewriter(t *testing.T) {
	ev := &tableEvaluator{passing: map[string][]string{}}
	rw := &listRewriter{next: []string{"d2", "d3"}}
	opts := baseOpts(ev, rw)
	opts.MaxIterations = 3

	_, err := loop.Run(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, rw.requests, 2)

	last := rw.requests[1]
	assert.Len(t, last.History, 2)
	for _, r := range last.Results {
		assert.True(t, strings.HasPrefix(r.Query, "t"), "held-out query %q shown to rewriter", r.Query)
	}
	data, err := json.Marshal(last.History)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "test_")
	assert.NotContains(t, string(data), `"h1"`)
	assert.Equal(t, "d2", last.CurrentDescription)
}

func TestRunWithoutTestSet(t *testing.T) {
	ev := &tableEvaluator{passing: map[string][]string{
		"d1": {"t1"},
		"d2": {},
	}}
	rw := &listRewriter{next: []string{"d2"}}
	opts := baseOpts(ev, rw)
	opts.Test = nil
	opts.MaxIterations = 2

	res, err := loop.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Nil(t, res.BestTestScore)
	assert.Equal(t, "d1", res.BestDescription)
	assert.Equal(t, "1/2", res.BestScore)
	for _, rec := range res.History {
		assert.Nil(t, rec.TestSummary)
		assert.Empty(t, rec.TestResults)
	}
}

func TestRunRewriteFailureKeepsBest(t *testing.T) {
	ev := &tableEvaluator{passing: map[string][]string{"d1": {"t1", "h1"}}}
	rw := &listRewriter{err: errors.New("model unavailable")}

	res, err := loop.Run(context.Background(), baseOpts(ev, rw))
	require.NoError(t, err)
	assert.Equal(t, result.ExitRewriteFailed, res.ExitReason)
	assert.Equal(t, 1, res.IterationsRun)
	assert.Equal(t, "d1", res.BestDescription)
}

func TestRunEvaluatorErrorIsFatal(t *testing.T) {
	ev := &tableEvaluator{err: context.Canceled}
	_, err := loop.Run(context.Background(), baseOpts(ev, &listRewriter{}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunProgress(t *testing.T) {
	ev := &tableEvaluator{passing: map[string][]string{}}
	rw := &listRewriter{next: []string{"d2"}}
	opts := baseOpts(ev, rw)
	opts.MaxIterations = 2
	var snapshots []*result.LoopProgress
	opts.Progress = func(p *result.LoopProgress) { snapshots = append(snapshots, p) }

	_, err := loop.Run(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, "in progress", snapshots[0].BestScore)
	assert.Len(t, snapshots[0].History, 1)
	assert.Len(t, snapshots[1].History, 2)
	assert.Equal(t, "d2", snapshots[1].CurrentDescription)
}

func TestRunStartDescriptionOverride(t *testing.T) {
	ev := &tableEvaluator{passing: map[string][]string{"custom": {"t1", "t2"}}}
	opts := baseOpts(ev, &listRewriter{})
	opts.StartDescription = "custom"

	res, err := loop.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "custom", res.History[0].Description)
	assert.Equal(t, "d1", res.OriginalDescription)
}

func TestRunValidates(t *testing.T) {
	opts := baseOpts(&tableEvaluator{}, &listRewriter{})
	opts.MaxIterations = 0
	_, err := loop.Run(context.Background(), opts)
	assert.Error(t, err)

	opts = baseOpts(&tableEvaluator{}, &listRewriter{})
	opts.Train, opts.Test = nil, nil
	_, err = loop.Run(context.Background(), opts)
	assert.ErrorIs(t, err, evalset.ErrEmpty)
}
