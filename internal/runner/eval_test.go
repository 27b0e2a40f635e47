package runner_test

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/skilltune/internal/evalset"
	"github.com/signalnine/skilltune/internal/launch"
	"github.com/signalnine/skilltune/internal/logging"
	"github.com/signalnine/skilltune/internal/result"
	"github.com/signalnine/skilltune/internal/runner"
)

func evalOpts(root string, l launch.Launcher, items []evalset.Item) *runner.EvalOpts {
	return &runner.EvalOpts{
		Agent: runner.AgentOpts{
			ProjectRoot:  root,
			Launcher:     l,
			Timeout:      2 * time.Second,
			PollInterval: 10 * time.Millisecond,
		},
		Items:        items,
		SkillName:    "pdf",
		Description:  "Fill PDF forms",
		RunsPerQuery: 4,
		Workers:      1,
		Threshold:    0.5,
		Logger:       logging.Discard(),
	}
}

func TestRunEval(t *testing.T) {
	var flaky atomic.Int32
	fl := &fakeLauncher{
		failQuery: "crash",
		script: func(spec launch.Spec, cmd string) ([]string, bool) {
			q := queryOf(spec)
			switch {
			case strings.HasPrefix(q, "yes"):
				return selects(t, cmd), true
			case q == "flaky" && flaky.Add(1)%2 == 0:
				return selects(t, cmd), true
			default:
				return declines(t), true
			}
		},
	}
	items := []evalset.Item{
		{Query: "yes please", ShouldTrigger: true},
		{Query: "no thanks", ShouldTrigger: false},
		{Query: "flaky", ShouldTrigger: false},
		{Query: "crash", ShouldTrigger: true},
	}
	root := t.TempDir()

	out, err := runner.RunEval(context.Background(), evalOpts(root, fl, items))
	require.NoError(t, err)

	want := []result.QueryResult{
		{Query: "yes please", ShouldTrigger: true, TriggerRate: 1, Triggers: 4, Runs: 4, Pass: true},
		{Query: "no thanks", ShouldTrigger: false, TriggerRate: 0, Triggers: 0, Runs: 4, Pass: true},
		{Query: "flaky", ShouldTrigger: false, TriggerRate: 0.5, Triggers: 2, Runs: 4, Pass: false},
		{Query: "crash", ShouldTrigger: true, TriggerRate: 0, Triggers: 0, Runs: 4, Pass: false},
	}
	if diff := cmp.Diff(want, out.Results); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, result.Summary{Total: 4, Passed: 2, Failed: 2}, out.Summary)
	assert.Equal(t, "pdf", out.SkillName)
	assertNoCommandFiles(t, root)
}

func TestRunEvalMergesDuplicateQueries(t *testing.T) {
	fl := &fakeLauncher{script: func(_ launch.Spec, cmd string) ([]string, bool) {
		return selects(t, cmd), true
	}}
	items := []evalset.Item{
		{Query: "a", ShouldTrigger: true},
		{Query: "b", ShouldTrigger: true},
		{Query: "a", ShouldTrigger: true},
	}
	opts := evalOpts(t.TempDir(), fl, items)
	opts.RunsPerQuery = 2

	out, err := runner.RunEval(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	assert.Equal(t, "a", out.Results[0].Query)
	assert.Equal(t, 4, out.Results[0].Runs)
	assert.Equal(t, 4, out.Results[0].Triggers)
	assert.Equal(t, "b", out.Results[1].Query)
}

func TestRunEvalRespectsWorkerLimit(t *testing.T) {
	fl := &fakeLauncher{script: func(launch.Spec, string) ([]string, bool) {
		time.Sleep(5 * time.Millisecond)
		return declines(t), true
	}}
	var items []evalset.Item
	for _, q := range []string{"a", "b", "c", "d", "e", "f"} {
		items = append(items, evalset.Item{Query: q})
	}
	root := t.TempDir()
	opts := evalOpts(root, fl, items)
	opts.Workers = 3
	opts.RunsPerQuery = 3

	out, err := runner.RunEval(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 6, out.Summary.Passed)
	assert.LessOrEqual(t, fl.maxActive.Load(), int32(3))
	assert.Len(t, fl.procs, 18)
	assertNoCommandFiles(t, root)
}

func TestRunEvalRejectsBadInput(t *testing.T) {
	fl := &fakeLauncher{script: func(launch.Spec, string) ([]string, bool) { return nil, false }}

	_, err := runner.RunEval(context.Background(), evalOpts(t.TempDir(), fl, nil))
	assert.ErrorIs(t, err, evalset.ErrEmpty)

	opts := evalOpts(t.TempDir(), fl, []evalset.Item{{Query: "q"}})
	opts.Threshold = 1.5
	_, err = runner.RunEval(context.Background(), opts)
	assert.Error(t, err)
}

func TestRunEvalCanceled(t *testing.T) {
	fl := &fakeLauncher{script: func(launch.Spec, string) ([]string, bool) { return nil, true }}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runner.RunEval(ctx, evalOpts(t.TempDir(), fl, []evalset.Item{{Query: "q"}}))
	assert.ErrorIs(t, err, context.Canceled)
}
