package runner_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/signalnine/skilltune/internal/launch"
	"github.com/signalnine/skilltune/internal/skill"
)

var errKilled = errors.New("killed")

// script decides what a fake agent prints. command is the name of the
// single command file present when the fake launched, or "" if there
// was none.
type script func(spec launch.Spec, command string) (lines []string, hang bool)

type fakeLauncher struct {
	script    script
	launchErr error
	// failQuery makes launches of that query fail.
	failQuery string

	mu       sync.Mutex
	procs    []*fakeProcess
	commands []string

	active    atomic.Int32
	maxActive atomic.Int32
}

func (f *fakeLauncher) Launch(_ context.Context, spec launch.Spec) (launch.Process, error) {
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	if f.failQuery != "" && queryOf(spec) == f.failQuery {
		return nil, errors.New("launch failed")
	}
	command := soleCommand(spec.Dir)
	lines, hang := f.script(spec, command)

	n := f.active.Add(1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	pr, pw := io.Pipe()
	p := &fakeProcess{r: pr, w: pw, owner: f}
	f.mu.Lock()
	f.procs = append(f.procs, p)
	f.commands = append(f.commands, command)
	f.mu.Unlock()

	go func() {
		for _, l := range lines {
			if _, err := pw.Write([]byte(l + "\n")); err != nil {
				return
			}
		}
		if !hang {
			pw.Close()
		}
	}()
	return p, nil
}

func (f *fakeLauncher) allKilled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.procs {
		if !p.killed.Load() {
			return false
		}
	}
	return true
}

type fakeProcess struct {
	r      *io.PipeReader
	w      *io.PipeWriter
	owner  *fakeLauncher
	killed atomic.Bool
	once   sync.Once
}

func (p *fakeProcess) Stdout() io.Reader { return p.r }

func (p *fakeProcess) Kill() error {
	p.killed.Store(true)
	p.once.Do(func() {
		p.owner.active.Add(-1)
		p.w.CloseWithError(errKilled)
	})
	return nil
}

func (p *fakeProcess) Wait() error { return nil }

func soleCommand(projectRoot string) string {
	entries, err := os.ReadDir(filepath.Join(projectRoot, skill.CommandsDir))
	if err != nil || len(entries) != 1 {
		return ""
	}
	return strings.TrimSuffix(entries[0].Name(), ".md")
}

func queryOf(spec launch.Spec) string {
	for i, a := range spec.Argv {
		if a == "-p" && i+1 < len(spec.Argv) {
			return spec.Argv[i+1]
		}
	}
	return ""
}

func mustJSON(t testing.TB, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func toolStart(t testing.TB, tool string) string {
	return mustJSON(t, map[string]any{
		"type": "stream_event",
		"event": map[string]any{
			"type":          "content_block_start",
			"content_block": map[string]any{"type": "tool_use", "name": tool},
		},
	})
}

func inputDelta(t testing.TB, partial string) string {
	return mustJSON(t, map[string]any{
		"type": "stream_event",
		"event": map[string]any{
			"type":  "content_block_delta",
			"delta": map[string]any{"type": "input_json_delta", "partial_json": partial},
		},
	})
}

// selects emits a Skill call naming command, then nothing more: the
// detector must decide without waiting for the stream to end.
func selects(t testing.TB, command string) []string {
	return []string{
		toolStart(t, "Skill"),
		inputDelta(t, `{"skill": "`),
		inputDelta(t, command+`"}`),
	}
}

func declines(t testing.TB) []string {
	return []string{toolStart(t, "Bash")}
}
