package result_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/signalnine/skilltune/internal/result"
)

func TestWriteAndReadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "results.json")
	out := &result.EvalOutput{
		SkillName:   "pdf",
		Description: "Fill PDF forms",
		Results: []result.QueryResult{
			result.NewQueryResult("fill this form", true, []bool{true, true, false}, 0.5),
		},
	}
	out.Summary = result.Summarize(out.Results)
	if err := result.WriteJSON(path, out); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}

	var got result.EvalOutput
	if err := result.ReadJSON(path, &got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.SkillName != out.SkillName {
		t.Errorf("skill_name: got %q, want %q", got.SkillName, out.SkillName)
	}
	if got.Summary != out.Summary {
		t.Errorf("summary: got %+v, want %+v", got.Summary, out.Summary)
	}
}

func TestReadJSONMissing(t *testing.T) {
	var v map[string]any
	if err := result.ReadJSON(filepath.Join(t.TempDir(), "nope.json"), &v); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCreateRunDir(t *testing.T) {
	base := t.TempDir()
	runDir, err := result.CreateRunDir(base)
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		t.Errorf("run directory not created: %s", runDir)
	}
	latest := filepath.Join(base, "latest")
	target, err := os.Readlink(latest)
	if err != nil {
		t.Fatalf("reading latest symlink: %v", err)
	}
	if target != runDir {
		t.Errorf("latest symlink: got %q, want %q", target, runDir)
	}
}

func TestLogDir(t *testing.T) {
	base := t.TempDir()
	if got, want := result.LogDir(base), filepath.Join(base, "logs"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
