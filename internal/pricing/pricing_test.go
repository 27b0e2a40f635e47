package pricing_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/signalnine/skilltune/internal/pricing"
)

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func TestLoadPricing(t *testing.T) {
	dir := t.TempDir()
	content := `anthropic:
  claude-sonnet-4-5:
    input: 0.003
    output: 0.015
openai:
  gpt-4.1:
    input: 0.002
    output: 0.008
`
	path := filepath.Join(dir, "pricing.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := pricing.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cost := table.Cost("anthropic", "claude-sonnet-4-5", 10000, 2000)
	want := 0.06
	if abs(cost-want) > 0.0001 {
		t.Errorf("got %f, want %f", cost, want)
	}
	if _, ok := table.Lookup("openai", "gpt-4.1"); !ok {
		t.Error("expected openai/gpt-4.1 to be priced")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	table, err := pricing.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cost := table.Cost("anthropic", "any", 1000, 1000); cost != 0 {
		t.Errorf("expected 0 from empty table, got %f", cost)
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	if err := os.WriteFile(path, []byte("anthropic: [not, a, map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := pricing.Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestCostUnknownModel(t *testing.T) {
	table := &pricing.Table{}
	cost := table.Cost("unknown", "unknown", 1000, 500)
	if cost != 0 {
		t.Errorf("expected 0 for unknown model, got %f", cost)
	}
	var nilTable *pricing.Table
	if nilTable.Cost("anthropic", "x", 1, 1) != 0 {
		t.Error("expected 0 for nil table")
	}
}
