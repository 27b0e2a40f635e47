package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/signalnine/skilltune/internal/logging"
	"github.com/signalnine/skilltune/internal/report"
	"github.com/signalnine/skilltune/internal/result"
)

var (
	flagFormat        string
	flagOutput        string
	flagSkillName     string
	flagBenchSkill    string
	flagExecutorModel string
)

func newBenchmarkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "benchmark <benchmark-dir>",
		Short: "Aggregate graded runs into benchmark.json and benchmark.md",
		Args:  cobra.ExactArgs(1),
		RunE:  runBenchmarkCmd,
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	cmd.Flags().StringVar(&flagOutput, "output", "", "benchmark.json path (default <benchmark-dir>/benchmark.json)")
	cmd.Flags().StringVar(&flagSkillName, "skill-name", "", "skill name recorded in the metadata")
	cmd.Flags().StringVar(&flagBenchSkill, "skill-path", "", "skill path recorded in the metadata")
	cmd.Flags().StringVar(&flagExecutorModel, "executor-model", "", "executor model recorded in the metadata")
	return cmd
}

func runBenchmarkCmd(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	dir := args[0]
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return fmt.Errorf("resolving benchmark dir: %w", err)
	}

	b, err := report.Build(resolved, report.Options{
		SkillName:     flagSkillName,
		SkillPath:     flagBenchSkill,
		ExecutorModel: flagExecutorModel,
		Logger:        logging.New("benchmark"),
	})
	if err != nil {
		return err
	}

	jsonPath := flagOutput
	if jsonPath == "" {
		jsonPath = filepath.Join(resolved, "benchmark.json")
	}
	if err := result.WriteJSON(jsonPath, b); err != nil {
		return err
	}
	mdPath := strings.TrimSuffix(jsonPath, filepath.Ext(jsonPath)) + ".md"
	if err := writeMarkdownFile(mdPath, b); err != nil {
		return err
	}
	logging.New("benchmark").Info("wrote benchmark", "json", jsonPath, "markdown", mdPath)

	return report.Write(b, flagFormat, cmd.OutOrStdout())
}

func writeMarkdownFile(path string, b *report.Benchmark) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := report.WriteMarkdown(b, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
