package skill

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CommandsDir is where the agent discovers project commands.
const CommandsDir = ".claude/commands"

// Artifact is a command file created for a single invocation. The caller
// owns it and must Remove it on every exit path.
type Artifact struct {
	Name string
	Path string
}

// CommandName builds the invocation-unique command name. The agent
// mentions it when selecting the command, which is what the detector
// looks for.
func CommandName(skillName, id string) string {
	return fmt.Sprintf("%s-skill-%s", skillName, id)
}

// RenderCommand renders the command file. The description goes in a
// block scalar so quotes and colons in it cannot break the frontmatter.
func RenderCommand(skillName, description string) string {
	indented := strings.ReplaceAll(description, "\n", "\n  ")
	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("description: |\n")
	b.WriteString("  " + indented + "\n")
	b.WriteString("---\n\n")
	b.WriteString("# " + skillName + "\n\n")
	b.WriteString("This skill handles: " + description + "\n")
	return b.String()
}

// WriteCommand creates projectRoot/.claude/commands/<name>.md.
func WriteCommand(projectRoot, name, skillName, description string) (*Artifact, error) {
	dir := filepath.Join(projectRoot, CommandsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating commands dir: %w", err)
	}
	path := filepath.Join(dir, name+".md")
	if err := os.WriteFile(path, []byte(RenderCommand(skillName, description)), 0o644); err != nil {
		return nil, fmt.Errorf("writing command file: %w", err)
	}
	return &Artifact{Name: name, Path: path}, nil
}

// Remove deletes the command file. Removing an already-removed artifact
// is not an error.
func (a *Artifact) Remove() error {
	if a == nil {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing command file: %w", err)
	}
	return nil
}
