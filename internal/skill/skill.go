// Package skill reads a skill's SKILL.md descriptor and writes the
// transient command files that make a description selectable by the agent.
package skill

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DescriptorFile is the descriptor every skill directory must contain.
const DescriptorFile = "SKILL.md"

var (
	ErrNoDescriptor  = errors.New("no " + DescriptorFile + " found")
	ErrNoFrontmatter = errors.New(DescriptorFile + " missing frontmatter")
)

type Skill struct {
	Name        string
	Description string
	// Content is the whole descriptor, frontmatter included. It is shown
	// to the rewriting model as context.
	Content string
	Path    string
}

type frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Parse loads dir/SKILL.md. A missing descriptor wraps ErrNoDescriptor.
func Parse(dir string) (*Skill, error) {
	path := filepath.Join(dir, DescriptorFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", dir, ErrNoDescriptor)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	fm, err := splitFrontmatter(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var meta frontmatter
	if err := yaml.Unmarshal([]byte(fm), &meta); err != nil {
		return nil, fmt.Errorf("parsing frontmatter of %s: %w", path, err)
	}
	name := strings.TrimSpace(meta.Name)
	if name == "" {
		name = filepath.Base(dir)
	}
	return &Skill{
		Name:        name,
		Description: strings.TrimSpace(meta.Description),
		Content:     string(data),
		Path:        dir,
	}, nil
}

func splitFrontmatter(content string) (string, error) {
	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	if !sc.Scan() || strings.TrimSpace(sc.Text()) != "---" {
		return "", fmt.Errorf("%w (no opening ---)", ErrNoFrontmatter)
	}
	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "---" {
			return strings.Join(lines, "\n"), nil
		}
		lines = append(lines, line)
	}
	return "", fmt.Errorf("%w (no closing ---)", ErrNoFrontmatter)
}
