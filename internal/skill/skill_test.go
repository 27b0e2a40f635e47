package skill_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/skilltune/internal/skill"
)

func writeSkill(t *testing.T, content string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "pdf-tools")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, skill.DescriptorFile), []byte(content), 0o644))
	return dir
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantName string
		wantDesc string
	}{
		{
			name:     "plain",
			content:  "---\nname: pdf\ndescription: Fill PDF forms\n---\n\n# PDF\n",
			wantName: "pdf",
			wantDesc: "Fill PDF forms",
		},
		{
			name:     "quoted",
			content:  "---\nname: \"pdf\"\ndescription: 'Use for: forms, \"fields\"'\n---\n",
			wantName: "pdf",
			wantDesc: `Use for: forms, "fields"`,
		},
		{
			name:     "folded block",
			content:  "---\nname: pdf\ndescription: >\n  Fill forms\n  and merge pages\n---\nbody\n",
			wantName: "pdf",
			wantDesc: "Fill forms and merge pages",
		},
		{
			name:     "name defaults to directory",
			content:  "---\ndescription: x\n---\n",
			wantName: "pdf-tools",
			wantDesc: "x",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := skill.Parse(writeSkill(t, tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, s.Name)
			assert.Equal(t, tt.wantDesc, s.Description)
			assert.Equal(t, tt.content, s.Content)
		})
	}
}

func TestParseErrors(t *testing.T) {
	_, err := skill.Parse(t.TempDir())
	assert.ErrorIs(t, err, skill.ErrNoDescriptor)

	_, err = skill.Parse(writeSkill(t, "# no frontmatter\n"))
	assert.ErrorIs(t, err, skill.ErrNoFrontmatter)

	_, err = skill.Parse(writeSkill(t, "---\nname: pdf\n"))
	assert.ErrorIs(t, err, skill.ErrNoFrontmatter)
}

func TestRenderCommandIsValidFrontmatter(t *testing.T) {
	desc := "Use this for PDFs: \"forms\", merging.\nAlso splitting."
	out := skill.RenderCommand("pdf", desc)

	dir := writeSkill(t, out)
	s, err := skill.Parse(dir)
	require.NoError(t, err)
	assert.Equal(t, desc, s.Description)
	assert.Contains(t, out, "# pdf\n\nThis skill handles: "+desc)
}

func TestWriteAndRemoveCommand(t *testing.T) {
	root := t.TempDir()
	name := skill.CommandName("pdf", "deadbeef")
	assert.Equal(t, "pdf-skill-deadbeef", name)

	art, err := skill.WriteCommand(root, name, "pdf", "Fill forms")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ".claude", "commands", "pdf-skill-deadbeef.md"), art.Path)
	assert.FileExists(t, art.Path)

	require.NoError(t, art.Remove())
	assert.NoFileExists(t, art.Path)
	assert.NoError(t, art.Remove(), "second remove is a no-op")
}
