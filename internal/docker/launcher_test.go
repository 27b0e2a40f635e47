package docker

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/skilltune/internal/launch"
)

func TestContainerEnvForwardsOnlyAgentKeys(t *testing.T) {
	l := &Launcher{Env: map[string]string{"EXTRA": "1"}}
	got := l.containerEnv([]string{
		"PATH=/usr/bin",
		"HOME=/home/me",
		"ANTHROPIC_API_KEY=sk-test",
		"CLAUDE_CONFIG_DIR=/cfg",
	})
	assert.ElementsMatch(t, []string{
		"ANTHROPIC_API_KEY=sk-test",
		"CLAUDE_CONFIG_DIR=/cfg",
		"EXTRA=1",
	}, got)
}

func TestContainerEnvCustomForward(t *testing.T) {
	l := &Launcher{Forward: []string{"MY_"}}
	got := l.containerEnv([]string{"MY_TOKEN=x", "ANTHROPIC_API_KEY=y"})
	assert.Equal(t, []string{"MY_TOKEN=x"}, got)
}

func TestLaunchRequiresImage(t *testing.T) {
	_, err := (&Launcher{}).Launch(context.Background(), launch.Spec{Argv: []string{"claude"}})
	assert.Error(t, err)
}

func TestLaunchStreamsOutput(t *testing.T) {
	if os.Getenv("SKILLTUNE_DOCKER_TESTS") == "" {
		t.Skip("set SKILLTUNE_DOCKER_TESTS=1 to run Docker tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	l := &Launcher{Image: "alpine:latest"}
	p, err := l.Launch(ctx, launch.Spec{
		Argv: []string{"sh", "-c", `echo '{"type":"result"}'`},
		Dir:  t.TempDir(),
	})
	require.NoError(t, err)

	out, _ := io.ReadAll(p.Stdout())
	require.NoError(t, p.Kill())
	_ = p.Wait()
	assert.Contains(t, string(out), `{"type":"result"}`)
}
