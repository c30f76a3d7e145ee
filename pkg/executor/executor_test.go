package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedRunner struct {
	output string
	err    error
	config Config
}

func (r *scriptedRunner) Run(_ context.Context, _ string) error {
	if r.output != "" {
		_, _ = r.config.Output.Write([]byte(r.output))
	}

	return r.err
}

func newScriptedExecutor(t *testing.T, output string, err error) (*Executor, *scriptedRunner) {
	t.Helper()

	runner := &scriptedRunner{output: output, err: err}
	exec := NewExecutor(t.TempDir(), Options{ServiceURL: "http://127.0.0.1:7860"}, func(config Config) Runner {
		runner.config = config

		return runner
	})

	return exec, runner
}

func TestExecute_SuccessWithoutImages(t *testing.T) {
	exec, _ := newScriptedExecutor(t, "working\n", nil)

	result := exec.Execute(context.Background(), "toolcall tool name=a1111_txt2img id=images", "My Run", Options{}, nil)

	require.True(t, result.Success)
	assert.Empty(t, result.Error)
	assert.DirExists(t, result.RunDir)
	assert.Contains(t, filepath.Base(result.RunDir), "my-run")

	require.Len(t, result.LogLines, 3)
	assert.Equal(t, "run_dir="+result.RunDir, result.LogLines[0])
	assert.Equal(t, "working", result.LogLines[1])
	assert.Equal(t, "No PNG artifacts generated.", result.LogLines[2])
}

func TestExecute_FailureCapturesTrailingOutputAndErrorLine(t *testing.T) {
	exec, _ := newScriptedExecutor(t, "a\nb\npartial", errors.New("backend exploded"))

	var streamed []string

	result := exec.Execute(context.Background(), "text", "run", Options{}, func(line string) {
		streamed = append(streamed, line)
	})

	assert.False(t, result.Success)
	assert.Equal(t, "backend exploded", result.Error)

	require.Len(t, result.LogLines, 5)
	assert.Equal(t, "a", result.LogLines[1])
	assert.Equal(t, "b", result.LogLines[2])
	assert.Equal(t, "partial", result.LogLines[3], "partial output must be flushed before the error line")
	assert.Equal(t, "ERROR: backend exploded", result.LogLines[4])

	assert.Equal(t, result.LogLines, streamed, "onLog must see every recorded line")
}

func TestExecute_CollectsSortedPNGs(t *testing.T) {
	runner := &scriptedRunner{}
	exec := NewExecutor(t.TempDir(), Options{}, func(config Config) Runner {
		runner.config = config

		return runner
	})

	runner.output = ""
	runner.err = nil

	// Drop artifacts into the run dir the way a real runner would.
	exec.newRunner = func(config Config) Runner {
		for _, name := range []string{"002.png", "000.png", "001.png", "notes.txt"} {
			require.NoError(t, os.WriteFile(filepath.Join(config.ArtifactsDir, name), []byte("x"), 0o600))
		}
		runner.config = config

		return runner
	}

	result := exec.Execute(context.Background(), "text", "pngs", Options{}, nil)

	require.True(t, result.Success)
	require.Len(t, result.ImagePaths, 3)

	for i, path := range result.ImagePaths {
		assert.Equal(t, fmt.Sprintf("%03d.png", i), filepath.Base(path))
	}

	assert.NotContains(t, result.LogLines, "No PNG artifacts generated.")
}

func TestExecute_RunDirsAreUniquePerRun(t *testing.T) {
	exec, _ := newScriptedExecutor(t, "", nil)

	seen := map[string]bool{}

	for range 3 {
		result := exec.Execute(context.Background(), "text", "same name", Options{}, nil)
		require.True(t, result.Success)
		assert.False(t, seen[result.RunDir], "run dir %s reused", result.RunDir)
		seen[result.RunDir] = true
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "spaces and case", in: "My Cool Run", want: "my-cool-run"},
		{name: "punctuation collapsed", in: "a//b??c", want: "a-b-c"},
		{name: "edges trimmed", in: "  !wrapped!  ", want: "wrapped"},
		{name: "keeps underscores", in: "snake_case", want: "snake_case"},
		{name: "empty falls back", in: "!!!", want: "workflow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}
