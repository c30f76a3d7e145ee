package settings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileWritesDefaults(t *testing.T) {
	root := t.TempDir()

	loaded := Load(context.Background(), root)

	assert.Equal(t, Defaults(root), loaded)
	assert.FileExists(t, filepath.Join(root, settingsFileName))
}

func TestLoad_MalformedFileFallsBackToDefaults(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, settingsFileName), []byte("{{{"), 0o600))

	loaded := Load(context.Background(), root)

	assert.Equal(t, Defaults(root), loaded)
}

func TestLoad_PartialFileKeepsDefaultsForMissingFields(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, settingsFileName),
		[]byte(`{"a1111_url": "http://gpu-box:7860"}`), 0o600))

	loaded := Load(context.Background(), root)

	assert.Equal(t, "http://gpu-box:7860", loaded.A1111URL)
	assert.Equal(t, 180, loaded.A1111TimeoutS)
	assert.Equal(t, filepath.Join(root, "outputs_gui"), loaded.OutputsRoot)
}

func TestLoad_InvalidFieldsClampedAndSavedBack(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, settingsFileName),
		[]byte(`{"a1111_url": "not a url", "a1111_timeout_s": 0, "outputs_root": "/tmp/out"}`), 0o600))

	loaded := Load(context.Background(), root)

	defaults := Defaults(root)
	assert.Equal(t, defaults.A1111URL, loaded.A1111URL)
	assert.Equal(t, defaults.A1111TimeoutS, loaded.A1111TimeoutS)
	assert.Equal(t, "/tmp/out", loaded.OutputsRoot, "valid fields survive clamping")

	body, err := os.ReadFile(filepath.Join(root, settingsFileName))
	require.NoError(t, err)

	var persisted Settings
	require.NoError(t, json.Unmarshal(body, &persisted))
	assert.Equal(t, loaded, persisted, "clamped settings are written back")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	root := t.TempDir()

	wanted := Settings{
		A1111URL:        "http://gpu-box:7860",
		A1111TimeoutS:   300,
		CancelOnTimeout: true,
		OutputsRoot:     "/data/outputs",
	}
	require.NoError(t, Save(root, wanted))

	assert.Equal(t, wanted, Load(context.Background(), root))
}

func TestResolveRootFrom(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "workflows"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "presets"), 0o750))

	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o750))

	found, err := resolveRootFrom(nested)
	require.NoError(t, err)
	assert.Equal(t, root, found)
}

func TestResolveRootFrom_NotFound(t *testing.T) {
	_, err := resolveRootFrom(t.TempDir())

	assert.ErrorIs(t, err, ErrRootNotFound)
}

func TestResolveRoot_EnvOverrideWins(t *testing.T) {
	override := t.TempDir()
	t.Setenv(RootEnvVar, override)

	found, err := ResolveRoot()

	require.NoError(t, err)
	assert.Equal(t, override, found)
}

func TestCheckHealth(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sdapi/v1/samplers", r.URL.Path)
		_, _ = w.Write([]byte(`[{"name": "Euler a"}, {"name": "DPM++ 2M"}]`))
	}))
	defer healthy.Close()

	ok, detail := CheckHealth(context.Background(), healthy.URL, 2*time.Second)
	assert.True(t, ok)
	assert.Equal(t, "ok (2 samplers)", detail)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "loading model, please wait, this can take a very long time on first start", http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	ok, detail = CheckHealth(context.Background(), failing.URL, 2*time.Second)
	assert.False(t, ok)
	assert.LessOrEqual(t, len(detail), healthSnippetLimit+3, "detail is truncated to a snippet")
	assert.Contains(t, detail, "503")

	ok, detail = CheckHealth(context.Background(), "http://127.0.0.1:1", 500*time.Millisecond)
	assert.False(t, ok)
	assert.NotEmpty(t, detail)
}

func TestLoadPresets(t *testing.T) {
	root := t.TempDir()
	presetsDir := filepath.Join(root, "presets")
	require.NoError(t, os.MkdirAll(presetsDir, 0o750))

	require.NoError(t, os.WriteFile(filepath.Join(presetsDir, "cinematic.json"),
		[]byte(`{"lighting": "volumetric", "lens": "35mm"}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(presetsDir, "broken.json"),
		[]byte("{{{"), 0o600))

	presets := LoadPresets(context.Background(), root)

	require.Contains(t, presets, "cinematic")
	assert.Equal(t, "volumetric", presets["cinematic"]["lighting"])
	assert.NotContains(t, presets, "broken")
	assert.Contains(t, presets, "default", "default preset is always available")
}

func TestLoadPresets_WithoutPresetsDir(t *testing.T) {
	presets := LoadPresets(context.Background(), t.TempDir())

	assert.Equal(t, map[string]map[string]any{"default": {}}, presets)
}
