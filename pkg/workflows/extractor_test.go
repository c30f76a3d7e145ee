package workflows

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPayload_InlineLiteral(t *testing.T) {
	text := `# legacy workflow
set payload = {"prompt": "a cat", "width": 512, "loop": true, "extra": null}
set output_file = "out.png"
`

	payload := ExtractPayload(text, "")

	assert.Equal(t, "a cat", payload["prompt"])
	assert.InEpsilon(t, 512.0, payload["width"], 0.0001)
	assert.Equal(t, true, payload["loop"])
	assert.Contains(t, payload, "extra")
	assert.Nil(t, payload["extra"])
}

func TestExtractPayload_MultilineLiteralWithBracesInStrings(t *testing.T) {
	text := "set payload = {\n" +
		"  \"prompt\": \"curly {braces} and a quote \\\" inside\",\n" +
		"  \"steps\": 20\n" +
		"}\n"

	payload := ExtractPayload(text, "")

	assert.Equal(t, `curly {braces} and a quote " inside`, payload["prompt"])
	assert.InEpsilon(t, 20.0, payload["steps"], 0.0001)
}

func TestExtractPayload_ThemesIndirection(t *testing.T) {
	baseDir := t.TempDir()
	themesPath := filepath.Join(baseDir, "themes.json")
	require.NoError(t, os.WriteFile(themesPath, []byte(`{
		"noir": {"prompt": "rainy alley", "steps": 25},
		"broken": "not an object"
	}`), 0o600))

	tests := []struct {
		name string
		text string
		want map[string]any
	}{
		{
			name: "resolves named theme",
			text: "set input_config = \"themes.json\"\nset payload = themes.noir\n",
			want: map[string]any{"prompt": "rainy alley", "steps": 25.0},
		},
		{
			name: "theme value not an object",
			text: "set input_config = \"themes.json\"\nset payload = themes.broken\n",
			want: map[string]any{},
		},
		{
			name: "unknown theme name",
			text: "set input_config = \"themes.json\"\nset payload = themes.missing\n",
			want: map[string]any{},
		},
		{
			name: "missing input_config assignment",
			text: "set payload = themes.noir\n",
			want: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPayload(tt.text, baseDir))
		})
	}
}

func TestExtractPayload_FailsSoft(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "no payload assignment", text: "set other = 1\n"},
		{name: "malformed literal", text: "set payload = {\"prompt\": oops}\n"},
		{name: "unbalanced braces", text: "set payload = {\"prompt\": \"x\"\n"},
		{name: "themes file missing", text: "set input_config = \"nope.json\"\nset payload = themes.x\n"},
		{name: "empty text", text: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, ExtractPayload(tt.text, t.TempDir()))
		})
	}
}

func TestModelCheckpoint(t *testing.T) {
	payload := map[string]any{
		"override_settings": map[string]any{"sd_model_checkpoint": "v1.ckpt"},
	}
	assert.Equal(t, "v1.ckpt", ModelCheckpoint(payload))

	assert.Empty(t, ModelCheckpoint(map[string]any{}))
	assert.Empty(t, ModelCheckpoint(map[string]any{"override_settings": "nope"}))
	assert.Empty(t, ModelCheckpoint(map[string]any{
		"override_settings": map[string]any{"sd_model_checkpoint": ""},
	}))
}

func TestExtractBracedBlock_UsesFirstPayloadAssignmentOnly(t *testing.T) {
	text := "set payload = {\"a\": 1}\nset payload = {\"b\": 2}\n"

	payload := ExtractPayload(text, "")

	assert.Contains(t, payload, "a")
	assert.NotContains(t, payload, "b")
}
