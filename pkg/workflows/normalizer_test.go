package workflows

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_CanonicalPassThrough(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{
			name: "single tool call line",
			text: `toolcall tool name=a1111_txt2img id=images prompt="x" width=512`,
		},
		{
			name: "indented tool call with surrounding lines",
			text: "# header\n  toolcall tool name=a1111_txt2img id=images prompt=\"x\"\n# footer\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			normalized := Normalize(tt.text, "")

			assert.Equal(t, tt.text, normalized.NormalizedText)
			assert.Empty(t, normalized.Warnings)
		})
	}
}

func TestNormalize_IsIdempotent(t *testing.T) {
	legacy := `set payload = {"prompt": "a cat"}`

	once := Normalize(legacy, "")
	twice := Normalize(once.NormalizedText, "")

	assert.Equal(t, once.NormalizedText, twice.NormalizedText)
	assert.Empty(t, twice.Warnings)
}

func TestNormalize_LegacyPayloadFields(t *testing.T) {
	text := `set payload = {"prompt":"cat","width":512,"height":512,"steps":20,` +
		`"cfg_scale":5,"seed":123,"batch_size":2,"sampler_name":"DPM++"}`

	normalized := Normalize(text, "")

	want := `toolcall tool name=a1111_txt2img id=images ` +
		`prompt="cat" negative="" width=512 height=512 steps=20 cfg=5 seed=123 n=2 sampler="DPM++"`
	assert.Equal(t, want, normalized.NormalizedText)
	assert.Empty(t, normalized.Warnings)
}

func TestNormalize_AppliesDefaults(t *testing.T) {
	normalized := Normalize(`set payload = {}`, "")

	want := `toolcall tool name=a1111_txt2img id=images ` +
		`prompt="" negative="" width=1024 height=1024 steps=30 cfg=7 seed=-1 n=1 sampler="Euler a"`
	assert.Equal(t, want, normalized.NormalizedText)
}

func TestNormalize_QuotesAreEscaped(t *testing.T) {
	normalized := Normalize(`set payload = {"prompt": "say \"hi\""}`, "")

	assert.Contains(t, normalized.NormalizedText, `prompt="say \"hi\""`)
}

func TestNormalize_OutputFileWarning(t *testing.T) {
	text := "set payload = {\"prompt\": \"x\"}\nset output_file = \"result.png\"\n"

	normalized := Normalize(text, "")

	assert.Contains(t, normalized.Warnings, WarnOutputFileIgnored)
}

func TestNormalize_CheckpointPreservedAsComment(t *testing.T) {
	text := `set payload = {"prompt":"x","override_settings":{"sd_model_checkpoint":"v1.ckpt"}}`

	normalized := Normalize(text, "")

	lines := strings.Split(normalized.NormalizedText, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "# legacy sd_model_checkpoint=v1.ckpt", lines[1])
	assert.Contains(t, normalized.Warnings, WarnCheckpointPreserved)
}

func TestNormalize_MalformedLegacyFallsBackToDefaults(t *testing.T) {
	normalized := Normalize("set payload = {broken\n", "")

	assert.True(t, strings.HasPrefix(normalized.NormalizedText, ToolCallPrefix))
	assert.Contains(t, normalized.NormalizedText, `prompt=""`)
}
