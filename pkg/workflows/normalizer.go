package workflows

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/imagechoom/imagechoom/pkg/models"
)

// ToolCallPrefix identifies a canonical v1 line after leading whitespace.
const ToolCallPrefix = "toolcall tool"

// Warnings emitted by Normalize for legacy information that cannot be carried
// into the canonical form.
const (
	WarnOutputFileIgnored   = "legacy output_file ignored; using artifacts_dir outputs"
	WarnCheckpointPreserved = "legacy override_settings.sd_model_checkpoint preserved as comment"
)

// Generation defaults applied when a payload or tool call omits a field.
const (
	DefaultWidth     = 1024
	DefaultHeight    = 1024
	DefaultSteps     = 30
	DefaultCFGScale  = 7
	DefaultSeed      = -1
	DefaultBatchSize = 1
	DefaultSampler   = "Euler a"
)

// LooksLikeV1 reports whether any line of text starts with the canonical
// tool-call prefix. Detection is line-based, not a parse.
func LooksLikeV1(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), ToolCallPrefix) {
			return true
		}
	}

	return false
}

// Normalize converts a workflow source into its runner-ready form. Canonical
// input passes through unchanged with no warnings; legacy input is reduced to
// a single tool-call line with defaults filled in. baseDir resolves relative
// themes references.
func Normalize(text string, baseDir string) models.NormalizedWorkflow {
	if LooksLikeV1(text) {
		return models.NormalizedWorkflow{NormalizedText: text, Warnings: []string{}}
	}

	warnings := []string{}
	if strings.Contains(text, "output_file") {
		warnings = append(warnings, WarnOutputFileIgnored)
	}

	payload := ExtractPayload(text, baseDir)
	if ModelCheckpoint(payload) != "" {
		warnings = append(warnings, WarnCheckpointPreserved)
	}

	return models.NormalizedWorkflow{
		NormalizedText: LegacyToToolCall(text, baseDir),
		Warnings:       warnings,
	}
}

// NormalizeFile normalizes the workflow at path. The base directory for
// themes indirection is the directory above the workflows folder, matching
// the layout DiscoverWorkflows scans.
func NormalizeFile(path string) (models.NormalizedWorkflow, error) {
	text, err := ReadWorkflowText(path)
	if err != nil {
		return models.NormalizedWorkflow{}, err
	}

	return Normalize(text, baseDirFor(path)), nil
}

// LegacyToToolCall renders the extracted legacy payload as one canonical
// tool-call line. A model checkpoint override, when present, is appended as a
// trailing comment line since the canonical form has no field for it.
func LegacyToToolCall(text string, baseDir string) string {
	payload := ExtractPayload(text, baseDir)

	line := fmt.Sprintf(
		"toolcall tool name=a1111_txt2img id=images "+
			"prompt=%s negative=%s width=%s height=%s steps=%s cfg=%s seed=%s n=%s sampler=%s",
		Quote(stringField(payload, "prompt", "")),
		Quote(stringField(payload, "negative_prompt", "")),
		numberField(payload, "width", DefaultWidth),
		numberField(payload, "height", DefaultHeight),
		numberField(payload, "steps", DefaultSteps),
		numberField(payload, "cfg_scale", DefaultCFGScale),
		numberField(payload, "seed", DefaultSeed),
		numberField(payload, "batch_size", DefaultBatchSize),
		Quote(stringField(payload, "sampler_name", DefaultSampler)),
	)

	if checkpoint := ModelCheckpoint(payload); checkpoint != "" {
		line += "\n# legacy sd_model_checkpoint=" + checkpoint
	}

	return line
}

// Quote wraps a string field value in double quotes, backslash-escaping any
// internal quotes.
func Quote(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `\"`) + `"`
}

func stringField(payload map[string]any, key, fallback string) string {
	value, ok := payload[key]
	if !ok {
		return fallback
	}

	if s, ok := value.(string); ok {
		return s
	}

	return fmt.Sprintf("%v", value)
}

// numberField formats a numeric payload field without a trailing fraction for
// integral values, so a JSON 7 or 7.0 both render as "7".
func numberField(payload map[string]any, key string, fallback float64) string {
	number := fallback

	if value, ok := payload[key]; ok {
		if f, ok := value.(float64); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
			number = f
		}
	}

	return strconv.FormatFloat(number, 'f', -1, 64)
}
