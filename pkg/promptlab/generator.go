// Package promptlab asks a local language model for an image prompt matching
// a theme, validates the output against a schema, and renders it as a
// runnable workflow.
package promptlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/imagechoom/imagechoom/pkg/log"
	"github.com/imagechoom/imagechoom/pkg/models"
)

const systemPrompt = `You write Stable Diffusion prompts. Respond with a single JSON object:
{"positive": "...", "negative": "...", "style_tags": ["..."], "sd_params": {"width": 1024, "height": 1024, "steps": 30, "cfg": 7, "sampler": "Euler a", "seed": -1, "n": 1}}
Every field except sampler is required and "positive" must not be blank. Return JSON only, no prose.`

const repairPrompt = "Repair this output to match the JSON schema exactly. Return JSON only."

type Generator struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Result pairs the validated prompt with the raw model output that produced
// it, so the run record can preserve what the model actually said.
type Result struct {
	Spec models.PromptSpec
	Raw  string
}

func NewGenerator(baseURL string) *Generator {
	return &Generator{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		logger:  log.WithModule("promptlab"),
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system,omitempty"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate produces a validated prompt for config. Invalid model output gets
// exactly one repair round trip; a second failure returns a ValidationError.
func (g *Generator) Generate(ctx context.Context, config models.PromptLabConfig) (*Result, error) {
	timeout := time.Duration(config.TimeoutS) * time.Second
	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	raw, err := g.complete(ctx, config, g.userPrompt(config))
	if err != nil {
		return nil, fmt.Errorf("prompt generation request: %w", err)
	}

	issues := validateSpec(raw)
	if len(issues) == 0 {
		return parseResult(raw)
	}

	g.logger.WarnContext(ctx, "Model output failed validation, attempting repair",
		"model", config.Model, "issues", strings.Join(issues, "; "))

	repaired, err := g.complete(ctx, config, repairPrompt+"\n\n"+raw)
	if err != nil {
		return nil, fmt.Errorf("prompt repair request: %w", err)
	}

	issues = validateSpec(repaired)
	if len(issues) != 0 {
		return nil, &ValidationError{Issues: issues, Output: repaired}
	}

	return parseResult(repaired)
}

func (g *Generator) userPrompt(config models.PromptLabConfig) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Theme: %s\n", config.Theme)
	fmt.Fprintf(&b, "Creativity: %.2f (0 = literal, 1 = wildly interpretive)\n", config.Creativity)

	if len(config.Preset) > 0 {
		presetJSON, err := json.Marshal(config.Preset)
		if err == nil {
			fmt.Fprintf(&b, "Style preset %q: %s\n", config.PresetName, presetJSON)
		}
	}

	b.WriteString("Write the prompt JSON now.")

	return b.String()
}

func (g *Generator) complete(ctx context.Context, config models.PromptLabConfig, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:   config.Model,
		System:  systemPrompt,
		Prompt:  prompt,
		Stream:  false,
		Format:  "json",
		Options: map[string]any{"temperature": config.Creativity},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return "", fmt.Errorf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var response generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decoding ollama response: %w", err)
	}

	return strings.TrimSpace(response.Response), nil
}

// validateSpec checks raw model output against the prompt schema and returns
// human-readable issues, empty when the output is valid.
func validateSpec(raw string) []string {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(promptSpecSchema),
		gojsonschema.NewStringLoader(raw),
	)
	if err != nil {
		return []string{"output is not valid JSON: " + err.Error()}
	}

	if result.Valid() {
		return nil
	}

	issues := make([]string, 0, len(result.Errors()))
	for _, issue := range result.Errors() {
		issues = append(issues, issue.String())
	}

	return issues
}

func parseResult(raw string) (*Result, error) {
	var spec models.PromptSpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return nil, fmt.Errorf("parsing validated prompt: %w", err)
	}

	spec.Positive = strings.TrimSpace(spec.Positive)
	spec.Negative = strings.TrimSpace(spec.Negative)

	tags := spec.StyleTags[:0]

	for _, tag := range spec.StyleTags {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}

	spec.StyleTags = tags

	return &Result{Spec: spec, Raw: raw}, nil
}
