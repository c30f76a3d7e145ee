package promptlab

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/imagechoom/imagechoom/pkg/models"
	"github.com/imagechoom/imagechoom/pkg/workflows"
)

// ToToolcall renders a generated prompt as a canonical workflow. Style tags
// are appended to the positive prompt, and unset generation parameters fall
// back to the standard defaults. A zero seed is treated as unset and rendered
// as -1.
func ToToolcall(spec models.PromptSpec) string {
	positive := spec.Positive
	if len(spec.StyleTags) > 0 {
		positive = positive + ", " + strings.Join(spec.StyleTags, ", ")
	}

	params := spec.SDParams

	seed := params.Seed
	if seed == 0 {
		seed = workflows.DefaultSeed
	}

	return fmt.Sprintf(
		"toolcall tool name=a1111_txt2img id=images "+
			"prompt=%s negative=%s width=%d height=%d steps=%d cfg=%s seed=%d n=%d sampler=%s",
		workflows.Quote(positive),
		workflows.Quote(spec.Negative),
		intOr(params.Width, workflows.DefaultWidth),
		intOr(params.Height, workflows.DefaultHeight),
		intOr(params.Steps, workflows.DefaultSteps),
		strconv.FormatFloat(floatOr(params.CFG, workflows.DefaultCFGScale), 'f', -1, 64),
		seed,
		intOr(params.N, workflows.DefaultBatchSize),
		workflows.Quote(stringOr(params.Sampler, workflows.DefaultSampler)),
	)
}

func intOr(value, fallback int) int {
	if value > 0 {
		return value
	}

	return fallback
}

func floatOr(value, fallback float64) float64 {
	if value > 0 {
		return value
	}

	return fallback
}

func stringOr(value, fallback string) string {
	if value != "" {
		return value
	}

	return fallback
}
