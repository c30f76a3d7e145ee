package models

// SDParams are the txt2img parameters carried by a generated prompt spec.
type SDParams struct {
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	Steps   int     `json:"steps"`
	CFG     float64 `json:"cfg"`
	Sampler string  `json:"sampler"`
	Seed    int64   `json:"seed"`
	N       int     `json:"n"`
}

// PromptSpec is a validated prompt specification returned by the
// text-generation service.
type PromptSpec struct {
	Positive  string   `json:"positive"`
	Negative  string   `json:"negative"`
	StyleTags []string `json:"style_tags"`
	SDParams  SDParams `json:"sd_params"`
}
