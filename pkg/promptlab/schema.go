package promptlab

// promptSpecSchema is the contract the language model's output must satisfy
// before a generated prompt is allowed to reach the image backend. Every
// field except sampler is mandatory; a missing field means the model did not
// follow instructions and gets the repair round trip. The positive prompt
// must contain at least one non-whitespace character.
const promptSpecSchema = `{
  "type": "object",
  "required": ["positive", "negative", "style_tags", "sd_params"],
  "properties": {
    "positive": {"type": "string", "minLength": 1, "pattern": "\\S"},
    "negative": {"type": "string"},
    "style_tags": {
      "type": "array",
      "items": {"type": "string"}
    },
    "sd_params": {
      "type": "object",
      "required": ["width", "height", "steps", "cfg", "seed", "n"],
      "properties": {
        "width": {"type": "integer"},
        "height": {"type": "integer"},
        "steps": {"type": "integer"},
        "cfg": {"type": "number"},
        "sampler": {"type": "string"},
        "seed": {"type": "integer"},
        "n": {"type": "integer"}
      }
    }
  }
}`
