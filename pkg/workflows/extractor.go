// Package workflows provides workflow discovery and legacy-to-v1
// normalization for ChoomLang sources.
package workflows

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var setStatementRe = regexp.MustCompile(`(?m)^[ \t]*set[ \t]+(\w+)[ \t]*=[ \t]*(.+)$`)

// ExtractPayload locates the first `set payload = <rhs>` assignment and
// resolves it into a field mapping. The rhs is either an inline brace-delimited
// object literal (possibly spanning lines) or a `themes.<name>` reference into
// the JSON file named by `set input_config = "<path>"`. Every failure mode
// (missing assignment, malformed literal, unreadable themes file, missing key)
// yields an empty mapping, never an error.
func ExtractPayload(text string, baseDir string) map[string]any {
	rhs, start := extractSetRHS(text, "payload")
	if start < 0 {
		return map[string]any{}
	}

	rhs = strings.TrimSpace(rhs)
	if strings.HasPrefix(rhs, "{") {
		return parseLooseObject(extractBracedBlock(text, start))
	}

	if name, ok := strings.CutPrefix(rhs, "themes."); ok {
		themes := resolveThemesConfig(text, baseDir)

		payload, ok := themes[name].(map[string]any)
		if ok {
			return payload
		}
	}

	return map[string]any{}
}

// ModelCheckpoint returns the legacy override_settings.sd_model_checkpoint
// field, or "" when absent. The value cannot be expressed in canonical form
// and is preserved only as a trailing comment by the normalizer.
func ModelCheckpoint(payload map[string]any) string {
	overrides, ok := payload["override_settings"].(map[string]any)
	if !ok {
		return ""
	}

	checkpoint := overrides["sd_model_checkpoint"]
	if checkpoint == nil || checkpoint == "" {
		return ""
	}

	return fmt.Sprintf("%v", checkpoint)
}

// extractSetRHS finds the first `set <variable> = <rhs>` line and returns the
// rhs text together with its absolute byte offset in text, or ("", -1) when
// there is no such assignment. Multi-line brace literals are handled by the
// caller via the offset.
func extractSetRHS(text, variable string) (string, int) {
	for _, match := range setStatementRe.FindAllStringSubmatchIndex(text, -1) {
		name := text[match[2]:match[3]]
		if name != variable {
			continue
		}

		return text[match[4]:match[5]], match[4]
	}

	return "", -1
}

// extractBracedBlock isolates the balanced brace block starting at startIndex.
// Braces inside double-quoted strings do not count toward the depth, and
// backslash escapes within strings are honored. An unbalanced block yields
// "{}" so the caller's parse fails soft.
func extractBracedBlock(text string, startIndex int) string {
	const (
		stateNormal = iota
		stateInString
		stateInStringEscaped
	)

	depth := 0
	state := stateNormal

	for i := startIndex; i < len(text); i++ {
		ch := text[i]

		switch state {
		case stateInStringEscaped:
			state = stateInString
		case stateInString:
			switch ch {
			case '\\':
				state = stateInStringEscaped
			case '"':
				state = stateNormal
			}
		default:
			switch ch {
			case '"':
				state = stateInString
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return text[startIndex : i+1]
				}
			}
		}
	}

	return "{}"
}

// parseLooseObject parses an object literal. JSON already accepts the bare
// true/false/null tokens the legacy dialect allows, so the relaxed parse is a
// plain unmarshal with parse errors recovered as an empty mapping.
func parseLooseObject(literal string) map[string]any {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(literal), &parsed); err != nil {
		return map[string]any{}
	}

	if parsed == nil {
		return map[string]any{}
	}

	return parsed
}

func resolveThemesConfig(text string, baseDir string) map[string]any {
	rhs, start := extractSetRHS(text, "input_config")
	if start < 0 {
		return nil
	}

	configPath := unquote(strings.TrimSpace(rhs))
	if configPath == "" {
		return nil
	}

	if !filepath.IsAbs(configPath) && baseDir != "" {
		configPath = filepath.Join(baseDir, configPath)
	}

	body, err := os.ReadFile(configPath)
	if err != nil {
		return nil
	}

	var themes map[string]any
	if err := json.Unmarshal(body, &themes); err != nil {
		return nil
	}

	return themes
}

func unquote(value string) string {
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		return value[1 : len(value)-1]
	}

	return value
}
