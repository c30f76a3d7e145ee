package settings

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/imagechoom/imagechoom/pkg/log"
)

// LoadPresets reads every JSON style preset under <root>/presets. Malformed
// files are skipped. The result always includes a "default" entry so callers
// can fall back to an empty preset by name.
func LoadPresets(ctx context.Context, root string) map[string]map[string]any {
	logger := log.WithModule("settings")
	presets := map[string]map[string]any{}

	paths, err := filepath.Glob(filepath.Join(root, "presets", "*.json"))
	if err == nil {
		for _, path := range paths {
			body, err := os.ReadFile(path)
			if err != nil {
				logger.WarnContext(ctx, "Skipping unreadable preset", "path", path, "error", err)

				continue
			}

			var preset map[string]any
			if err := json.Unmarshal(body, &preset); err != nil || preset == nil {
				logger.WarnContext(ctx, "Skipping malformed preset", "path", path, "error", err)

				continue
			}

			name := strings.TrimSuffix(filepath.Base(path), ".json")
			presets[name] = preset
		}
	}

	if _, ok := presets["default"]; !ok {
		presets["default"] = map[string]any{}
	}

	return presets
}
