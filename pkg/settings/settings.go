// Package settings manages persisted engine settings, project root
// resolution, and style presets.
package settings

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/imagechoom/imagechoom/pkg/log"
)

const settingsFileName = "settings.json"

type Settings struct {
	A1111URL        string `json:"a1111_url"         validate:"required,url"`
	A1111TimeoutS   int    `json:"a1111_timeout_s"   validate:"gte=1"`
	CancelOnTimeout bool   `json:"cancel_on_timeout"`
	OutputsRoot     string `json:"outputs_root"      validate:"required"`
}

func Defaults(root string) Settings {
	return Settings{
		A1111URL:      "http://127.0.0.1:7860",
		A1111TimeoutS: 180,
		OutputsRoot:   filepath.Join(root, "outputs_gui"),
	}
}

var validate = validator.New()

// Load reads settings from <root>/settings.json. A missing, malformed, or
// invalid file yields the defaults, which are written back so the next load
// starts from a clean file. Individual invalid fields are clamped to their
// defaults rather than rejecting the whole file.
func Load(ctx context.Context, root string) Settings {
	logger := log.WithModule("settings")
	defaults := Defaults(root)

	path := filepath.Join(root, settingsFileName)

	body, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WarnContext(ctx, "Settings file unreadable, using defaults", "path", path, "error", err)
		}

		saveQuietly(ctx, logger, root, defaults)

		return defaults
	}

	loaded := defaults
	if err := json.Unmarshal(body, &loaded); err != nil {
		logger.WarnContext(ctx, "Settings file malformed, using defaults", "path", path, "error", err)
		saveQuietly(ctx, logger, root, defaults)

		return defaults
	}

	clamped := clamp(ctx, logger, loaded, defaults)
	if clamped != loaded {
		saveQuietly(ctx, logger, root, clamped)
	}

	return clamped
}

// clamp replaces each field that fails validation with its default.
func clamp(ctx context.Context, logger *slog.Logger, loaded, defaults Settings) Settings {
	err := validate.Struct(loaded)
	if err == nil {
		return loaded
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return defaults
	}

	for _, fieldErr := range validationErrors {
		logger.WarnContext(ctx, "Invalid settings field, using default", "field", fieldErr.Field(), "tag", fieldErr.Tag())

		switch fieldErr.Field() {
		case "A1111URL":
			loaded.A1111URL = defaults.A1111URL
		case "A1111TimeoutS":
			loaded.A1111TimeoutS = defaults.A1111TimeoutS
		case "OutputsRoot":
			loaded.OutputsRoot = defaults.OutputsRoot
		}
	}

	return loaded
}

// Save writes settings to <root>/settings.json.
func Save(root string, settings Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(root, settingsFileName), data, 0o600)
}

func saveQuietly(ctx context.Context, logger *slog.Logger, root string, settings Settings) {
	if err := Save(root, settings); err != nil {
		logger.WarnContext(ctx, "Failed to write settings file", "error", err)
	}
}
