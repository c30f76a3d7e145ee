// Package executor turns a normalized workflow into a run directory full of
// artifacts, capturing runner output line by line as the run progresses.
package executor

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/imagechoom/imagechoom/pkg/log"
	"github.com/imagechoom/imagechoom/pkg/models"
	"github.com/imagechoom/imagechoom/pkg/otelhelper"
)

// Options override the executor defaults for a single run.
type Options struct {
	ServiceURL      string
	Timeout         time.Duration
	CancelOnTimeout bool
}

type Executor struct {
	outputsRoot string
	defaults    Options
	newRunner   func(Config) Runner
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewExecutor creates an executor rooted at outputsRoot. newRunner builds the
// runner for each run; pass NewA1111Runner outside of tests.
func NewExecutor(outputsRoot string, defaults Options, newRunner func(Config) Runner) *Executor {
	return &Executor{
		outputsRoot: outputsRoot,
		defaults:    defaults,
		newRunner:   newRunner,
		logger:      log.WithModule("executor"),
		tracer:      otel.Tracer("imagechoom/executor"),
	}
}

var slugRe = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Slugify reduces a run name to a filesystem-safe directory fragment.
func Slugify(name string) string {
	slug := slugRe.ReplaceAllString(name, "-")
	slug = strings.Trim(slug, "-")
	slug = strings.ToLower(slug)

	if slug == "" {
		return "workflow"
	}

	return slug
}

// Execute runs a normalized workflow. Every captured output line is recorded
// in the result and forwarded to onLog as it arrives; onLog may be nil. The
// result always carries the run directory, even on failure.
func (e *Executor) Execute(ctx context.Context, text, runName string, opts Options, onLog func(line string)) models.RunResult {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "executor.execute",
		attribute.String(otelhelper.RunNameKey, runName))
	defer span.End()

	result := models.RunResult{LogLines: []string{}, ImagePaths: []string{}}

	emit := func(line string) {
		result.LogLines = append(result.LogLines, line)
		if onLog != nil {
			onLog(line)
		}
	}

	runDir, err := e.makeRunDir(runName)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to create run directory", "run_name", runName, "error", err)
		otelhelper.SetError(span, err)

		result.Error = err.Error()
		emit("ERROR: " + err.Error())

		return result
	}

	result.RunDir = runDir
	span.SetAttributes(attribute.String(otelhelper.RunDirKey, runDir))
	emit("run_dir=" + runDir)

	config := Config{
		ServiceURL:      e.defaults.ServiceURL,
		Timeout:         e.defaults.Timeout,
		CancelOnTimeout: e.defaults.CancelOnTimeout,
		ArtifactsDir:    runDir,
	}
	if opts.ServiceURL != "" {
		config.ServiceURL = opts.ServiceURL
	}

	if opts.Timeout > 0 {
		config.Timeout = opts.Timeout
		config.CancelOnTimeout = opts.CancelOnTimeout
	}

	capture := NewLineWriter(emit)
	config.Output = capture

	runErr := e.newRunner(config).Run(ctx, text)
	capture.Flush()

	result.ImagePaths = collectPNGs(runDir)

	if runErr != nil {
		e.logger.ErrorContext(ctx, "Run failed", "run_name", runName, "run_dir", runDir, "error", runErr)
		otelhelper.SetError(span, runErr, attribute.String(otelhelper.RunDirKey, runDir))

		result.Error = runErr.Error()
		emit("ERROR: " + runErr.Error())

		return result
	}

	if len(result.ImagePaths) == 0 {
		emit("No PNG artifacts generated.")
	}

	result.Success = true

	e.logger.InfoContext(ctx, "Run finished", "run_name", runName, "run_dir", runDir, "images", len(result.ImagePaths))

	return result
}

// makeRunDir creates a unique run-<timestamp>-<slug> directory. The timestamp
// carries nanoseconds, and a numeric suffix resolves the rare collision.
func (e *Executor) makeRunDir(runName string) (string, error) {
	if err := os.MkdirAll(e.outputsRoot, 0o750); err != nil {
		return "", fmt.Errorf("creating outputs root: %w", err)
	}

	stamp := time.Now().Format("20060102-150405.000000000")
	base := fmt.Sprintf("run-%s-%s", stamp, Slugify(runName))

	for attempt := 0; ; attempt++ {
		candidate := base
		if attempt > 0 {
			candidate = fmt.Sprintf("%s-%d", base, attempt+1)
		}

		path := filepath.Join(e.outputsRoot, candidate)

		err := os.Mkdir(path, 0o750)
		if err == nil {
			return path, nil
		}

		if !os.IsExist(err) {
			return "", fmt.Errorf("creating run directory: %w", err)
		}
	}
}

// collectPNGs returns every .png under dir, sorted by path.
func collectPNGs(dir string) []string {
	paths := []string{}

	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}

		if strings.EqualFold(filepath.Ext(path), ".png") {
			paths = append(paths, path)
		}

		return nil
	})

	sort.Strings(paths)

	return paths
}
