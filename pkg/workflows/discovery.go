package workflows

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/imagechoom/imagechoom/pkg/models"
)

// DiscoverWorkflows scans <root>/workflows for .choom files and classifies
// each as v1 or legacy. A missing workflows directory is an empty result, not
// an error.
func DiscoverWorkflows(root string) ([]models.WorkflowMetadata, error) {
	workflowRoot := filepath.Join(root, "workflows")
	if _, err := os.Stat(workflowRoot); os.IsNotExist(err) {
		return []models.WorkflowMetadata{}, nil
	}

	paths, err := filepath.Glob(filepath.Join(workflowRoot, "*.choom"))
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	sort.Strings(paths)

	discovered := make([]models.WorkflowMetadata, 0, len(paths))

	for _, path := range paths {
		text, err := ReadWorkflowText(path)
		if err != nil {
			return nil, err
		}

		detected := models.WorkflowTypeLegacy
		if LooksLikeV1(text) {
			detected = models.WorkflowTypeV1
		}

		discovered = append(discovered, models.WorkflowMetadata{
			Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			Path: path,
			Type: detected,
		})
	}

	return discovered, nil
}

// ReadWorkflowText reads a workflow source file as UTF-8 text.
func ReadWorkflowText(path string) (string, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read workflow %s: %w", path, err)
	}

	return string(body), nil
}

// baseDirFor returns the themes resolution base for a workflow file: the
// parent of the workflows directory it lives in.
func baseDirFor(path string) string {
	return filepath.Dir(filepath.Dir(path))
}
