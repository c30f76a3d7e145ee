// Package web provides the HTTP API over the workflow queue, run history,
// and dispatcher controls.
package web

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/imagechoom/imagechoom/pkg/dispatcher"
	"github.com/imagechoom/imagechoom/pkg/log"
	"github.com/imagechoom/imagechoom/pkg/models"
	"github.com/imagechoom/imagechoom/pkg/queue"
	"github.com/imagechoom/imagechoom/pkg/settings"
	"github.com/imagechoom/imagechoom/pkg/workflows"
)

type APIHandlers struct {
	store      queue.Store
	dispatcher *dispatcher.Dispatcher
	root       string
	presets    map[string]map[string]any
	configMu   sync.RWMutex
	config     settings.Settings
	validator  *validator.Validate
	logger     *slog.Logger
}

func NewAPIHandlers(
	store queue.Store,
	d *dispatcher.Dispatcher,
	root string,
	presets map[string]map[string]any,
	config settings.Settings,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		store:      store,
		dispatcher: d,
		root:       root,
		presets:    presets,
		config:     config,
		validator:  validate,
		logger:     log.WithModule("web"),
	}
}

// GetWorkflows lists every discovered workflow with its runner-ready form, so
// clients can preview what a legacy file will execute as.
func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	discovered, err := workflows.DiscoverWorkflows(h.root)
	if err != nil {
		return internalError(c, err)
	}

	responses := make([]WorkflowResponse, 0, len(discovered))

	for _, meta := range discovered {
		normalized, err := workflows.NormalizeFile(meta.Path)
		if err != nil {
			return internalError(c, err)
		}

		responses = append(responses, WorkflowResponse{
			Name:           meta.Name,
			Path:           meta.Path,
			Type:           meta.Type,
			NormalizedText: normalized.NormalizedText,
			Warnings:       normalized.Warnings,
		})
	}

	return c.JSON(fiber.Map{"workflows": responses})
}

func (h *APIHandlers) GetQueue(c fiber.Ctx) error {
	pending, err := h.store.ListPending(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"jobs": pending, "count": len(pending)})
}

func (h *APIHandlers) EnqueueWorkflow(c fiber.Ctx) error {
	var req EnqueueWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if req.Name == "" && req.Text == "" {
		return badRequest(c, "Either name or text is required")
	}

	text := req.Text
	runName := req.RunName

	if req.Name != "" {
		meta, ok := h.findWorkflow(c, req.Name)
		if !ok {
			return notFound(c, "Workflow not found: "+req.Name)
		}

		normalized, err := workflows.NormalizeFile(meta.Path)
		if err != nil {
			return internalError(c, err)
		}

		text = normalized.NormalizedText

		if runName == "" {
			runName = meta.Name
		}
	} else {
		text = workflows.Normalize(text, h.root).NormalizedText

		if runName == "" {
			runName = "adhoc"
		}
	}

	job, err := h.store.Enqueue(c.Context(), models.NewRunWorkflowTextJob(runName, text))
	if err != nil {
		if queue.IsInvalidJob(err) {
			return badRequest(c, err.Error())
		}

		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(job)
}

func (h *APIHandlers) EnqueuePromptLab(c fiber.Ctx) error {
	var req EnqueuePromptLabRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if req.TimeoutS == 0 {
		req.TimeoutS = 60
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	presetName := req.PresetName
	if presetName == "" {
		presetName = "default"
	}

	preset, ok := h.presets[presetName]
	if !ok {
		return notFound(c, "Preset not found: "+presetName)
	}

	runName := req.RunName
	if runName == "" {
		runName = req.Theme
	}

	config := models.PromptLabConfig{
		Model:      req.Model,
		PresetName: presetName,
		Preset:     preset,
		Theme:      req.Theme,
		Creativity: req.Creativity,
		TimeoutS:   req.TimeoutS,
	}

	job, err := h.store.Enqueue(c.Context(), models.NewGenerateThenRunJob(runName, config))
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(job)
}

func (h *APIHandlers) RemoveQueued(c fiber.Ctx) error {
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return badRequest(c, "Queue index must be an integer")
	}

	if err := h.store.RemoveAt(c.Context(), index); err != nil {
		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetRuns(c fiber.Ctx) error {
	records, err := h.store.ListRuns(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"runs": records, "count": len(records)})
}

func (h *APIHandlers) GetDispatcher(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"state": h.dispatcher.State()})
}

func (h *APIHandlers) EnableContinuous(c fiber.Ctx) error {
	h.dispatcher.EnableContinuous(c.Context())

	return c.JSON(fiber.Map{"state": h.dispatcher.State()})
}

func (h *APIHandlers) RequestPause(c fiber.Ctx) error {
	h.dispatcher.RequestPause(c.Context())

	return c.JSON(fiber.Map{"state": h.dispatcher.State()})
}

// RunOnce processes at most one queued job in the foreground, regardless of
// dispatcher state.
func (h *APIHandlers) RunOnce(c fiber.Ctx) error {
	processed, err := h.dispatcher.RunOnce(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"processed": processed, "state": h.dispatcher.State()})
}

func (h *APIHandlers) GetSettings(c fiber.Ctx) error {
	return c.JSON(h.currentSettings())
}

// currentSettings returns a snapshot of the settings. UpdateSettings swaps
// them while other handlers read, so every access goes through the lock.
func (h *APIHandlers) currentSettings() settings.Settings {
	h.configMu.RLock()
	defer h.configMu.RUnlock()

	return h.config
}

// UpdateSettings persists new settings. Changes to the backend URL and
// timeout apply to new runs after restart; the health check picks them up
// immediately.
func (h *APIHandlers) UpdateSettings(c fiber.Ctx) error {
	var req settings.Settings
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := settings.Save(h.root, req); err != nil {
		return internalError(c, err)
	}

	h.configMu.Lock()
	h.config = req
	h.configMu.Unlock()

	return c.JSON(req)
}

// HealthCheck reports the queue store and image backend status together.
func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	storeOk := true
	storeDetail := "ok"

	if err := h.store.HealthCheck(c.Context()); err != nil {
		storeOk = false
		storeDetail = err.Error()
	}

	backendOk, backendDetail := settings.CheckHealth(
		c.Context(), h.currentSettings().A1111URL, 5*time.Second)

	status := "healthy"
	httpStatus := http.StatusOK

	if !storeOk || !backendOk {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"store":   storeDetail,
			"backend": backendDetail,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) findWorkflow(c fiber.Ctx, name string) (models.WorkflowMetadata, bool) {
	discovered, err := workflows.DiscoverWorkflows(h.root)
	if err != nil {
		h.logger.ErrorContext(c.Context(), "Workflow discovery failed", "error", err)

		return models.WorkflowMetadata{}, false
	}

	for _, meta := range discovered {
		if meta.Name == name {
			return meta, true
		}
	}

	return models.WorkflowMetadata{}, false
}
