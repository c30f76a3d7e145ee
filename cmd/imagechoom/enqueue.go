package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	cli "github.com/urfave/cli/v3"

	"github.com/imagechoom/imagechoom/pkg/log"
	"github.com/imagechoom/imagechoom/pkg/models"
	"github.com/imagechoom/imagechoom/pkg/queue"
	"github.com/imagechoom/imagechoom/pkg/settings"
	"github.com/imagechoom/imagechoom/pkg/workflows"
)

func enqueueCommand() *cli.Command {
	return &cli.Command{
		Name:  "enqueue",
		Usage: "Submit jobs to the queue",
		Commands: []*cli.Command{
			enqueueWorkflowCommand(),
			enqueuePromptLabCommand(),
		},
	}
}

func enqueueWorkflowCommand() *cli.Command {
	return &cli.Command{
		Name:      "workflow",
		Usage:     "Queue a workflow file for execution",
		ArgsUsage: "<workflow-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "run-name",
				Usage: "Run name (defaults to the workflow file name)",
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "Number of copies to queue",
				Value: 1,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))
			logger := log.WithModule("enqueue")

			path := command.Args().First()
			if path == "" {
				return errors.New("workflow file argument is required")
			}

			root, err := resolveRoot(command)
			if err != nil {
				return err
			}

			normalized, err := workflows.NormalizeFile(path)
			if err != nil {
				return err
			}

			for _, warning := range normalized.Warnings {
				fmt.Println("WARNING: " + warning)
			}

			store, err := queue.NewStore(ctx, logger, storeURL(command, root))
			if err != nil {
				return err
			}
			defer store.Close(ctx)

			runName := command.String("run-name")
			if runName == "" {
				runName = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}

			count := command.Int("count")
			for i := 0; i < count; i++ {
				job, err := store.Enqueue(ctx, models.NewRunWorkflowTextJob(runName, normalized.NormalizedText))
				if err != nil {
					return err
				}

				fmt.Printf("Queued %s (%s)\n", job.RunName, job.ID)
			}

			return nil
		},
	}
}

func enqueuePromptLabCommand() *cli.Command {
	return &cli.Command{
		Name:  "promptlab",
		Usage: "Queue a generate-then-run job from a theme",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "model",
				Usage:    "Ollama model to generate the prompt with",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "theme",
				Usage:    "Theme for the generated prompt",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "preset",
				Usage: "Style preset name",
				Value: "default",
			},
			&cli.FloatFlag{
				Name:  "creativity",
				Usage: "Generation temperature, 0 to 1",
				Value: 0.5,
			},
			&cli.IntFlag{
				Name:  "timeout",
				Usage: "Generation timeout in seconds",
				Value: 60,
			},
			&cli.StringFlag{
				Name:  "run-name",
				Usage: "Run name (defaults to the theme)",
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "Number of copies to queue",
				Value: 1,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))
			logger := log.WithModule("enqueue")

			root, err := resolveRoot(command)
			if err != nil {
				return err
			}

			presets := settings.LoadPresets(ctx, root)

			presetName := command.String("preset")

			preset, ok := presets[presetName]
			if !ok {
				return fmt.Errorf("preset not found: %s", presetName)
			}

			store, err := queue.NewStore(ctx, logger, storeURL(command, root))
			if err != nil {
				return err
			}
			defer store.Close(ctx)

			runName := command.String("run-name")
			if runName == "" {
				runName = command.String("theme")
			}

			config := models.PromptLabConfig{
				Model:      command.String("model"),
				PresetName: presetName,
				Preset:     preset,
				Theme:      command.String("theme"),
				Creativity: command.Float("creativity"),
				TimeoutS:   command.Int("timeout"),
			}

			count := command.Int("count")
			for i := 0; i < count; i++ {
				job, err := store.Enqueue(ctx, models.NewGenerateThenRunJob(runName, config))
				if err != nil {
					return err
				}

				fmt.Printf("Queued %s (%s)\n", job.RunName, job.ID)
			}

			return nil
		},
	}
}
