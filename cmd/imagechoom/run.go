package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/imagechoom/imagechoom/pkg/executor"
	"github.com/imagechoom/imagechoom/pkg/log"
	"github.com/imagechoom/imagechoom/pkg/settings"
	"github.com/imagechoom/imagechoom/pkg/workflows"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Normalize and execute a single workflow file, streaming its log",
		ArgsUsage: "<workflow-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "run-name",
				Usage: "Run name (defaults to the workflow file name)",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			path := command.Args().First()
			if path == "" {
				return errors.New("workflow file argument is required")
			}

			root, err := resolveRoot(command)
			if err != nil {
				return err
			}

			config := settings.Load(ctx, root)

			normalized, err := workflows.NormalizeFile(path)
			if err != nil {
				return err
			}

			for _, warning := range normalized.Warnings {
				fmt.Println("WARNING: " + warning)
			}

			runName := command.String("run-name")
			if runName == "" {
				runName = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}

			exec := executor.NewExecutor(config.OutputsRoot, executor.Options{
				ServiceURL:      config.A1111URL,
				Timeout:         time.Duration(config.A1111TimeoutS) * time.Second,
				CancelOnTimeout: config.CancelOnTimeout,
			}, executor.NewA1111Runner)

			result := exec.Execute(ctx, normalized.NormalizedText, runName, executor.Options{}, func(line string) {
				fmt.Println(line)
			})

			if !result.Success {
				return fmt.Errorf("run failed: %s", result.Error)
			}

			fmt.Printf("Run finished: %d image(s) in %s\n", len(result.ImagePaths), result.RunDir)

			return nil
		},
	}
}
