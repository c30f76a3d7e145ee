package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/imagechoom/imagechoom/pkg/log"
	"github.com/imagechoom/imagechoom/pkg/workflows"
)

func normalizeCommand() *cli.Command {
	return &cli.Command{
		Name:      "normalize",
		Usage:     "Print the runner-ready form of a workflow file",
		ArgsUsage: "<workflow-file>",
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			path := command.Args().First()
			if path == "" {
				return errors.New("workflow file argument is required")
			}

			normalized, err := workflows.NormalizeFile(path)
			if err != nil {
				return err
			}

			for _, warning := range normalized.Warnings {
				fmt.Fprintln(os.Stderr, "WARNING: "+warning)
			}

			fmt.Println(normalized.NormalizedText)

			return nil
		},
	}
}
