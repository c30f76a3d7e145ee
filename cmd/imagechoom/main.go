// Package main provides the imagechoom command line interface.
package main

import (
	"context"
	"os"
	"path/filepath"

	cli "github.com/urfave/cli/v3"

	"github.com/imagechoom/imagechoom/pkg/settings"
)

func main() {
	cmd := &cli.Command{
		Name:                  "imagechoom",
		Usage:                 "Queue, generate, and run image workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Usage:   "Project root (directory containing workflows/ and presets/)",
				Sources: cli.EnvVars("IMAGECHOOM_ROOT"),
			},
			&cli.StringFlag{
				Name:    "store-url",
				Usage:   "Queue store URL (file://<dir> or redis://host:port)",
				Sources: cli.EnvVars("IMAGECHOOM_STORE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			runCommand(),
			normalizeCommand(),
			enqueueCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

// resolveRoot honors the --root flag, then the environment, then marker
// directory discovery from the working directory.
func resolveRoot(command *cli.Command) (string, error) {
	if root := command.String("root"); root != "" {
		return filepath.Abs(root)
	}

	return settings.ResolveRoot()
}

// storeURL returns the configured queue store URL, defaulting to a file store
// under the project root.
func storeURL(command *cli.Command, root string) string {
	if url := command.String("store-url"); url != "" {
		return url
	}

	return "file://" + filepath.Join(root, "state")
}
