package main

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	cli "github.com/urfave/cli/v3"

	"github.com/imagechoom/imagechoom/pkg/channels/gochannel"
	"github.com/imagechoom/imagechoom/pkg/dispatcher"
	"github.com/imagechoom/imagechoom/pkg/eventbus"
	"github.com/imagechoom/imagechoom/pkg/events"
	"github.com/imagechoom/imagechoom/pkg/executor"
	"github.com/imagechoom/imagechoom/pkg/log"
	"github.com/imagechoom/imagechoom/pkg/otelhelper"
	"github.com/imagechoom/imagechoom/pkg/promptlab"
	"github.com/imagechoom/imagechoom/pkg/queue"
	"github.com/imagechoom/imagechoom/pkg/settings"
)

const defaultPort = 8080

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the engine with its HTTP API and background dispatcher",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "ollama-url",
				Usage:   "Base URL of the Ollama text-generation service",
				Value:   "http://127.0.0.1:11434",
				Sources: cli.EnvVars("OLLAMA_URL"),
			},
			&cli.BoolFlag{
				Name:  "continuous",
				Usage: "Start dispatching immediately instead of paused",
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry trace export",
				Sources: cli.EnvVars("IMAGECHOOM_TRACING"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))
			logger := log.WithModule("serve")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			root, err := resolveRoot(command)
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "Initializing ImageChoom engine", "root", root)

			if command.Bool("tracing") {
				if _, err := otelhelper.NewTracer(ctx, "imagechoom"); err != nil {
					logger.WarnContext(ctx, "Tracing setup failed, continuing without export", "error", err)
				}
			}

			config := settings.Load(ctx, root)
			presets := settings.LoadPresets(ctx, root)

			store, err := queue.NewStore(ctx, logger, storeURL(command, root))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close queue store", "error", err)
				}
			}()

			pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
			if err != nil {
				return err
			}

			bus := eventbus.NewWatermillEventBus(pub, sub)
			defer func() {
				if err := bus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			runLogger := log.WithModule("run")
			_ = bus.Handle(events.RunLogLineEvent, func(ctx context.Context, event any) error {
				if line, ok := event.(*events.RunLogLine); ok {
					runLogger.InfoContext(ctx, line.Line, "run_name", line.RunName, "job_id", line.JobID)
				}

				return nil
			})

			if err := bus.Subscribe(ctx); err != nil {
				return err
			}

			exec := executor.NewExecutor(config.OutputsRoot, executor.Options{
				ServiceURL:      config.A1111URL,
				Timeout:         time.Duration(config.A1111TimeoutS) * time.Second,
				CancelOnTimeout: config.CancelOnTimeout,
			}, executor.NewA1111Runner)

			generator := promptlab.NewGenerator(command.String("ollama-url"))

			d := dispatcher.NewDispatcher(store, exec, generator, bus)
			d.Start(ctx)
			defer d.Stop()

			if command.Bool("continuous") {
				d.EnableContinuous(ctx)
			}

			api := NewAPI(store, d, root, presets, config)
			app := api.App()

			errCh := make(chan error, 1)

			go func() {
				errCh <- app.Listen(":" + strconv.Itoa(command.Int("port")))
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				logger.InfoContext(ctx, "Shutting down")

				return app.Shutdown()
			}
		},
	}
}
