package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "jobqueue",
		Usage: "Submit, take and reserve jobs on a RabbitMQ backed job queue",
		Description: "Connection settings are read from the environment using the configured prefix, " +
			"i.e. JOBQUEUE_CLIENT_HOST, JOBQUEUE_CLIENT_PORT, JOBQUEUE_CLIENT_VHOST or JOBQUEUE_EXCHANGE_NAME.",
		Flags: globalFlags(),
		Commands: []*cli.Command{
			{
				Name:      "submit",
				Usage:     "Submit a JSON payload to a queue",
				ArgsUsage: "<queue> <json>",
				Flags:     submitFlags(),
				Action:    submit,
			},
			{
				Name:      "take",
				Usage:     "Wait for a message and remove it from the queue",
				ArgsUsage: "<queue>",
				Flags:     waitFlags(),
				Action:    take,
			},
			{
				Name:      "reserve",
				Usage:     "Wait for a message and reserve it, optionally finishing or aborting it",
				ArgsUsage: "<queue>",
				Flags:     append(waitFlags(), reserveFlags()...),
				Action:    reserve,
			},
			{
				Name:      "count",
				Usage:     "Print the amount of ready messages in a queue",
				ArgsUsage: "<queue>",
				Action:    count,
			},
			{
				Name:      "flush",
				Usage:     "Remove every ready message from a queue",
				ArgsUsage: "<queue>",
				Action:    flush,
			},
		},
	}
}
