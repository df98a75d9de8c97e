package main

import (
	"github.com/urfave/cli/v2"
)

// globalFlags returns the flags shared by every command.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
		},
		&cli.StringFlag{
			Name:    "env-prefix",
			Usage:   "The prefix of the environment variables holding the connection settings",
			EnvVars: []string{"JOBQUEUE_ENV_PREFIX"},
			Value:   "JOBQUEUE",
		},
	}
}

// submitFlags returns the flags of the submit command.
func submitFlags() []cli.Flag {
	return []cli.Flag{
		&cli.UintFlag{
			Name:    "priority",
			Aliases: []string{"p"},
			Usage:   "The priority of the message (0-255), only honoured by priority queues",
		},
		&cli.DurationFlag{
			Name:  "ttl",
			Usage: "Expire the message if it is not consumed within this duration",
		},
	}
}

// waitFlags returns the flags of the commands which wait for a message.
func waitFlags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:    "timeout",
			Aliases: []string{"t"},
			Usage:   "The maximum time to wait for a message, 0 uses JOBQUEUE_DEFAULT_TIMEOUT",
		},
		&cli.BoolFlag{
			Name:  "no-wait",
			Usage: "Make a single attempt without waiting",
		},
	}
}

// reserveFlags returns the flags only used by the reserve command.
func reserveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "finish",
			Usage: "Finish the message once it has been printed",
		},
		&cli.BoolFlag{
			Name:  "abort",
			Usage: "Abort the message once it has been printed, returning it to the queue",
		},
	}
}
