package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/jacklaaa89/jobqueue"
	"github.com/jacklaaa89/jobqueue/rabbitmq"
)

// openQueue connects to the queue named by the command, replaced in tests.
var openQueue = func(ctx context.Context, prefix, name string, log *zap.Logger) (jobqueue.Queue, error) {
	cfg, err := rabbitmq.ConfigFromEnv(prefix)
	if err != nil {
		return nil, err
	}
	return rabbitmq.New(ctx, name, cfg, rabbitmq.WithLogger(log))
}

// newLogger returns a development logger when verbose, a production logger otherwise.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("failed to create development logger: %w", err)
		}
		return l, nil
	}

	l, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to create production logger: %w", err)
	}
	return l, nil
}

// withQueue opens the queue named by the first argument, runs fn and shuts the queue down.
func withQueue(c *cli.Context, fn func(q jobqueue.Queue) error) error {
	name := c.Args().First()
	if name == "" {
		return cli.Exit("a queue name is required", 2)
	}

	log, err := newLogger(c.Bool("verbose"))
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	q, err := openQueue(c.Context, c.String("env-prefix"), name, log)
	if err != nil {
		return fmt.Errorf("failed to open queue %q: %w", name, err)
	}
	defer func() {
		if err := q.Shutdown(); err != nil {
			log.Warn("failed to shutdown queue", zap.Error(err))
		}
	}()

	return fn(q)
}

// writeJSON writes v to the app writer as a single line of JSON.
func writeJSON(c *cli.Context, v interface{}) error {
	return json.NewEncoder(c.App.Writer).Encode(v)
}

// waitTimeout resolves the timeout flags into the timeout passed to a wait operation.
func waitTimeout(c *cli.Context) time.Duration {
	if c.Bool("no-wait") {
		return jobqueue.NoWait
	}
	if t := c.Duration("timeout"); t > 0 {
		return t
	}
	return jobqueue.DefaultWait
}

type submitResult struct {
	Queue         string `json:"queue"`
	CorrelationID string `json:"correlation_id"`
}

func submit(c *cli.Context) error {
	raw := c.Args().Get(1)
	if raw == "" {
		return cli.Exit("a JSON payload is required", 2)
	}

	var payload interface{}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return cli.Exit(fmt.Sprintf("payload is not valid JSON: %v", err), 2)
	}

	opts := []jobqueue.SubmitOption{jobqueue.WithTTL(c.Duration("ttl"))}
	if p := c.Uint("priority"); p > 0 {
		if p > 255 {
			return cli.Exit("priority must be between 0 and 255", 2)
		}
		opts = append(opts, jobqueue.WithPriority(uint8(p)))
	}

	return withQueue(c, func(q jobqueue.Queue) error {
		id, err := q.Submit(c.Context, payload, opts...)
		if err != nil {
			return err
		}
		return writeJSON(c, submitResult{Queue: q.Name(), CorrelationID: id})
	})
}

type messageResult struct {
	Queue   string            `json:"queue"`
	Message *jobqueue.Message `json:"message"`
	Outcome string            `json:"outcome,omitempty"`
}

func take(c *cli.Context) error {
	return withQueue(c, func(q jobqueue.Queue) error {
		msg, err := q.WaitAndTake(c.Context, waitTimeout(c))
		if err != nil {
			return err
		}
		return writeJSON(c, messageResult{Queue: q.Name(), Message: msg})
	})
}

func reserve(c *cli.Context) error {
	finish, abort := c.Bool("finish"), c.Bool("abort")
	if finish && abort {
		return cli.Exit("--finish and --abort are mutually exclusive", 2)
	}

	return withQueue(c, func(q jobqueue.Queue) error {
		msg, err := q.WaitAndReserve(c.Context, waitTimeout(c))
		if err != nil {
			return err
		}

		res := messageResult{Queue: q.Name(), Message: msg}
		if msg != nil {
			switch {
			case finish:
				err = q.Finish(c.Context, msg.ID)
				res.Outcome = "finished"
			case abort:
				err = q.Abort(c.Context, msg.ID)
				res.Outcome = "aborted"
			default:
				// the reservation ends with the connection and the broker requeues the message.
				res.Outcome = "released"
			}
		}

		return errors.Join(writeJSON(c, res), err)
	})
}

type countResult struct {
	Queue string `json:"queue"`
	Count int    `json:"count"`
}

func count(c *cli.Context) error {
	return withQueue(c, func(q jobqueue.Queue) error {
		n, err := q.Count(c.Context)
		if err != nil {
			return err
		}
		return writeJSON(c, countResult{Queue: q.Name(), Count: n})
	})
}

type flushResult struct {
	Queue   string `json:"queue"`
	Flushed bool   `json:"flushed"`
}

func flush(c *cli.Context) error {
	return withQueue(c, func(q jobqueue.Queue) error {
		if err := q.Flush(c.Context); err != nil {
			return err
		}
		return writeJSON(c, flushResult{Queue: q.Name(), Flushed: true})
	})
}
