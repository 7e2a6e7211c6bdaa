package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"procqueue/internal/config"
	"procqueue/internal/logging"
	"procqueue/internal/queue"
	"procqueue/internal/strategy"
	"procqueue/internal/worker"
)

// Exit codes returned by Main.
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitUsage  = 2
)

// Inputs is the launch contract as read from the environment.
type Inputs struct {
	Container  string
	Broker     string
	Job        string
	Payload    string
	Hash       string
	RunID      string
	ConfigPath string
}

// InputsFromEnv reads the launch contract using getenv, os.Getenv when nil.
func InputsFromEnv(getenv func(string) string) Inputs {
	if getenv == nil {
		getenv = os.Getenv
	}
	get := func(key string) string { return strings.TrimSpace(getenv(key)) }
	return Inputs{
		Container:  get(worker.EnvContainer),
		Broker:     get(worker.EnvBroker),
		Job:        get(worker.EnvJob),
		Payload:    getenv(worker.EnvPayload),
		Hash:       get(worker.EnvHash),
		RunID:      get(worker.EnvRunID),
		ConfigPath: get(worker.EnvConfig),
	}
}

func (in Inputs) validate() error {
	var missing []string
	if in.Container == "" {
		missing = append(missing, worker.EnvContainer)
	}
	if in.Broker == "" {
		missing = append(missing, worker.EnvBroker)
	}
	if in.Job == "" {
		missing = append(missing, worker.EnvJob)
	}
	if strings.TrimSpace(in.Payload) == "" {
		missing = append(missing, worker.EnvPayload)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Main runs one item and returns the process exit code. Failures are written
// to stderr, which is what the manager inspects.
func Main(ctx context.Context, reg *strategy.Registry, in Inputs, stdout, stderr io.Writer) int {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	fail := func(code int, err error) int {
		label := in.Hash
		if label == "" {
			label = "runner"
		}
		fmt.Fprintf(stderr, "%s: %v\n", label, err)
		return code
	}

	if err := in.validate(); err != nil {
		return fail(ExitUsage, err)
	}
	payload, err := queue.DecodePayload(in.Payload)
	if err != nil {
		return fail(ExitUsage, err)
	}

	cfg, _, _, err := config.Load(in.ConfigPath)
	if err != nil {
		return fail(ExitUsage, fmt.Errorf("load config: %w", err))
	}
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Writer: stdout,
	})
	if err != nil {
		return fail(ExitUsage, err)
	}
	logger = logging.NewComponentLogger(logger, "runner").With(
		logging.String(logging.FieldItemHash, in.Hash),
		logging.String(logging.FieldRunID, in.RunID),
	)

	container, broker, job, err := lookup(reg, in)
	if err != nil {
		return fail(ExitUsage, err)
	}

	env := &strategy.Env{
		Hash:    in.Hash,
		RunID:   in.RunID,
		Payload: payload,
		Config:  cfg,
		Logger:  logger,
		Stdout:  stdout,
		Stderr:  stderr,
	}

	run, err := broker.Resolve(ctx, env, payload)
	if err != nil {
		return fail(ExitFailed, fmt.Errorf("resolve %q: %w", payload.Task, err))
	}
	logger.Debug("task resolved", logging.String("task", payload.Task))

	if err := container.Execute(ctx, env, job, run); err != nil {
		if errors.Is(err, context.Canceled) {
			return fail(ExitFailed, errors.New("interrupted"))
		}
		return fail(ExitFailed, err)
	}
	return ExitOK
}

func lookup(reg *strategy.Registry, in Inputs) (strategy.Container, strategy.Broker, strategy.Job, error) {
	if reg == nil {
		return nil, nil, nil, errors.New("strategy registry unavailable")
	}
	container, err := reg.Container(in.Container)
	if err != nil {
		return nil, nil, nil, err
	}
	broker, err := reg.Broker(in.Broker)
	if err != nil {
		return nil, nil, nil, err
	}
	job, err := reg.Job(in.Job)
	if err != nil {
		return nil, nil, nil, err
	}
	return container, broker, job, nil
}
