package worker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"procqueue/internal/config"
	"procqueue/internal/fileutil"
	"procqueue/internal/logging"
	"procqueue/internal/queue"
	"procqueue/internal/textutil"
)

// ErrInvalidItem rejects items that cannot be launched.
var ErrInvalidItem = errors.New("invalid item for worker")

type state int

const (
	stateCreated state = iota
	stateStarted
	stateRunning
	stateExited
	stateReported
	stateFinished
)

func (s state) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateStarted:
		return "started"
	case stateRunning:
		return "running"
	case stateExited:
		return "exited"
	case stateReported:
		return "reported"
	case stateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Options configure how a Worker launches its subprocess.
type Options struct {
	// Runner is the launch command. Empty means this executable with "exec".
	Runner          []string
	OutputDir       string
	ErrorDir        string
	ConfigPath      string
	UseNice         bool
	ForgiveSignaled bool
	Logger          *slog.Logger
	Now             func() time.Time
}

// OptionsFromConfig derives worker options from the current configuration.
func OptionsFromConfig(cfg *config.Config, configPath string, logger *slog.Logger) Options {
	return Options{
		Runner:          append([]string(nil), cfg.Manager.Runner...),
		OutputDir:       cfg.OutputDir(),
		ErrorDir:        cfg.ErrorDir(),
		ConfigPath:      configPath,
		UseNice:         cfg.Manager.UseNice,
		ForgiveSignaled: cfg.Manager.ForgiveSignaled,
		Logger:          logger,
	}
}

// Worker wraps exactly one subprocess executing one queue item.
type Worker struct {
	item   *queue.Item
	opts   Options
	logger *slog.Logger
	runID  string

	state     state
	cmd       *exec.Cmd
	pid       int
	startTime time.Time
	outPath   string
	errPath   string
	status    unix.WaitStatus
	lost      bool
	report    Report
}

// New validates item and returns an unstarted Worker for it.
func New(item *queue.Item, opts Options) (*Worker, error) {
	if err := Validate(item); err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	runID := uuid.NewString()
	return &Worker{
		item:  item,
		opts:  opts,
		runID: runID,
		logger: logger.With(
			logging.String(logging.FieldItemHash, item.Hash),
			logging.Int64(logging.FieldItemID, item.ID),
			logging.String(logging.FieldRunID, runID),
		),
	}, nil
}

// Validate rejects an item missing any field the subprocess needs.
func Validate(item *queue.Item) error {
	if item == nil {
		return fmt.Errorf("%w: nil item", ErrInvalidItem)
	}
	var missing []string
	if strings.TrimSpace(item.Container) == "" {
		missing = append(missing, "container")
	}
	if strings.TrimSpace(item.Payload) == "" {
		missing = append(missing, "payload")
	}
	if item.Priority < config.MinPriority || item.Priority > config.MaxPriority {
		missing = append(missing, "priority")
	}
	if strings.TrimSpace(item.Job) == "" {
		missing = append(missing, "job")
	}
	if strings.TrimSpace(item.Broker) == "" {
		missing = append(missing, "broker")
	}
	if strings.TrimSpace(item.Hash) == "" {
		missing = append(missing, "hash")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s missing or invalid: %s", ErrInvalidItem, item.Hash, strings.Join(missing, ", "))
	}
	return nil
}

// Item returns the queue item this worker runs.
func (w *Worker) Item() *queue.Item { return w.item }

// Hash returns the item hash.
func (w *Worker) Hash() string { return w.item.Hash }

// PID returns the subprocess id, or zero before Begin.
func (w *Worker) PID() int { return w.pid }

// RunID identifies this launch in logs and in the subprocess environment.
func (w *Worker) RunID() string { return w.runID }

// StartTime is when the subprocess was launched.
func (w *Worker) StartTime() time.Time { return w.startTime }

// Begin allocates capture files and launches the subprocess with stdin closed.
func (w *Worker) Begin(ctx context.Context) error {
	if w.state != stateCreated {
		return fmt.Errorf("begin %s: worker already %s", w.item.Hash, w.state)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	args, err := w.command()
	if err != nil {
		return err
	}

	w.startTime = w.opts.Now()
	queueDir := textutil.PathToken(w.item.Queue)
	itemDir := textutil.PathToken(w.item.Hash)
	fileName := fmt.Sprintf("%d_%d.txt", w.item.ID, w.startTime.UnixNano())
	w.outPath = filepath.Join(w.opts.OutputDir, queueDir, itemDir, fileName)
	w.errPath = filepath.Join(w.opts.ErrorDir, queueDir, itemDir, fileName)

	outFile, err := createCapture(w.outPath)
	if err != nil {
		return err
	}
	defer outFile.Close()
	errFile, err := createCapture(w.errPath)
	if err != nil {
		w.discardCaptures()
		return err
	}
	defer errFile.Close()

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = append(os.Environ(), w.environment()...)
	cmd.Stdout = outFile
	cmd.Stderr = errFile
	if err := cmd.Start(); err != nil {
		w.discardCaptures()
		return fmt.Errorf("start %s: %w", w.item.Hash, err)
	}

	w.cmd = cmd
	w.pid = cmd.Process.Pid
	w.state = stateStarted
	w.logger.Debug("worker started",
		logging.Int(logging.FieldPID, w.pid),
		logging.String("command", strings.Join(args, " ")),
	)
	return nil
}

func (w *Worker) command() ([]string, error) {
	args := append([]string(nil), w.opts.Runner...)
	if len(args) == 0 {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve runner executable: %w", err)
		}
		args = []string{self, "exec"}
	}
	if w.opts.UseNice {
		args = wrapNice(args, w.item.Priority)
	}
	return args, nil
}

func (w *Worker) environment() []string {
	env := []string{
		EnvContainer + "=" + w.item.Container,
		EnvBroker + "=" + w.item.Broker,
		EnvJob + "=" + w.item.Job,
		EnvPayload + "=" + w.item.Payload,
		EnvHash + "=" + w.item.Hash,
		EnvRunID + "=" + w.runID,
	}
	if w.opts.ConfigPath != "" {
		env = append(env, EnvConfig+"="+w.opts.ConfigPath)
	}
	return env
}

// discardCaptures removes the capture files of a launch that never started.
func (w *Worker) discardCaptures() {
	for _, path := range []string{w.outPath, w.errPath} {
		if err := fileutil.RemoveWithEmptyParent(path); err != nil {
			w.logger.Debug("failed to remove capture", logging.String("path", path), logging.Error(err))
		}
	}
}

func createCapture(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create capture directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create capture file: %w", err)
	}
	return f, nil
}

// Running polls the subprocess without blocking. Once it reports false it
// keeps reporting false.
func (w *Worker) Running() bool {
	if w.state != stateStarted && w.state != stateRunning {
		return false
	}

	var ws unix.WaitStatus
	pid, err := unix.Wait4(w.pid, &ws, unix.WNOHANG|unix.WUNTRACED, nil)
	for errors.Is(err, unix.EINTR) {
		pid, err = unix.Wait4(w.pid, &ws, unix.WNOHANG|unix.WUNTRACED, nil)
	}
	switch {
	case err != nil:
		w.lost = true
		w.state = stateExited
		w.logger.Warn("worker process vanished without exit status",
			logging.Int(logging.FieldPID, w.pid),
			logging.Error(err),
			logging.String(logging.FieldEventType, "worker_lost"),
		)
		return false
	case pid == 0:
		w.state = stateRunning
		return true
	}

	w.status = ws
	w.state = stateExited
	if ws.Signaled() || ws.Stopped() {
		w.recordAbnormalExit(ws)
	}
	return false
}

func (w *Worker) recordAbnormalExit(ws unix.WaitStatus) {
	var (
		verb string
		sig  unix.Signal
	)
	if ws.Stopped() {
		verb, sig = "stopped", ws.StopSignal()
	} else {
		verb, sig = "killed", ws.Signal()
	}
	message := fmt.Sprintf("%s process %d was %s by signal %d (%s)\n",
		w.opts.Now().UTC().Format(time.RFC3339), w.pid, verb, int(sig), unix.SignalName(sig))
	if err := fileutil.AppendFile(w.errPath, []byte(message)); err != nil {
		w.logger.Warn("failed to record abnormal exit",
			logging.Error(err),
			logging.String(logging.FieldEventType, "capture_write_failed"),
		)
	}
	if w.opts.ForgiveSignaled {
		w.item.Attempts++
	}
	w.logger.Warn("worker process terminated abnormally",
		logging.Int(logging.FieldPID, w.pid),
		logging.String("signal", unix.SignalName(sig)),
		logging.String("how", verb),
		logging.Bool("attempt_refunded", w.opts.ForgiveSignaled),
		logging.String(logging.FieldEventType, "worker_signaled"),
		logging.String(logging.FieldErrorHint, "an external signal ended the task; it will be retried"),
	)
}

// ExitCode returns the child's exit status, or -1 when it did not exit normally.
func (w *Worker) ExitCode() int {
	if w.lost || !w.status.Exited() {
		return -1
	}
	return w.status.ExitStatus()
}

// Report classifies the finished run. It must only be called after Running
// returned false, and returns the same report when called again.
func (w *Worker) Report() Report {
	if w.state == stateReported || w.state == stateFinished {
		return w.report
	}
	if w.state != stateExited {
		w.logger.Error("report requested before worker exited",
			logging.String("state", w.state.String()),
			logging.String(logging.FieldEventType, "worker_state_violation"),
		)
		return Report{Action: ActionNack, OutputPath: w.outPath, ErrorPath: w.errPath, Failed: true}
	}

	report := Report{OutputPath: w.outPath, ErrorPath: w.errPath}
	failed, err := fileutil.HasContent(w.errPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		w.logger.Warn("error capture vanished; treating run as failed",
			logging.String("path", w.errPath),
			logging.String(logging.FieldEventType, "capture_missing"),
		)
		failed = true
	case err != nil:
		w.logger.Warn("failed to inspect error capture; treating run as failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "capture_read_failed"),
		)
		failed = true
	}

	if failed {
		report.Failed = true
		w.item.Attempts--
		if w.item.Attempts <= 0 {
			w.item.Attempts = 0
			w.item.Banned = true
			report.Action = ActionBan
		} else {
			report.Action = ActionNack
		}
	} else {
		report.Action = ActionAck
		if err := fileutil.RemoveWithEmptyParent(w.errPath); err != nil {
			w.logger.Debug("failed to remove empty error capture", logging.Error(err))
		}
		report.ErrorPath = ""
	}

	w.report = report
	w.state = stateReported
	w.logger.Debug("worker reported",
		logging.String("action", string(report.Action)),
		logging.Bool("failed", report.Failed),
		logging.Int("exit_code", w.ExitCode()),
		logging.Int("attempts", w.item.Attempts),
	)
	return report
}

// Finish releases the subprocess handle. A child observed stopped is killed
// and reaped first; a child still running is left alone. Calling Finish again
// is a no-op.
func (w *Worker) Finish() error {
	if w.state == stateFinished {
		return nil
	}
	stopped := w.state != stateStarted && w.state != stateRunning && !w.lost && w.status.Stopped()
	w.state = stateFinished
	if w.cmd == nil || w.cmd.Process == nil {
		return nil
	}

	var errs []error
	if stopped {
		if err := unix.Kill(w.pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			errs = append(errs, fmt.Errorf("kill %d: %w", w.pid, err))
		}
		var ws unix.WaitStatus
		if _, err := unix.Wait4(w.pid, &ws, 0, nil); err != nil && !errors.Is(err, unix.ECHILD) {
			errs = append(errs, fmt.Errorf("reap %d: %w", w.pid, err))
		}
	}
	if err := w.cmd.Process.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release %d: %w", w.pid, err))
	}
	return errors.Join(errs...)
}

// Describe renders a short status line for logs.
func (w *Worker) Describe() string {
	return w.item.Hash + " pid=" + strconv.Itoa(w.pid) + " state=" + w.state.String()
}
