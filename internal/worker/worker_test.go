package worker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"procqueue/internal/queue"
	"procqueue/internal/testsupport"
	"procqueue/internal/worker"
)

func newItem(attempts int) *queue.Item {
	payload, _ := queue.Payload{Task: "noop", Record: "1"}.Encode()
	return &queue.Item{
		ID:          7,
		Hash:        "noop_1",
		Queue:       "cron",
		Payload:     payload,
		Worker:      "default",
		Broker:      "default",
		Container:   "default",
		Job:         "default",
		Priority:    5,
		Attempts:    attempts,
		MaxAttempts: attempts,
		Running:     true,
	}
}

func startWorker(t *testing.T, item *queue.Item, script string, mutate func(*worker.Options)) *worker.Worker {
	t.Helper()

	base := t.TempDir()
	runner := testsupport.WriteScript(t, filepath.Join(base, "bin"), "runner.sh", script)
	opts := worker.Options{
		Runner:          []string{runner},
		OutputDir:       filepath.Join(base, "output"),
		ErrorDir:        filepath.Join(base, "errors"),
		ForgiveSignaled: true,
	}
	if mutate != nil {
		mutate(&opts)
	}
	w, err := worker.New(item, opts)
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	if err := w.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	t.Cleanup(func() { _ = w.Finish() })
	return w
}

func waitExit(t *testing.T, w *worker.Worker) {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for w.Running() {
		if time.Now().After(deadline) {
			t.Fatalf("worker %s did not exit", w.Describe())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestValidateRejectsIncompleteItems(t *testing.T) {
	cases := map[string]func(*queue.Item){
		"container": func(i *queue.Item) { i.Container = "" },
		"payload":   func(i *queue.Item) { i.Payload = " " },
		"job":       func(i *queue.Item) { i.Job = "" },
		"broker":    func(i *queue.Item) { i.Broker = "" },
		"priority":  func(i *queue.Item) { i.Priority = 12 },
	}
	for field, mutate := range cases {
		item := newItem(3)
		mutate(item)
		err := worker.Validate(item)
		if !errors.Is(err, worker.ErrInvalidItem) {
			t.Fatalf("%s: expected ErrInvalidItem, got %v", field, err)
		}
		if !strings.Contains(err.Error(), field) {
			t.Fatalf("%s: error %q does not name the field", field, err)
		}
	}
	if err := worker.Validate(newItem(3)); err != nil {
		t.Fatalf("expected complete item to validate, got %v", err)
	}
}

func TestSuccessfulRunAcks(t *testing.T) {
	item := newItem(3)
	w := startWorker(t, item, `echo "payload=$PROCQUEUE_PAYLOAD job=$PROCQUEUE_JOB"`, nil)
	if w.PID() == 0 {
		t.Fatal("expected pid after Begin")
	}
	waitExit(t, w)

	report := w.Report()
	if report.Action != worker.ActionAck || report.Failed {
		t.Fatalf("unexpected report %#v", report)
	}
	if report.ErrorPath != "" {
		t.Fatalf("expected no error path on success, got %q", report.ErrorPath)
	}
	if item.Attempts != 3 {
		t.Fatalf("expected attempts untouched, got %d", item.Attempts)
	}

	data, err := os.ReadFile(report.OutputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), `payload={"task":"noop","record":"1"} job=default`) {
		t.Fatalf("unexpected output %q", data)
	}
	if w.ExitCode() != 0 {
		t.Fatalf("expected exit code 0, got %d", w.ExitCode())
	}
	if again := w.Report(); again != report {
		t.Fatalf("expected cached report, got %#v", again)
	}
}

func TestSuccessfulRunRemovesEmptyErrorDirectory(t *testing.T) {
	var errDir string
	w := startWorker(t, newItem(3), `exit 0`, func(o *worker.Options) { errDir = o.ErrorDir })
	waitExit(t, w)
	w.Report()

	entries, err := os.ReadDir(filepath.Join(errDir, "cron"))
	if err != nil {
		t.Fatalf("read error dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected per-hash error directory removed, found %d entries", len(entries))
	}
}

func TestCapturesAreGroupedByQueue(t *testing.T) {
	var outDir string
	w := startWorker(t, newItem(3), `echo hi`, func(o *worker.Options) { outDir = o.OutputDir })
	waitExit(t, w)

	report := w.Report()
	want := filepath.Join(outDir, "cron", "noop_1") + string(filepath.Separator)
	if !strings.HasPrefix(report.OutputPath, want) {
		t.Fatalf("expected output under %s, got %s", want, report.OutputPath)
	}
}

func TestMissingErrorCaptureCountsAsFailure(t *testing.T) {
	var errDir string
	item := newItem(3)
	w := startWorker(t, item, `exit 0`, func(o *worker.Options) { errDir = o.ErrorDir })
	waitExit(t, w)

	// Another process clearing the capture tree must not turn the run into a success.
	if err := os.RemoveAll(filepath.Join(errDir, "cron")); err != nil {
		t.Fatal(err)
	}
	report := w.Report()
	if report.Action != worker.ActionNack || !report.Failed {
		t.Fatalf("expected failed nack, got %#v", report)
	}
	if item.Attempts != 2 {
		t.Fatalf("expected attempt charged, got %d", item.Attempts)
	}
}

func TestFailedStartRemovesCaptures(t *testing.T) {
	base := t.TempDir()
	opts := worker.Options{
		Runner:    []string{filepath.Join(base, "bin", "missing-runner")},
		OutputDir: filepath.Join(base, "output"),
		ErrorDir:  filepath.Join(base, "errors"),
	}
	w, err := worker.New(newItem(3), opts)
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	if err := w.Begin(context.Background()); err == nil {
		t.Fatal("expected Begin to fail for a missing runner")
	}

	for _, dir := range []string{opts.OutputDir, opts.ErrorDir} {
		matches, err := filepath.Glob(filepath.Join(dir, "*", "*", "*.txt"))
		if err != nil {
			t.Fatal(err)
		}
		if len(matches) != 0 {
			t.Fatalf("expected no captures left under %s, found %v", dir, matches)
		}
		if _, err := os.Stat(filepath.Join(dir, "cron", "noop_1")); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("expected item capture directory removed under %s, got %v", dir, err)
		}
	}
}

func TestStderrOutputNacks(t *testing.T) {
	item := newItem(2)
	w := startWorker(t, item, `echo "boom" >&2; exit 0`, nil)
	waitExit(t, w)

	report := w.Report()
	if report.Action != worker.ActionNack || !report.Failed {
		t.Fatalf("unexpected report %#v", report)
	}
	if item.Attempts != 1 || item.Banned {
		t.Fatalf("expected attempts 1 and not banned, got %d banned=%v", item.Attempts, item.Banned)
	}
	data, err := os.ReadFile(report.ErrorPath)
	if err != nil {
		t.Fatalf("read error capture: %v", err)
	}
	if strings.TrimSpace(string(data)) != "boom" {
		t.Fatalf("unexpected error capture %q", data)
	}
}

func TestLastAttemptBans(t *testing.T) {
	item := newItem(1)
	w := startWorker(t, item, `echo "boom" >&2; exit 1`, nil)
	waitExit(t, w)

	report := w.Report()
	if report.Action != worker.ActionBan || !report.Failed {
		t.Fatalf("unexpected report %#v", report)
	}
	if item.Attempts != 0 || !item.Banned {
		t.Fatalf("expected banned with zero attempts, got %d banned=%v", item.Attempts, item.Banned)
	}
}

func TestNonZeroExitWithoutStderrAcks(t *testing.T) {
	w := startWorker(t, newItem(2), `exit 3`, nil)
	waitExit(t, w)

	if report := w.Report(); report.Action != worker.ActionAck {
		t.Fatalf("expected ack when stderr is empty, got %#v", report)
	}
	if w.ExitCode() != 3 {
		t.Fatalf("expected exit code 3, got %d", w.ExitCode())
	}
}

func TestKilledProcessRefundsAttempt(t *testing.T) {
	item := newItem(5)
	w := startWorker(t, item, `kill -9 $$; sleep 5`, nil)
	waitExit(t, w)

	if item.Attempts != 6 {
		t.Fatalf("expected attempts incremented to 6 after signal, got %d", item.Attempts)
	}
	report := w.Report()
	if !report.Failed || report.Action != worker.ActionNack {
		t.Fatalf("unexpected report %#v", report)
	}
	if item.Attempts != 5 {
		t.Fatalf("expected signaled run to leave attempts at 5, got %d", item.Attempts)
	}
	data, err := os.ReadFile(report.ErrorPath)
	if err != nil {
		t.Fatalf("read error capture: %v", err)
	}
	if !strings.Contains(string(data), "killed by signal 9") {
		t.Fatalf("expected synthesized error, got %q", data)
	}
	if w.ExitCode() != -1 {
		t.Fatalf("expected no exit code for signaled process, got %d", w.ExitCode())
	}
}

func TestKilledProcessWithoutForgiveness(t *testing.T) {
	item := newItem(5)
	w := startWorker(t, item, `kill -9 $$; sleep 5`, func(o *worker.Options) { o.ForgiveSignaled = false })
	waitExit(t, w)

	w.Report()
	if item.Attempts != 4 {
		t.Fatalf("expected attempts decremented to 4, got %d", item.Attempts)
	}
}

func TestStoppedProcessIsFinished(t *testing.T) {
	item := newItem(3)
	w := startWorker(t, item, `kill -STOP $$; sleep 5`, nil)
	waitExit(t, w)

	report := w.Report()
	if !report.Failed {
		t.Fatalf("expected stopped process reported as failed, got %#v", report)
	}
	if item.Attempts != 3 {
		t.Fatalf("expected attempt refunded, got %d", item.Attempts)
	}
	pid := w.PID()
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("second Finish: %v", err)
	}
	if _, err := os.Stat(filepath.Join("/proc", strconv.Itoa(pid))); err == nil {
		t.Fatalf("expected stopped process %d to be reaped", pid)
	}
}

func TestBeginTwiceFails(t *testing.T) {
	w := startWorker(t, newItem(3), `exit 0`, nil)
	if err := w.Begin(context.Background()); err == nil {
		t.Fatal("expected second Begin to fail")
	}
	waitExit(t, w)
}

func TestRunningIsFalseBeforeBegin(t *testing.T) {
	w, err := worker.New(newItem(3), worker.Options{})
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	if w.Running() {
		t.Fatal("expected unstarted worker not to be running")
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}
