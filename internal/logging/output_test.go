package logging_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"procqueue/internal/logging"
)

func writeCapture(t *testing.T, body string) (string, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "output", "command_echo")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, "1_100.txt")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write capture: %v", err)
	}
	return dir, path
}

func TestOutputStreamerPrefixesAndRemoves(t *testing.T) {
	dir, path := writeCapture(t, "first\nsecond\n")

	var buf bytes.Buffer
	streamer := logging.NewOutputStreamer(&buf, false)
	if err := streamer.Stream(path, "command_echo"); err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if got, want := buf.String(), "command_echo first\ncommand_echo second\n"; got != want {
		t.Fatalf("unexpected stream output: got %q want %q", got, want)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected capture removed, stat err=%v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected empty capture dir removed, stat err=%v", err)
	}
}

func TestOutputStreamerKeepsWhenRequested(t *testing.T) {
	_, path := writeCapture(t, "kept")

	var buf bytes.Buffer
	streamer := logging.NewOutputStreamer(&buf, false)
	streamer.SetKeep(true)
	if err := streamer.Stream(path, ""); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if buf.String() != "kept\n" {
		t.Fatalf("unexpected stream output %q", buf.String())
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected capture kept: %v", err)
	}
}

func TestOutputStreamerIgnoresMissingFiles(t *testing.T) {
	var buf bytes.Buffer
	streamer := logging.NewOutputStreamer(&buf, false)
	if err := streamer.Stream("", "x"); err != nil {
		t.Fatalf("empty path: %v", err)
	}
	if err := streamer.Stream(filepath.Join(t.TempDir(), "missing.txt"), "x"); err != nil {
		t.Fatalf("missing path: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}
