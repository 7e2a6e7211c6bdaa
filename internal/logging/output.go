package logging

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"procqueue/internal/fileutil"
)

const maxCapturedLine = 1024 * 1024

// OutputStreamer copies captured worker output to a sink, prefixing every line
// with the item hash. Unless keep is set, a streamed file is deleted afterwards
// together with its directory once that directory is empty.
type OutputStreamer struct {
	mu   sync.Mutex
	w    io.Writer
	keep bool
}

// NewOutputStreamer returns a streamer writing to w.
func NewOutputStreamer(w io.Writer, keep bool) *OutputStreamer {
	if w == nil {
		w = os.Stdout
	}
	return &OutputStreamer{w: w, keep: keep}
}

// SetKeep toggles whether streamed files are retained.
func (s *OutputStreamer) SetKeep(keep bool) {
	s.mu.Lock()
	s.keep = keep
	s.mu.Unlock()
}

// Stream writes the file at path to the sink. A missing or empty path is a no-op.
func (s *OutputStreamer) Stream(path, hash string) error {
	if path == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open captured output: %w", err)
	}

	bw := bufio.NewWriter(s.w)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxCapturedLine)
	for scanner.Scan() {
		if hash != "" {
			_, _ = bw.WriteString(hash)
			_ = bw.WriteByte(' ')
		}
		_, _ = bw.Write(scanner.Bytes())
		_ = bw.WriteByte('\n')
	}
	scanErr := scanner.Err()
	_ = f.Close()
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write captured output: %w", err)
	}
	if scanErr != nil {
		return fmt.Errorf("read captured output: %w", scanErr)
	}

	if !s.keep {
		if err := fileutil.RemoveWithEmptyParent(path); err != nil {
			return fmt.Errorf("remove captured output: %w", err)
		}
	}
	return nil
}
