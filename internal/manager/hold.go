package manager

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileHold holds leasing while the configured maintenance file exists.
type FileHold struct {
	Source ConfigSource
}

// Held implements Hold.
func (h FileHold) Held() bool {
	cfg := h.Source.Current()
	if cfg == nil || strings.TrimSpace(cfg.Paths.MaintenanceFile) == "" {
		return false
	}
	_, err := os.Stat(cfg.Paths.MaintenanceFile)
	return err == nil
}

// SetMaintenance creates or removes the maintenance file at path.
func SetMaintenance(path string, on bool) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("paths.maintenance_file is not configured")
	}
	if !on {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove maintenance file: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create maintenance directory: %w", err)
	}
	stamp := time.Now().UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(path, []byte(stamp), 0o644); err != nil {
		return fmt.Errorf("write maintenance file: %w", err)
	}
	return nil
}
