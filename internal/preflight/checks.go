package preflight

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"procqueue/internal/config"
	"procqueue/internal/manager"
)

// Requirement defines an external binary procqueue relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
}

// CheckBinary reports whether req's command resolves on PATH or as a path.
func CheckBinary(req Requirement) Result {
	cmd := strings.TrimSpace(req.Command)
	if cmd == "" {
		return Result{Name: req.Name, Detail: "command not configured"}
	}
	resolved, err := exec.LookPath(cmd)
	if err != nil {
		detail := fmt.Sprintf("binary %q not found", cmd)
		if req.Description != "" {
			detail += " (" + req.Description + ")"
		}
		return Result{Name: req.Name, Detail: detail}
	}
	return Result{Name: req.Name, Passed: true, Detail: resolved}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckMaintenance reports whether the maintenance hold is active. An active
// hold is not a failure.
func CheckMaintenance(path string) Result {
	const name = "Maintenance"
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return Result{Name: name, Passed: true, Detail: "on (leasing held by " + path + ")"}
	case errors.Is(err, fs.ErrNotExist):
		return Result{Name: name, Passed: true, Detail: "off"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("stat %s: %v", path, err)}
	}
}

// CheckManagerLock reports whether a manager currently serves a scope
// overlapping queueName.
func CheckManagerLock(cfg *config.Config, queueName string) Result {
	const name = "Manager"
	running, err := manager.Probe(cfg, queueName)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("probe lock: %v", err)}
	}
	if running {
		return Result{Name: name, Passed: true, Detail: "running (" + cfg.LockPath(queueName) + ")"}
	}
	return Result{Name: name, Passed: true, Detail: "not running"}
}
