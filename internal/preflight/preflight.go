package preflight

import (
	"context"
	"os"

	"procqueue/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every applicable preflight check for cfg. queueName selects
// the manager lock to probe.
func RunAll(ctx context.Context, cfg *config.Config, queueName string) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckRunner(cfg.Manager.Runner),
	}
	if cfg.Manager.UseNice {
		results = append(results, CheckBinary(Requirement{
			Name:        "nice",
			Command:     "nice",
			Description: "Required when manager.use_nice is set",
		}))
	}
	if cfg.Paths.MaintenanceFile != "" {
		results = append(results, CheckMaintenance(cfg.Paths.MaintenanceFile))
	}
	results = append(results, CheckManagerLock(cfg, queueName))

	if err := ctx.Err(); err != nil {
		results = append(results, Result{Name: "Preflight", Detail: err.Error()})
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// CheckRunner verifies the launch command. An empty runner means this
// executable, which must resolve.
func CheckRunner(runner []string) Result {
	const name = "Runner"
	if len(runner) == 0 {
		self, err := os.Executable()
		if err != nil {
			return Result{Name: name, Detail: "cannot resolve own executable: " + err.Error()}
		}
		return Result{Name: name, Passed: true, Detail: self + " exec"}
	}
	return CheckBinary(Requirement{Name: name, Command: runner[0]})
}
