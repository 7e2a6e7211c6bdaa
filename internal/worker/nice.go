package worker

import (
	"os"
	"os/exec"
	"runtime"
	"strconv"
)

const (
	minNiceness = -20
	maxNiceness = 19
)

// Niceness maps an item priority onto a scheduling niceness. Priority 5 is
// neutral; lower priorities run with higher CPU preference.
func Niceness(priority int) int {
	n := 4*priority - 20
	if n < minNiceness {
		n = minNiceness
	}
	if n > maxNiceness {
		n = maxNiceness
	}
	return n
}

var (
	lookPath = exec.LookPath
	geteuid  = os.Geteuid
)

// wrapNice prefixes args with a nice invocation when the platform supports it.
// Unprivileged processes cannot raise their priority, so negative values are
// clamped to zero and a zero adjustment is omitted.
func wrapNice(args []string, priority int) []string {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		return args
	}
	niceBin, err := lookPath("nice")
	if err != nil {
		return args
	}
	n := Niceness(priority)
	if n < 0 && geteuid() != 0 {
		n = 0
	}
	if n == 0 {
		return args
	}
	wrapped := make([]string, 0, len(args)+3)
	wrapped = append(wrapped, niceBin, "-n", strconv.Itoa(n))
	return append(wrapped, args...)
}
