package worker

// Environment variables forming the launch contract between the manager and
// the runner subprocess.
const (
	EnvContainer = "PROCQUEUE_CONTAINER"
	EnvBroker    = "PROCQUEUE_BROKER"
	EnvJob       = "PROCQUEUE_JOB"
	EnvPayload   = "PROCQUEUE_PAYLOAD"
	EnvHash      = "PROCQUEUE_HASH"
	EnvRunID     = "PROCQUEUE_RUN_ID"
	EnvConfig    = "PROCQUEUE_CONFIG"
)
