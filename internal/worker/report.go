package worker

// Action is the store transition a finished worker asks for.
type Action string

const (
	ActionAck  Action = "ack"
	ActionNack Action = "nack"
	ActionBan  Action = "ban"
)

// Report is the classified outcome of one subprocess run.
type Report struct {
	Action     Action
	OutputPath string
	ErrorPath  string
	Failed     bool
}
