package ipc

// Commands accepted by the owner process.
const (
	CommandStatus = "status"
	CommandPhoto  = "photo"
	CommandVoice  = "voice"
	CommandStop   = "stop"
	CommandReset  = "reset"
)

// KnownCommand reports whether cmd is part of the socket protocol.
func KnownCommand(cmd string) bool {
	switch cmd {
	case CommandStatus, CommandPhoto, CommandVoice, CommandStop, CommandReset:
		return true
	default:
		return false
	}
}

type Request struct {
	Command string `json:"command"`
}

// Response reports the owner's state after handling a request. Run and
// Failure describe the most recent pipeline run when one exists.
type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Run     string `json:"run,omitempty"`
	Failure string `json:"failure,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
