package ffmpeg

import "time"

// RunResult captures the outcome of one encoder invocation.
type RunResult struct {
	ExitCode   int
	OutputPath string
	StderrTail string
	Duration   time.Duration
}

// IsSuccess returns true if the encoder exited with code 0.
func (r RunResult) IsSuccess() bool {
	return r.ExitCode == 0
}

// Capabilities is the result of checking the encoder binary.
type Capabilities struct {
	Available bool      `json:"available"`
	Version   string    `json:"version,omitempty"`
	Binary    string    `json:"binary,omitempty"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}
