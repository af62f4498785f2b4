// Package progress provides progress message parsing and step reduction for
// long-running backend operations.
package progress

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentinel progress values carried by terminal messages.
const (
	ProgressFailed    float64 = -1
	ProgressCompleted float64 = 100
)

// ConnectionErrorLabel labels the step synthesized when the progress stream
// breaks before a terminal message arrives.
const ConnectionErrorLabel = "Connection Error"

const errorPrefix = "Error: "

// ErrInvalidMessage is returned when a frame is not a valid progress message.
var ErrInvalidMessage = errors.New("invalid progress message")

// Message is one progress frame pushed by the backend for a request.
// EntityID is the id of the created entity when the backend reports it
// alongside the success sentinel.
type Message struct {
	Message  string  `json:"message"`
	Progress float64 `json:"progress"`
	EntityID string  `json:"serverId,omitempty"`
}

// IsSuccess reports whether the message carries the success sentinel.
func (m Message) IsSuccess() bool {
	return m.Progress == ProgressCompleted
}

// IsFailure reports whether the message carries the failure sentinel.
func (m Message) IsFailure() bool {
	return m.Progress == ProgressFailed
}

// IsTerminal reports whether no further messages are expected after m.
func (m Message) IsTerminal() bool {
	return m.IsSuccess() || m.IsFailure()
}

// Label returns the trimmed message text used as a step label.
func (m Message) Label() string {
	return strings.TrimSpace(m.Message)
}

// FailureMessage builds the failure sentinel for the given text.
func FailureMessage(text string) Message {
	return Message{Message: text, Progress: ProgressFailed}
}

// ParseMessage decodes a single frame received on a progress channel.
// Byte counters and other unknown fields are ignored.
func ParseMessage(data []byte) (Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return Message{}, fmt.Errorf("%w: expected JSON object", ErrInvalidMessage)
	}

	var raw struct {
		Message  *string  `json:"message"`
		Progress *float64 `json:"progress"`
		ServerID string   `json:"serverId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if raw.Progress == nil {
		return Message{}, fmt.Errorf("%w: missing progress", ErrInvalidMessage)
	}

	msg := Message{Progress: *raw.Progress}
	if raw.Message != nil {
		msg.Message = *raw.Message
	}
	// The daemon reports some creation failures as "Error: ..." at 0%.
	if msg.Progress == 0 && strings.HasPrefix(msg.Label(), errorPrefix) {
		msg.Progress = ProgressFailed
	}
	if msg.IsSuccess() {
		msg.EntityID = raw.ServerID
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Validate checks that the progress value is a percentage or a sentinel.
func (m Message) Validate() error {
	if m.Progress < ProgressFailed || m.Progress > ProgressCompleted {
		return fmt.Errorf("%w: progress %v out of range", ErrInvalidMessage, m.Progress)
	}
	if m.Progress < 0 && !m.IsFailure() {
		return fmt.Errorf("%w: negative progress %v", ErrInvalidMessage, m.Progress)
	}
	return nil
}
