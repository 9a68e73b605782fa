package robopoint

import (
	"encoding/json"
	"time"
)

// Message is a validated robot message as it travels through the stream.
type Message struct {
	ID      string          `json:"id"`
	Version string          `json:"version"`
	RoboID  string          `json:"roboId"`
	Purpose string          `json:"purpose"`
	Time    time.Time       `json:"messageTime"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// DecodeMessage parses a stream record payload. Payloads that are not JSON or
// that lack an id or robo id are reported as invalid message data.
func DecodeMessage(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, &InvalidMessageDataError{Reason: "record is not a message", Err: err}
	}
	if m.ID == "" {
		return Message{}, &InvalidMessageDataError{Reason: "record has no message id"}
	}
	if m.RoboID == "" {
		return Message{}, &InvalidMessageDataError{Reason: "record has no robo id"}
	}
	return m, nil
}
