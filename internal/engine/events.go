package engine

import (
	"encoding/json"
	"errors"
	"strings"
)

// EventKind tags a parsed stdout line.
type EventKind int

const (
	EventOther EventKind = iota
	EventText
	EventError
)

// ErrNotEvent is returned for lines that are not JSON objects.
var ErrNotEvent = errors.New("line is not a structured event")

// Event is one structured line emitted by the liveness check command.
// Message is only meaningful for EventError.
type Event struct {
	Kind    EventKind
	Message string
}

type rawEvent struct {
	Type  string          `json:"type"`
	Error json.RawMessage `json:"error"`
}

type rawError struct {
	Data    json.RawMessage `json:"data"`
	Message json.RawMessage `json:"message"`
}

type rawErrorData struct {
	Message json.RawMessage `json:"message"`
}

// ParseEvent decodes a single line of command output.
func ParseEvent(line string) (Event, error) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] != '{' {
		return Event{}, ErrNotEvent
	}
	var raw rawEvent
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Event{}, ErrNotEvent
	}

	switch raw.Type {
	case "text":
		return Event{Kind: EventText}, nil
	case "error":
		return Event{Kind: EventError, Message: errorMessage(raw.Error)}, nil
	default:
		return Event{Kind: EventOther}, nil
	}
}

// errorMessage prefers error.data.message when data is an object and falls
// back to error.message otherwise. Non-string messages yield "".
func errorMessage(payload json.RawMessage) string {
	if !isObject(payload) {
		return ""
	}
	var errObj rawError
	if err := json.Unmarshal(payload, &errObj); err != nil {
		return ""
	}
	if isObject(errObj.Data) {
		var data rawErrorData
		if err := json.Unmarshal(errObj.Data, &data); err != nil {
			return ""
		}
		return stringValue(data.Message)
	}
	return stringValue(errObj.Message)
}

func isObject(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "{")
}

func stringValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
