package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kalambet/emconsole/internal/emergency"
)

// Message types pushed by the backend.
const (
	TypeIncoming = "incoming"
	TypeStatus   = "status"
	TypeRemove   = "remove"
)

var (
	// ErrMalformed marks a payload that is not valid JSON or lacks the
	// fields its type requires.
	ErrMalformed = errors.New("malformed stream message")
	// ErrUnrecognized marks a well-formed payload with an unknown type.
	ErrUnrecognized = errors.New("unrecognized stream message type")
)

// Message is one decoded change notification.
type Message struct {
	Type string
	// Emergency is set for incoming messages.
	Emergency emergency.Record
	// CallSid is the target id for status and remove messages.
	CallSid string
	// Status is the new status for status messages.
	Status string
	// Raw is the undecoded payload.
	Raw json.RawMessage
}

// TargetID returns the id of the record the message refers to.
func (m Message) TargetID() string {
	if m.Type == TypeIncoming {
		return m.Emergency.ID
	}
	return m.CallSid
}

type wireMessage struct {
	Type      string          `json:"type"`
	Emergency json.RawMessage `json:"emergency"`
	CallSid   string          `json:"callSid"`
	Status    string          `json:"status"`
}

// DecodeMessage parses one event payload.
func DecodeMessage(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	msg := Message{Type: w.Type, Raw: append(json.RawMessage(nil), data...)}

	switch w.Type {
	case TypeIncoming:
		if len(w.Emergency) == 0 {
			return Message{}, fmt.Errorf("%w: incoming without emergency", ErrMalformed)
		}
		rec, err := emergency.Decode(w.Emergency)
		if err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		msg.Emergency = rec
	case TypeStatus:
		if w.CallSid == "" || w.Status == "" {
			return Message{}, fmt.Errorf("%w: status requires callSid and status", ErrMalformed)
		}
		msg.CallSid = w.CallSid
		msg.Status = w.Status
	case TypeRemove:
		if w.CallSid == "" {
			return Message{}, fmt.Errorf("%w: remove requires callSid", ErrMalformed)
		}
		msg.CallSid = w.CallSid
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnrecognized, w.Type)
	}
	return msg, nil
}
