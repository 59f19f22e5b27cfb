// Package protocol implements the widget's wire contract: JSON text frames
// carrying a "type" discriminator and an optional "data" payload. Inbound
// frames decode into a closed set of Event variants; outbound intents are
// serialized by the Encode functions. The package holds no state.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Frame type constants
// ---------------------------------------------------------------------------

// Server -> Client frame types.
const (
	TypeError      = "error"
	TypeUsers      = "users"
	TypeConnect    = "connect"
	TypeDisconnect = "disconnect"
)

// Client -> Server frame types.
const (
	TypeAddUser    = "addUser"
	TypeDeleteUser = "deleteUser"
)

// TypeAddMessage flows in both directions: the client sends it to post a
// message and the server broadcasts it back (with the payload nested one
// level deeper, see MessageAdded).
const TypeAddMessage = "addMes"

// TimestampLayout is the display form messages carry on the wire: day-first
// wall-clock date plus time at minute precision, no timezone. The server
// treats it as an opaque string.
const TimestampLayout = "02.01.2006 15:04"

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// User is one entry of an online-user snapshot.
type User struct {
	Name string `json:"name"`
}

// Message is a chat message as it appears on the wire. Body maps to the
// "message" field; Time is the sender's pre-formatted timestamp.
type Message struct {
	Name string `json:"name"`
	Body string `json:"message"`
	Time string `json:"time"`
}

// ---------------------------------------------------------------------------
// Inbound events
// ---------------------------------------------------------------------------

// Event is a server push decoded from one inbound frame. The set of variants
// is closed: ErrorEvent, UsersSnapshot, MessageAdded, PeerConnected and
// PeerDisconnected. Anything else fails to decode.
type Event interface {
	// Kind returns the wire type tag the event was decoded from.
	Kind() string
	isEvent()
}

// ErrorEvent signals the server rejected the claimed identity (nickname
// collision). It carries no payload.
type ErrorEvent struct{}

// UsersSnapshot is the authoritative online-user list. Each snapshot replaces
// the previous one wholesale; it is never an incremental diff.
type UsersSnapshot struct {
	Users []User
}

// MessageAdded is the server's broadcast of a chat message, including the
// echo of the client's own sends.
type MessageAdded struct {
	Message Message
}

// PeerConnected is an informational peer-joined notice. The payload shape is
// server-defined and is passed through verbatim for logging.
type PeerConnected struct {
	Info json.RawMessage
}

// PeerDisconnected is the peer-left counterpart of PeerConnected.
type PeerDisconnected struct {
	Info json.RawMessage
}

func (ErrorEvent) Kind() string       { return TypeError }
func (UsersSnapshot) Kind() string    { return TypeUsers }
func (MessageAdded) Kind() string     { return TypeAddMessage }
func (PeerConnected) Kind() string    { return TypeConnect }
func (PeerDisconnected) Kind() string { return TypeDisconnect }

func (ErrorEvent) isEvent()       {}
func (UsersSnapshot) isEvent()    {}
func (MessageAdded) isEvent()     {}
func (PeerConnected) isEvent()    {}
func (PeerDisconnected) isEvent() {}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// envelope holds the type discriminator and the raw payload for deferred
// parsing into the variant-specific shape.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode parses one inbound text frame into an Event. Frames that are not
// JSON objects, carry an unknown type tag, or carry a payload that does not
// match the tag's contract are a decode error — never silently dropped.
func Decode(frame []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("protocol: failed to parse frame: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("protocol: missing or empty \"type\" field")
	}

	switch env.Type {
	case TypeError:
		return ErrorEvent{}, nil

	case TypeUsers:
		if len(env.Data) == 0 {
			return nil, fmt.Errorf("protocol: %q frame has no payload", env.Type)
		}
		var users []User
		if err := json.Unmarshal(env.Data, &users); err != nil {
			return nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
		}
		if users == nil {
			return nil, fmt.Errorf("protocol: %q payload is not a user list", env.Type)
		}
		return UsersSnapshot{Users: users}, nil

	case TypeAddMessage:
		// The broadcast payload is double-nested: the server wraps the
		// client's {name, message, time} object in another "data" key.
		var payload struct {
			Data *Message `json:"data"`
		}
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
		}
		if payload.Data == nil {
			return nil, fmt.Errorf("protocol: %q frame is missing the nested data object", env.Type)
		}
		msg := *payload.Data
		if msg.Name == "" || msg.Body == "" || msg.Time == "" {
			return nil, fmt.Errorf("protocol: %q payload is missing name, message or time", env.Type)
		}
		return MessageAdded{Message: msg}, nil

	case TypeConnect:
		return PeerConnected{Info: env.Data}, nil

	case TypeDisconnect:
		return PeerDisconnected{Info: env.Data}, nil

	default:
		return nil, fmt.Errorf("protocol: unknown frame type: %q", env.Type)
	}
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

type joinFrame struct {
	Type string `json:"type"`
	User string `json:"user"`
}

type leaveFrame struct {
	Type string `json:"type"`
	User string `json:"user"`
}

type messageFrame struct {
	Type string  `json:"type"`
	Data Message `json:"data"`
}

// EncodeJoin serializes the join intent claiming the given nickname.
func EncodeJoin(nick string) ([]byte, error) {
	out, err := json.Marshal(joinFrame{Type: TypeAddUser, User: nick})
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal join frame: %w", err)
	}
	return out, nil
}

// EncodeMessage serializes a send-message intent. The timestamp is formatted
// here from the caller's clock reading; the codec owns only the formatting,
// not the clock source.
func EncodeMessage(name, body string, at time.Time) ([]byte, error) {
	out, err := json.Marshal(messageFrame{
		Type: TypeAddMessage,
		Data: Message{Name: name, Body: body, Time: FormatTimestamp(at)},
	})
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal message frame: %w", err)
	}
	return out, nil
}

// EncodeLeave serializes the best-effort leave notice sent on teardown.
func EncodeLeave(nick string) ([]byte, error) {
	out, err := json.Marshal(leaveFrame{Type: TypeDeleteUser, User: nick})
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal leave frame: %w", err)
	}
	return out, nil
}

// FormatTimestamp renders a clock reading in the wire's display form.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}
