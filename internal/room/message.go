package room

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Inbound frame types.
const (
	TypeChat     = "chat"
	TypeEnd      = "end"
	TypePassword = "password"
)

// Outbound frame types.
const (
	TypeEnded      = "ended"
	TypeUserLeft   = "userLeft"
	TypeAuthOK     = "authOk"
	TypeAuthFailed = "authFailed"
	TypeError      = "error"
)

// Error frame codes.
const (
	CodeNotFound     = "not_found"
	CodeExpired      = "expired"
	CodeNotOpen      = "not_open"
	CodeForbidden    = "forbidden"
	CodeAuthRequired = "auth_required"
	CodeTooManyTries = "too_many_attempts"
	CodeAuthTimeout  = "auth_timeout"
	CodeMalformed    = "malformed"
	CodeUnknownType  = "unknown_type"
	CodePersistence  = "persistence"
	CodeInternal     = "internal"
)

var (
	// ErrMalformed is returned for frames that are not a JSON object.
	ErrMalformed = errors.New("room: malformed frame")
	// ErrUnknownType is returned for frames whose type tag is not recognized.
	ErrUnknownType = errors.New("room: unknown message type")
)

// Inbound is a decoded client frame: one of Chat, End or Password.
type Inbound interface {
	inbound()
}

// Chat is a chat line from a participant.
type Chat struct {
	DisplayName string
	Message     string
}

// End asks the server to terminate the room.
type End struct{}

// Password is an authentication attempt.
type Password struct {
	Password string
}

func (Chat) inbound()     {}
func (End) inbound()      {}
func (Password) inbound() {}

type inboundFrame struct {
	Type        string  `json:"type"`
	DisplayName string  `json:"displayName"`
	Message     string  `json:"message"`
	Text        string  `json:"text"`
	Password    *string `json:"password"`
}

// DecodeInbound parses a client frame. A frame without a type but with a password field is an
// authentication attempt. Unknown tags are rejected with ErrUnknownType.
func DecodeInbound(data []byte) (Inbound, error) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch f.Type {
	case TypeChat:
		msg := f.Message
		if msg == "" {
			msg = f.Text
		}
		return Chat{DisplayName: f.DisplayName, Message: msg}, nil
	case TypeEnd:
		return End{}, nil
	case TypePassword, "":
		if f.Password == nil {
			if f.Type == "" {
				return nil, fmt.Errorf("%w: missing type", ErrUnknownType)
			}
			return nil, fmt.Errorf("%w: password frame without password", ErrMalformed)
		}
		return Password{Password: *f.Password}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, strings.TrimSpace(f.Type))
	}
}

// Outbound is a server frame. Fields not used by a type are omitted.
type Outbound struct {
	Type     string `json:"type"`
	Name     string `json:"name,omitempty"`
	Message  string `json:"message,omitempty"`
	Redirect bool   `json:"redirect,omitempty"`
	Code     string `json:"code,omitempty"`
}

// Encode marshals o. Outbound contains only strings and bools, so marshalling cannot fail.
func (o Outbound) Encode() []byte {
	b, _ := json.Marshal(o)
	return b
}

// ChatFrame is relayed to the other members of a room.
func ChatFrame(name, message string) []byte {
	return Outbound{Type: TypeChat, Name: name, Message: message}.Encode()
}

// EndedFrame is the final frame every member receives when a room ends.
func EndedFrame() []byte {
	return Outbound{Type: TypeEnded, Message: "The meeting has ended. Redirecting...", Redirect: true}.Encode()
}

// UserLeftFrame tells the remaining members that someone disconnected.
func UserLeftFrame(name string) []byte {
	return Outbound{Type: TypeUserLeft, Name: name}.Encode()
}

// AuthOKFrame confirms the room secret.
func AuthOKFrame() []byte {
	return Outbound{Type: TypeAuthOK}.Encode()
}

// AuthFailedFrame re-prompts for the room secret.
func AuthFailedFrame(message string) []byte {
	return Outbound{Type: TypeAuthFailed, Message: message}.Encode()
}

// ErrorFrame reports a failure to the connection that caused it.
func ErrorFrame(code, message string) []byte {
	return Outbound{Type: TypeError, Code: code, Message: message}.Encode()
}
