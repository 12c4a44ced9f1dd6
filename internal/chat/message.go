// Package chat implements the chat widget protocol: per-connection sessions,
// the wire codec, and delayed proactive suggestions.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Wire tags.
const (
	TypeChatMessage   = "chatMessage"
	TypeContextUpdate = "contextUpdate"
	TypeAIResponse    = "aiResponse"
	TypeTyping        = "typing"
	TypeSuggestion    = "suggestion"
	TypeError         = "error"
)

// maxSuggestions bounds a suggestion batch on the wire.
const maxSuggestions = 3

// ErrMalformed is matched by every decode failure.
var ErrMalformed = errors.New("malformed message")

// UnknownTypeError reports an envelope whose tag is not accepted from clients.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown message type: %s", e.Type)
}

// Is makes UnknownTypeError match ErrMalformed.
func (e *UnknownTypeError) Is(target error) bool {
	return target == ErrMalformed
}

// Message is one wire message. The set of implementations is closed.
type Message interface {
	Type() string
	payload() any
}

// ChatMessage is a visitor question.
type ChatMessage struct {
	Message string `json:"message"`
}

// ContextUpdate tells the server which page the visitor is on.
type ContextUpdate struct {
	CurrentPage string `json:"currentPage"`
	ProjectID   string `json:"projectId,omitempty"`
}

// AIResponse carries the assistant's reply.
type AIResponse struct {
	Message string `json:"message"`
}

// Typing toggles the typing indicator.
type Typing struct {
	IsTyping bool `json:"isTyping"`
}

// Suggestion carries up to three proactive follow-up questions.
type Suggestion struct {
	Suggestions []string `json:"suggestions"`
}

// ErrorMessage reports a problem with a client message.
type ErrorMessage struct {
	Message string `json:"message"`
}

func (ChatMessage) Type() string   { return TypeChatMessage }
func (ContextUpdate) Type() string { return TypeContextUpdate }
func (AIResponse) Type() string    { return TypeAIResponse }
func (Typing) Type() string        { return TypeTyping }
func (Suggestion) Type() string    { return TypeSuggestion }
func (ErrorMessage) Type() string  { return TypeError }

func (m ChatMessage) payload() any   { return m }
func (m ContextUpdate) payload() any { return m }
func (m AIResponse) payload() any    { return m }
func (m Typing) payload() any        { return m }
func (m ErrorMessage) payload() any  { return m }

func (m Suggestion) payload() any {
	s := m.Suggestions
	if s == nil {
		s = []string{}
	}
	if len(s) > maxSuggestions {
		s = s[:maxSuggestions]
	}
	return Suggestion{Suggestions: s}
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Decode parses a client message. Only chatMessage and contextUpdate are
// accepted; every failure matches ErrMalformed.
func Decode(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch env.Type {
	case TypeChatMessage:
		var p struct {
			Message *string `json:"message"`
		}
		if err := decodePayload(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.Message == nil {
			return nil, fmt.Errorf("%w: chatMessage requires message", ErrMalformed)
		}
		return ChatMessage{Message: *p.Message}, nil
	case TypeContextUpdate:
		var p struct {
			CurrentPage *string `json:"currentPage"`
			ProjectID   *string `json:"projectId"`
		}
		if err := decodePayload(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.CurrentPage == nil {
			return nil, fmt.Errorf("%w: contextUpdate requires currentPage", ErrMalformed)
		}
		msg := ContextUpdate{CurrentPage: *p.CurrentPage}
		if p.ProjectID != nil {
			msg.ProjectID = *p.ProjectID
		}
		return msg, nil
	default:
		return nil, &UnknownTypeError{Type: env.Type}
	}
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%w: missing payload", ErrMalformed)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Encode serializes msg into its wire envelope.
func Encode(msg Message) []byte {
	data, err := json.Marshal(outbound{Type: msg.Type(), Payload: msg.payload()})
	if err != nil {
		// Payloads are plain strings, bools and string slices.
		panic(fmt.Sprintf("chat: encode %s: %v", msg.Type(), err))
	}
	return data
}
