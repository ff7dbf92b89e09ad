package domain

import (
	"encoding/json"
	"fmt"
)

// MessageType tags the envelope kind on the wire.
type MessageType string

const (
	MessageStatus        MessageType = "status"
	MessageRequest       MessageType = "request"
	MessageResponse      MessageType = "response"
	MessageErrorResponse MessageType = "error-response"
)

// Status is a lifecycle signal sent spontaneously by an extension process.
type Status string

const (
	StatusReady Status = "ready"
	StatusExit  Status = "exit"
)

// Message is one envelope exchanged with an extension process.
// The set of implementations is closed: StatusMessage, RequestMessage,
// ResponseMessage and ErrorResponseMessage.
type Message interface {
	Type() MessageType
	sealed()
}

// StatusMessage reports ready or exit.
type StatusMessage struct {
	Status Status
}

// RequestMessage asks the extension to run an operation.
type RequestMessage struct {
	ID        string
	Operation string
	Data      json.RawMessage
}

// ResponseMessage carries the successful result of a request.
type ResponseMessage struct {
	ID   string
	Data json.RawMessage
}

// ErrorResponseMessage carries the failure of a request.
type ErrorResponseMessage struct {
	ID    string
	Error json.RawMessage
}

func (StatusMessage) Type() MessageType        { return MessageStatus }
func (RequestMessage) Type() MessageType       { return MessageRequest }
func (ResponseMessage) Type() MessageType      { return MessageResponse }
func (ErrorResponseMessage) Type() MessageType { return MessageErrorResponse }

func (StatusMessage) sealed()        {}
func (RequestMessage) sealed()       {}
func (ResponseMessage) sealed()      {}
func (ErrorResponseMessage) sealed() {}

// envelope is the flat wire form shared by all message kinds.
type envelope struct {
	Type      MessageType     `json:"type"`
	Status    Status          `json:"status,omitempty"`
	ID        string          `json:"id,omitempty"`
	Operation string          `json:"operation,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`
}

// EncodeMessage returns the JSON wire form of msg.
func EncodeMessage(msg Message) ([]byte, error) {
	var env envelope
	switch m := msg.(type) {
	case StatusMessage:
		env = envelope{Type: MessageStatus, Status: m.Status}
	case RequestMessage:
		env = envelope{Type: MessageRequest, ID: m.ID, Operation: m.Operation, Data: m.Data}
	case ResponseMessage:
		env = envelope{Type: MessageResponse, ID: m.ID, Data: m.Data}
	case ErrorResponseMessage:
		env = envelope{Type: MessageErrorResponse, ID: m.ID, Error: m.Error}
	default:
		return nil, fmt.Errorf("%w: cannot encode %T", ErrUnexpectedMessage, msg)
	}
	return json.Marshal(env)
}

// DecodeMessage parses one wire message.
// Unknown types, unknown statuses and missing ids fail with ErrUnexpectedMessage.
func DecodeMessage(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedMessage, err)
	}

	switch env.Type {
	case MessageStatus:
		if env.Status != StatusReady && env.Status != StatusExit {
			return nil, fmt.Errorf("%w: unknown status %q", ErrUnexpectedMessage, env.Status)
		}
		return StatusMessage{Status: env.Status}, nil
	case MessageRequest:
		if env.ID == "" || env.Operation == "" {
			return nil, fmt.Errorf("%w: request without id or operation", ErrUnexpectedMessage)
		}
		return RequestMessage{ID: env.ID, Operation: env.Operation, Data: env.Data}, nil
	case MessageResponse:
		if env.ID == "" {
			return nil, fmt.Errorf("%w: response without id", ErrUnexpectedMessage)
		}
		return ResponseMessage{ID: env.ID, Data: env.Data}, nil
	case MessageErrorResponse:
		if env.ID == "" {
			return nil, fmt.Errorf("%w: error response without id", ErrUnexpectedMessage)
		}
		return ErrorResponseMessage{ID: env.ID, Error: env.Error}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrUnexpectedMessage, env.Type)
	}
}
