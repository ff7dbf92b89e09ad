package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Domain errors represent extension host failures.
// Wrap them with fmt.Errorf("...: %w") to add context; callers match with errors.Is.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// Extension Process Errors.

	// ErrSpawnFailed indicates the extension process could not be started.
	// It is reported through the exit path, never returned from construction.
	ErrSpawnFailed = errors.New("extension process failed to start")

	// ErrNotRunning indicates a call was attempted on an extension that is
	// not ready or has terminated. Such calls are never sent over the wire.
	ErrNotRunning = errors.New("extension not running")

	// ErrUnexpectedMessage indicates a malformed or unrecognised message on the channel.
	ErrUnexpectedMessage = errors.New("unexpected message")

	// ErrRequestTimeout indicates no response arrived within the request timeout.
	ErrRequestTimeout = errors.New("extension request timed out")

	// ErrRegistryClosed indicates the extension registry has been shut down.
	ErrRegistryClosed = errors.New("extension registry closed")
)

// RemoteError is a failure reported by the extension itself for one request.
// Payload holds the error value exactly as the extension sent it.
type RemoteError struct {
	ExtensionID ExtensionID
	Operation   string
	Payload     json.RawMessage
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("extension %q %s failed: %s", e.ExtensionID, e.Operation, e.Message())
}

// Message returns a readable form of the payload.
// A JSON string or an object with a "message" field is unwrapped; anything else is returned raw.
func (e *RemoteError) Message() string {
	if len(e.Payload) == 0 {
		return "unknown error"
	}

	var s string
	if err := json.Unmarshal(e.Payload, &s); err == nil {
		return s
	}

	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(e.Payload, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}

	return string(e.Payload)
}
