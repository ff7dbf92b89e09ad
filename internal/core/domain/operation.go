package domain

import (
	"encoding/json"
	"fmt"
)

// Operation pairs an operation name with its input and output types.
// Calls and handlers are generic over an Operation, so a mismatched
// input or output is a compile error rather than a runtime surprise.
type Operation[I, O any] struct {
	name string
}

// NewOperation declares an operation. Names must be unique per protocol.
func NewOperation[I, O any](name string) Operation[I, O] {
	return Operation[I, O]{name: name}
}

// Name returns the wire name of the operation.
func (o Operation[I, O]) Name() string {
	return o.name
}

// EncodeInput marshals a request payload.
func (o Operation[I, O]) EncodeInput(in I) (json.RawMessage, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encoding %s input: %w", o.name, err)
	}
	return data, nil
}

// DecodeInput unmarshals a request payload. An absent payload yields the zero value.
func (o Operation[I, O]) DecodeInput(data json.RawMessage) (I, error) {
	var in I
	if isEmptyPayload(data) {
		return in, nil
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("%w: decoding %s input: %v", ErrInvalidInput, o.name, err)
	}
	return in, nil
}

// EncodeOutput marshals a response payload.
func (o Operation[I, O]) EncodeOutput(out O) (json.RawMessage, error) {
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encoding %s output: %w", o.name, err)
	}
	return data, nil
}

// DecodeOutput unmarshals a response payload. An absent payload yields the zero value.
func (o Operation[I, O]) DecodeOutput(data json.RawMessage) (O, error) {
	var out O
	if isEmptyPayload(data) {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%w: decoding %s output: %v", ErrUnexpectedMessage, o.name, err)
	}
	return out, nil
}

func isEmptyPayload(data json.RawMessage) bool {
	return len(data) == 0 || string(data) == "null"
}

// Empty is the input of operations that take no arguments.
type Empty struct{}

// Operations of the base protocol.
var (
	// OpGetSources lists the sources an extension can search.
	OpGetSources = NewOperation[Empty, []Source]("getSources")

	// OpSearch runs a query against an extension.
	OpSearch = NewOperation[SearchInput, []SearchResult]("search")
)
