package core

import "fmt"

// User-facing messages for input problems caught before validation.
const (
	MsgNoFile       = "No file uploaded"
	MsgUnreadable   = "Error: Could not read CSV file."
	msgMissingField = "Error: Missing required field '%s'."
)

// InputKind classifies a rejected request.
type InputKind string

const (
	InputMissingFile  InputKind = "missing_file"
	InputMissingField InputKind = "missing_field"
	InputUnreadable   InputKind = "unreadable_file"
	InputInvalid      InputKind = "validation"
	InputBadWeights   InputKind = "invalid_weights"
)

// InputError rejects a request before any work is done. Message is returned
// to the client verbatim; Err carries the underlying cause for logs.
type InputError struct {
	Kind    InputKind
	Message string
	Err     error
}

func (e *InputError) Error() string {
	return e.Message
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// MissingField reports an absent form field.
func MissingField(name string) *InputError {
	return &InputError{
		Kind:    InputMissingField,
		Message: fmt.Sprintf(msgMissingField, name),
	}
}
