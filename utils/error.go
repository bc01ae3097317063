package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrorKind is the closed set of failure kinds the API surfaces. Handlers map
// kinds to HTTP statuses; clients key off the kind, not the message.
type ErrorKind string

const (
	ErrKindNotFound        ErrorKind = "NOT_FOUND"
	ErrKindInvalidState    ErrorKind = "INVALID_STATE"
	ErrKindForbidden       ErrorKind = "FORBIDDEN"
	ErrKindSodViolation    ErrorKind = "SOD_VIOLATION"
	ErrKindAlreadyApproved ErrorKind = "ALREADY_APPROVED"
	ErrKindConflict        ErrorKind = "CONFLICT"
	ErrKindPersistence     ErrorKind = "PERSISTENCE_FAILURE"
)

type RegistryError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *RegistryError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

func NewRegistryError(kind ErrorKind, message string) *RegistryError {
	return &RegistryError{Kind: kind, Message: message}
}

// WrapPersistence tags an underlying store error. The caller is guaranteed the
// enclosing transaction rolled back; the message stays generic on purpose.
func WrapPersistence(err error) *RegistryError {
	return &RegistryError{Kind: ErrKindPersistence, Message: "persistence failure", Err: err}
}

// KindOf classifies any error into the taxonomy. Unknown errors are treated as
// persistence failures so raw internals never leak as business outcomes.
func KindOf(err error) ErrorKind {
	var re *RegistryError
	if errors.As(err, &re) {
		return re.Kind
	}
	if errors.Is(err, ErrorRecordNotFound) {
		return ErrKindNotFound
	}
	return ErrKindPersistence
}
