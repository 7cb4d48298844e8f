package llm

import "errors"

// ErrMissingAPIKey is wrapped by InitializationError when no credential is configured.
var ErrMissingAPIKey = errors.New("environment variable not set")

// InitializationError reports a credential or configuration that is unavailable.
type InitializationError struct {
	Msg string
	Err error
}

func (e *InitializationError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *InitializationError) Unwrap() error { return e.Err }

// APIError reports a failed remote call, an unusable response, or generated
// code rejected by validation. Callers distinguish the cases by message only.
type APIError struct {
	Msg string
	Err error
}

func (e *APIError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *APIError) Unwrap() error { return e.Err }
