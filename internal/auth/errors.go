package auth

import "fmt"

// Error is a sign-in/credential failure. It carries the upstream HTTP
// status and raw response body when available so callers can surface them
// for diagnosis.
type Error struct {
	Message     string
	StatusCode  int
	RawResponse string
	Err         error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }
