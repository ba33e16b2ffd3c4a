package qwen

import "fmt"

// Error carries the upstream status code and raw body alongside the
// message so callers can surface provider failures verbatim.
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

func (e *Error) Unwrap() error {
	return e.Err
}
