package widget

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when a submission is made while another is streaming.
var ErrBusy = errors.New("widget: a reply is still streaming")

// RateLimitedError reports a 429 from the gateway.
type RateLimitedError struct {
	RetryAfter int
	Message    string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %ds", e.RetryAfter)
}

// RejectedError reports input refused by local or server-side validation.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "message rejected: " + e.Reason
}

// ServerError reports any other non-success gateway response.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
}
