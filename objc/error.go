package objc

import "fmt"

// Error is a decoded NSError. The framework hands errors to delegate
// callbacks as objects; this copy outlives the callback.
type Error struct {
	Domain        string
	Code          int
	Description   string
	FailureReason string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s (%d)", e.Domain, e.Code)
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.FailureReason != "" {
		msg += " (" + e.FailureReason + ")"
	}
	return msg
}

// Exception is an NSException caught by the shim layer instead of being
// allowed to unwind through Go frames.
type Exception struct {
	Name     string
	Reason   string
	Selector string
}

func (e *Exception) Error() string {
	if e.Selector != "" {
		return fmt.Sprintf("objc exception %s in -%s: %s", e.Name, e.Selector, e.Reason)
	}
	return fmt.Sprintf("objc exception %s: %s", e.Name, e.Reason)
}
