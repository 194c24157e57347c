package feed

import (
	"errors"
	"fmt"
)

var (
	ErrorClosed       = errors.New("feed closed")
	ErrorMissingToken = errors.New("provisional item has no correlation token")
	ErrorNotOpen      = errors.New("feed not open")
	ErrorReadOnly     = errors.New("feed does not accept sends")
)

// SubscriptionError reports that the event stream for a channel could not be
// established or was lost.
type SubscriptionError struct {
	Channel string
	Err     error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription %s: %v", e.Channel, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// SendError reports a rejected or timed out write. Content holds the original
// text so the caller can offer a retry.
type SendError struct {
	Content string
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("sending: %v", e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

type MalformedEventError struct {
	Channel string
	Err     error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event on %s: %v", e.Channel, e.Err)
}

func (e *MalformedEventError) Unwrap() error {
	return e.Err
}

// ValidationError blocks an action before any network call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
