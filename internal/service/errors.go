package service

import "fmt"

// ValidationError reports a user input that failed the entity rules.
// It is meant to be shown back on the input form, never to crash the
// session or the bot loop.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
