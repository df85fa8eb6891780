package fstools

import (
	"encoding/json"
	"errors"

	"github.com/cocommand/cocommand/internal/cocoerr"
	"github.com/cocommand/cocommand/internal/session"
)

var errEmptyQuery = errors.New("query must not be empty")
var errEmptyPath = errors.New("path must not be empty")

// invalidInputError marks a tool input error as the caller's fault: bad
// path, malformed query, missing required field.
type invalidInputError struct{ cause error }

func (e invalidInputError) Error() string { return e.cause.Error() }
func (e invalidInputError) Unwrap() error { return e.cause }

// notReadyError marks an operation attempted in the wrong state (e.g. a
// query against an index that's in its Error state).
type notReadyError struct{ message string }

func (e notReadyError) Error() string { return e.message }

// errorResult packages err as the tool's structured Err payload rather
// than a Go error, per the propagation policy: tools never throw across
// the actor boundary.
func errorResult(err error) (session.ToolResult, error) {
	class := classify(err)
	payload, _ := json.Marshal(map[string]string{
		"error": err.Error(),
		"class": string(class),
	})
	return session.ToolResult{Err: payload}, nil
}

func classify(err error) cocoerr.Class {
	var ie invalidInputError
	if errors.As(err, &ie) {
		return cocoerr.ClassInvalidInput
	}
	var nr notReadyError
	if errors.As(err, &nr) {
		return cocoerr.ClassNotReady
	}
	if cocoerr.ClassOf(err) != "" {
		return cocoerr.ClassOf(err)
	}
	return cocoerr.ClassTransientIO
}
