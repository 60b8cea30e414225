package dispatch

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

// Outcome is the terminal result of one execution attempt. There are no
// automatic retries; a failed outcome requires human re-submission.
type Outcome struct {
	Success bool
	Reason  string
}

// Succeeded returns a successful outcome.
func Succeeded() Outcome { return Outcome{Success: true} }

// Failed returns a failed outcome with the given reason.
func Failed(reason string) Outcome { return Outcome{Reason: reason} }

// HandlerFailure wraps an error reported by an action handler so callers can
// distinguish it from engine-level failures.
type HandlerFailure struct {
	Handler string
	Reason  string
}

func (e *HandlerFailure) Error() string {
	return fmt.Sprintf("handler %v failed: %v", e.Handler, e.Reason)
}

// Signature describes a handler's typed input.
type Signature struct {
	Name  string
	Input reflect.Type
}

// Handler executes one category of approved actions, selected by task type
// tag. Implementations declare a typed Input via Signature; the dispatcher
// converts the task's loosely-typed content into it before Execute runs.
type Handler interface {
	Name() string
	Signature() Signature
	Execute(ctx context.Context, input interface{}) error
}

// Timeouter is optionally implemented by handlers that bound their own
// execution time. A handler exceeding its timeout yields Failure("timeout").
type Timeouter interface {
	Timeout() time.Duration
}

func NewInvalidInputError(in interface{}) error {
	return fmt.Errorf("invalid input %T", in)
}
