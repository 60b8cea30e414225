package payment

import (
	"context"
	"fmt"
	"log"
	"reflect"
	"time"

	"github.com/taskgate/taskgate/service/dispatch"
)

const name = "payment"

// Service handles approved payment actions.
type Service struct{}

// Input carries the payment fields extracted from the approved record.
type Input struct {
	Amount    string
	Recipient string
}

// New creates a payment handler.
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

// Timeout bounds one payment attempt.
func (s *Service) Timeout() time.Duration {
	return time.Minute
}

// Execute submits the payment to the processing collaborator.
func (s *Service) Execute(ctx context.Context, in interface{}) error {
	input, ok := in.(*Input)
	if !ok {
		return dispatch.NewInvalidInputError(in)
	}
	if input.Amount == "" || input.Recipient == "" {
		return fmt.Errorf("could not extract payment details: amount=%q recipient=%q", input.Amount, input.Recipient)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	log.Printf("payment: processing %v to %v", input.Amount, input.Recipient)
	return nil
}
