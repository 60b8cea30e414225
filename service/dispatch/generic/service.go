package generic

import (
	"context"
	"log"
	"reflect"

	"github.com/taskgate/taskgate/service/dispatch"
)

const name = "generic"

// Service is the mandatory fallback for unrecognized task types. It succeeds
// trivially so that an unknown type never wedges the queue.
type Service struct{}

// Input captures only the task type for logging.
type Input struct {
	Type string
}

// New creates a generic handler.
func New() *Service {
	return &Service{}
}

// Name returns the handler name.
func (s *Service) Name() string {
	return name
}

// Signature declares the typed input.
func (s *Service) Signature() dispatch.Signature {
	return dispatch.Signature{Name: name, Input: reflect.TypeOf(&Input{})}
}

// Execute logs the action and succeeds.
func (s *Service) Execute(ctx context.Context, in interface{}) error {
	input, ok := in.(*Input)
	if !ok {
		return dispatch.NewInvalidInputError(in)
	}
	log.Printf("generic: executing action of type %v", input.Type)
	return nil
}
