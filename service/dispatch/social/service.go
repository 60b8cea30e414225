package social

import (
	"context"
	"fmt"
	"log"
	"reflect"
	"time"

	"github.com/taskgate/taskgate/service/dispatch"
)

const name = "social_post"

// Service handles approved social media post actions.
type Service struct{}

// Input carries the post fields extracted from the approved record.
type Input struct {
	Platform string
	Content  string
}

// New creates a social post handler.
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

// Timeout bounds one post attempt.
func (s *Service) Timeout() time.Duration {
	return 30 * time.Second
}

// Execute publishes the drafted post on the target platform.
func (s *Service) Execute(ctx context.Context, in interface{}) error {
	input, ok := in.(*Input)
	if !ok {
		return dispatch.NewInvalidInputError(in)
	}
	if input.Platform == "" {
		return fmt.Errorf("could not extract platform from content")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	preview := input.Content
	if runes := []rune(preview); len(runes) > 50 {
		preview = string(runes[:50]) + "..."
	}
	log.Printf("social: posting to %v: %v", input.Platform, preview)
	return nil
}
