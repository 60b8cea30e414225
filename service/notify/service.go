// Package notify delivers best-effort desktop notifications through a local
// shell session. Delivery failures never block or fail the caller.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/viant/gosh"
	"github.com/viant/gosh/runner"
	"github.com/viant/gosh/runner/local"
)

// DefaultTimeout bounds a single notification attempt.
const DefaultTimeout = 5 * time.Second

// Service sends desktop notifications via notify-send.
type Service struct {
	mux     sync.Mutex
	session *gosh.Service
	timeout time.Duration
}

// Option customises the notifier.
type Option func(*Service)

// WithTimeout overrides the per-notification timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		s.timeout = timeout
	}
}

// New creates a notifier backed by a lazily started local shell session.
func New(options ...Option) *Service {
	ret := &Service{timeout: DefaultTimeout}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Notify shows a desktop notification. Errors are logged and swallowed so a
// headless host degrades to log-only output.
func (s *Service) Notify(ctx context.Context, message string) {
	session, err := s.getSession(ctx)
	if err != nil {
		log.Printf("notify: no shell session available: %v", err)
		return
	}
	command := fmt.Sprintf("notify-send %q %q", "Approval Needed", sanitise(message))
	_, status, err := session.Run(ctx, command, runner.WithTimeout(int(s.timeout.Milliseconds())))
	if err != nil || status != 0 {
		log.Printf("notify: delivery failed (status %v): %v", status, err)
	}
}

// Close releases the shell session.
func (s *Service) Close() error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Close()
	s.session = nil
	return err
}

func (s *Service) getSession(ctx context.Context) (*gosh.Service, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.session != nil {
		return s.session, nil
	}
	session, err := gosh.New(ctx, local.New())
	if err != nil {
		return nil, err
	}
	s.session = session
	return session, nil
}

func sanitise(message string) string {
	message = strings.ReplaceAll(message, "\n", " ")
	if len(message) > 200 {
		message = message[:200]
	}
	return message
}
