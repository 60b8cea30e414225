// Package dispatch routes approved tasks to action handlers by task type
// tag. Dispatch is registry-based with a mandatory generic fallback; each
// handler is independently fallible and its failure never crashes a sweep.
package dispatch

import (
	"context"
	"errors"
	"log"
	"reflect"
	"strings"
	"sync"

	"github.com/taskgate/taskgate/model"
	"github.com/viant/structology/conv"
	"github.com/viant/x"
)

// Service dispatches a task to the matching handler and reports the outcome.
type Service interface {
	Execute(ctx context.Context, task *model.Task) Outcome
}

// Dispatcher is the registry-backed Service implementation.
type Dispatcher struct {
	handlers  map[string]Handler
	fallback  Handler
	types     *x.Registry
	converter *conv.Converter
	mux       sync.RWMutex
}

// Option customises the dispatcher.
type Option func(*Dispatcher)

// WithFallback overrides the default generic handler used for unrecognized
// task types.
func WithFallback(handler Handler) Option {
	return func(s *Dispatcher) { s.fallback = handler }
}

// New creates a dispatcher with the supplied handlers. The generic fallback
// must be set (directly or via WithFallback) before Execute is used.
func New(options ...Option) *Dispatcher {
	converterOptions := conv.DefaultOptions()
	converterOptions.ClonePointerData = true
	converterOptions.IgnoreUnmapped = true
	ret := &Dispatcher{
		handlers:  make(map[string]Handler),
		types:     x.NewRegistry(),
		converter: conv.NewConverter(converterOptions),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Register adds a handler, keyed by its name, and records its input type.
func (s *Dispatcher) Register(handler Handler) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.handlers[strings.ToLower(handler.Name())] = handler
	if signature := handler.Signature(); signature.Input != nil {
		s.types.Register(x.NewType(signature.Input))
	}
}

// Lookup returns the handler for a task type tag, or nil.
func (s *Dispatcher) Lookup(name string) Handler {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.handlers[strings.ToLower(name)]
}

// Execute runs the handler matching task.Type, falling back to the generic
// handler for unrecognized types. Handler errors and timeouts become failed
// outcomes, never panics or sweep aborts.
func (s *Dispatcher) Execute(ctx context.Context, task *model.Task) Outcome {
	handler := s.Lookup(task.Type)
	if handler == nil {
		handler = s.fallback
		if handler == nil {
			return Failed("no handler registered for type " + task.Type)
		}
		log.Printf("dispatch: no handler for type %v, using %v", task.Type, handler.Name())
	}

	input, err := s.typedInput(handler, task)
	if err != nil {
		return Failed(err.Error())
	}

	execCtx := ctx
	if timeouter, ok := handler.(Timeouter); ok && timeouter.Timeout() > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeouter.Timeout())
		defer cancel()
	}

	if err := handler.Execute(execCtx, input); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return Failed("timeout")
		}
		failure := &HandlerFailure{Handler: handler.Name(), Reason: err.Error()}
		return Failed(failure.Error())
	}
	return Succeeded()
}

// typedInput converts the task's loosely-typed content (structured payload
// merged over Key: Value body lines) into the handler's declared input type.
func (s *Dispatcher) typedInput(handler Handler, task *model.Task) (interface{}, error) {
	signature := handler.Signature()
	if signature.Input == nil {
		return nil, nil
	}
	values := Fields(task.Body)
	for key, value := range task.Payload {
		values[normaliseKey(key)] = value
	}
	values["Type"] = task.Type

	aType := signature.Input
	if aType.Kind() == reflect.Ptr {
		aType = aType.Elem()
	}
	instance := reflect.New(aType).Interface()
	if err := s.converter.Convert(values, instance); err != nil {
		return nil, err
	}
	return instance, nil
}

// Fields extracts "Key: Value" lines from a record body. Keys are normalised
// to exported-field form so they convert onto handler input structs.
func Fields(body string) map[string]interface{} {
	values := make(map[string]interface{})
	var lastKey string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "---") {
			lastKey = ""
			continue
		}
		idx := strings.Index(trimmed, ":")
		if idx <= 0 || strings.Contains(trimmed[:idx], " ") {
			// Continuation of a multi-line value.
			if lastKey != "" {
				values[lastKey] = strings.TrimSpace(values[lastKey].(string) + "\n" + trimmed)
			}
			continue
		}
		key := normaliseKey(trimmed[:idx])
		values[key] = strings.TrimSpace(trimmed[idx+1:])
		lastKey = key
	}
	return values
}

func normaliseKey(key string) string {
	key = strings.TrimSpace(key)
	key = strings.ReplaceAll(key, "_", " ")
	parts := strings.Fields(key)
	for i, part := range parts {
		parts[i] = strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
	}
	return strings.Join(parts, "")
}
