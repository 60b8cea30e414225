package taskgate

import (
	"github.com/viant/afs"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/taskgate/taskgate/service/approval"
	"github.com/taskgate/taskgate/service/dispatch"
	"github.com/taskgate/taskgate/service/messaging"
	"github.com/taskgate/taskgate/service/store"
	"github.com/taskgate/taskgate/tracing"
)

// Option customises the engine service.
type Option func(s *Service)

// WithConfig sets the engine configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithBaseURL overrides the partition root location.
func WithBaseURL(baseURL string) Option {
	return func(s *Service) {
		s.baseURL = baseURL
	}
}

// WithFs sets the file-system abstraction backing the store and the
// analytics snapshot.
func WithFs(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// WithStore sets the record store.
func WithStore(recordStore store.Service) Option {
	return func(s *Service) {
		s.store = recordStore
	}
}

// WithEventQueue sets the gate event queue.
func WithEventQueue(queue messaging.Queue[approval.Event]) Option {
	return func(s *Service) {
		s.events = queue
	}
}

// WithNotifier attaches a notifier alerting humans to pending approvals.
func WithNotifier(notifier approval.Notifier) Option {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithHandlers registers additional action handlers.
func WithHandlers(handlers ...dispatch.Handler) Option {
	return func(s *Service) {
		s.handlers = append(s.handlers, handlers...)
	}
}

// WithTracing configures OpenTelemetry tracing. If outputFile is empty the
// stdout exporter is used. Safe to call multiple times; the first successful
// initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom
// SpanExporter (OTLP, Jaeger, Zipkin, ...).
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
