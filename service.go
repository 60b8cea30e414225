package taskgate

import (
	"github.com/viant/afs"
	"github.com/viant/afs/url"

	"github.com/taskgate/taskgate/service/analytics"
	"github.com/taskgate/taskgate/service/approval"
	"github.com/taskgate/taskgate/service/classifier"
	"github.com/taskgate/taskgate/service/controller"
	"github.com/taskgate/taskgate/service/dispatch"
	"github.com/taskgate/taskgate/service/dispatch/generic"
	"github.com/taskgate/taskgate/service/dispatch/mail"
	"github.com/taskgate/taskgate/service/dispatch/payment"
	"github.com/taskgate/taskgate/service/dispatch/social"
	"github.com/taskgate/taskgate/service/messaging"
	mmemory "github.com/taskgate/taskgate/service/messaging/memory"
	"github.com/taskgate/taskgate/service/planner"
	"github.com/taskgate/taskgate/service/store"
	sfs "github.com/taskgate/taskgate/service/store/fs"
)

// Service is the engine facade wiring store, classifier, planner, gate,
// dispatcher, controller and analytics together.
type Service struct {
	config     *Config
	baseURL    string
	fs         afs.Service
	store      store.Service
	events     messaging.Queue[approval.Event]
	notifier   approval.Notifier
	handlers   []dispatch.Handler
	classifier *classifier.Classifier
	planner    *planner.Service
	dispatcher *dispatch.Dispatcher
	gate       *approval.Service
	controller *controller.Service
	analytics  *analytics.Service
	runtime    *Runtime
}

// New creates an engine service. Omitted collaborators fall back to the
// defaults: an afs-backed store under Config.BaseURL and an in-memory event
// queue.
func New(options ...Option) (*Service, error) {
	ret := &Service{}
	for _, option := range options {
		option(ret)
	}
	if err := ret.init(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Service) init() error {
	if err := s.ensureBaseSetup(); err != nil {
		return err
	}
	s.classifier = classifier.New(s.config.UrgencyKeywords...)
	s.planner = planner.New(s.store, s.config.ApprovalTriggers...)

	s.dispatcher = dispatch.New(dispatch.WithFallback(generic.New()))
	s.dispatcher.Register(mail.New())
	s.dispatcher.Register(social.New())
	s.dispatcher.Register(payment.New())
	for _, handler := range s.handlers {
		s.dispatcher.Register(handler)
	}

	gateOptions := []approval.Option{approval.WithTTL(s.config.TTL())}
	if s.notifier != nil {
		gateOptions = append(gateOptions, approval.WithNotifier(s.notifier))
	}
	s.gate = approval.New(s.store, s.dispatcher, s.events, gateOptions...)
	s.controller = controller.New(s.config.MaxConcurrentTasks)
	s.analytics = analytics.New(s.store, s.fs, url.Join(s.baseURL, "analytics.json"))

	s.runtime = &Runtime{
		store:        s.store,
		classifier:   s.classifier,
		planner:      s.planner,
		gate:         s.gate,
		controller:   s.controller,
		dispatcher:   s.dispatcher,
		analytics:    s.analytics,
		events:       s.events,
		pollInterval: s.config.PollInterval(),
		shutdownCh:   make(chan struct{}),
	}
	return nil
}

func (s *Service) ensureBaseSetup() error {
	if s.config == nil {
		s.config = DefaultConfig()
	} else {
		s.config.Init()
	}
	if err := s.config.Validate(); err != nil {
		return err
	}
	if s.baseURL == "" {
		s.baseURL = s.config.BaseURL
	}
	if s.fs == nil {
		s.fs = afs.New()
	}
	if s.store == nil {
		recordStore, err := sfs.New(s.fs, s.baseURL)
		if err != nil {
			return err
		}
		s.store = recordStore
	}
	if s.events == nil {
		s.events = mmemory.NewQueue[approval.Event](mmemory.DefaultConfig())
	}
	return nil
}

// RegisterHandler adds an action handler after construction.
func (s *Service) RegisterHandler(handlers ...dispatch.Handler) {
	for _, handler := range handlers {
		s.dispatcher.Register(handler)
	}
}

// Runtime returns the sweep runtime.
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// Store returns the record store.
func (s *Service) Store() store.Service {
	return s.store
}

// Gate returns the approval gate.
func (s *Service) Gate() *approval.Service {
	return s.gate
}

// Analytics returns the analytics aggregator.
func (s *Service) Analytics() *analytics.Service {
	return s.analytics
}
