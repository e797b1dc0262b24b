package services

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/fyrsmithlabs/goaltrack/internal/auth"
	"github.com/fyrsmithlabs/goaltrack/internal/events"
	"github.com/fyrsmithlabs/goaltrack/internal/goalgen"
	"github.com/fyrsmithlabs/goaltrack/internal/notify"
	"github.com/fyrsmithlabs/goaltrack/internal/progress"
	"github.com/fyrsmithlabs/goaltrack/internal/store"
)

// Registry provides access to all goaltrack services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Store() *store.Store
	Auth() auth.Provider
	Progress() *progress.Service
	Generator() *goalgen.Service
	Templates() *notify.Templates
	Planner() *notify.Planner
	Dispatcher() *notify.Dispatcher
	Publisher() events.Publisher
	// Close releases the store and the event bus connection.
	Close() error
}

// Options configures the registry with service instances.
type Options struct {
	Store      *store.Store
	Auth       auth.Provider
	Progress   *progress.Service
	Generator  *goalgen.Service
	Templates  *notify.Templates
	Planner    *notify.Planner
	Dispatcher *notify.Dispatcher
	Publisher  events.Publisher
	NATS       *nats.Conn
}

type registry struct {
	store      *store.Store
	auth       auth.Provider
	progress   *progress.Service
	generator  *goalgen.Service
	templates  *notify.Templates
	planner    *notify.Planner
	dispatcher *notify.Dispatcher
	publisher  events.Publisher
	nc         *nats.Conn
}

// NewRegistry creates a registry from already built services. A nil
// publisher becomes events.Nop.
func NewRegistry(opts Options) Registry {
	pub := opts.Publisher
	if pub == nil {
		pub = events.Nop{}
	}
	return &registry{
		store:      opts.Store,
		auth:       opts.Auth,
		progress:   opts.Progress,
		generator:  opts.Generator,
		templates:  opts.Templates,
		planner:    opts.Planner,
		dispatcher: opts.Dispatcher,
		publisher:  pub,
		nc:         opts.NATS,
	}
}

func (r *registry) Store() *store.Store            { return r.store }
func (r *registry) Auth() auth.Provider            { return r.auth }
func (r *registry) Progress() *progress.Service    { return r.progress }
func (r *registry) Generator() *goalgen.Service    { return r.generator }
func (r *registry) Templates() *notify.Templates   { return r.templates }
func (r *registry) Planner() *notify.Planner       { return r.planner }
func (r *registry) Dispatcher() *notify.Dispatcher { return r.dispatcher }
func (r *registry) Publisher() events.Publisher    { return r.publisher }

func (r *registry) Close() error {
	var errs []error
	if r.nc != nil {
		if err := r.nc.Drain(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
