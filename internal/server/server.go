// Package server assembles all HTTP handlers and background workers and
// starts the server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/homesapp/rentals/internal/activity"
	"github.com/homesapp/rentals/internal/cache"
	"github.com/homesapp/rentals/internal/calendar"
	"github.com/homesapp/rentals/internal/config"
	"github.com/homesapp/rentals/internal/eventbus"
	"github.com/homesapp/rentals/internal/handler"
	"github.com/homesapp/rentals/internal/live"
	"github.com/homesapp/rentals/internal/payment"
	"github.com/homesapp/rentals/internal/provisioning"
	"github.com/homesapp/rentals/internal/store"
	"github.com/homesapp/rentals/internal/validate"
	"github.com/homesapp/rentals/internal/worker"
)

// Server owns the router, the event bus and the billing worker.
type Server struct {
	cfg    *config.Config
	log    *zap.Logger
	router http.Handler

	bus       *eventbus.Bus
	hub       *live.Hub
	billing   *worker.Materializer
	forwarder *eventbus.KafkaForwarder
}

// Option configures a Server.
type Option func(*options)

type options struct {
	now       func() time.Time
	forwarder *eventbus.KafkaForwarder
	activity  activity.Store
}

// WithClock overrides the time source of every service.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithKafka forwards every domain event through f.
func WithKafka(f *eventbus.KafkaForwarder) Option { return func(o *options) { o.forwarder = f } }

// WithActivityStore keeps entity timelines in st instead of in memory.
func WithActivityStore(st activity.Store) Option { return func(o *options) { o.activity = st } }

// New wires the services on top of st and c.
func New(cfg *config.Config, st store.Store, c cache.Cache, log *zap.Logger, opts ...Option) (*Server, error) {
	o := options{now: time.Now, activity: activity.NewMemoryStore()}
	for _, opt := range opts {
		opt(&o)
	}
	v, err := validate.New()
	if err != nil {
		return nil, fmt.Errorf("loading charge schema: %w", err)
	}

	bus := eventbus.New(cfg.Server.EventBuffer, log)
	hub := live.NewHub(log, cfg.Server.AllowedOrigins)

	payments := payment.NewService(st, c, bus, log,
		payment.WithClock(o.now), payment.WithCacheTTL(cfg.Redis.CacheTTL))
	workflow := provisioning.NewWorkflow(st, c, bus, v, log, provisioning.WithClock(o.now))
	cal := calendar.NewService(st, log,
		calendar.WithClock(o.now),
		calendar.WithPageSize(cfg.Calendar.PageSize),
		calendar.WithAgendaDays(cfg.Calendar.AgendaDays),
	)
	billing := worker.NewMaterializer(st, c, bus, log,
		worker.WithClock(o.now),
		worker.WithHorizon(cfg.Billing.HorizonDays),
		worker.WithInterval(cfg.Billing.Interval),
	)

	bus.Subscribe("log", eventbus.NewLogConsumer(log))
	if cfg.Billing.Enabled {
		bus.Subscribe("billing", billing)
	}
	bus.Subscribe("activity", activity.NewIndexer(o.activity, log))
	bus.Subscribe("live", hub)
	if o.forwarder != nil {
		bus.Subscribe("kafka", o.forwarder)
	}

	s := &Server{
		cfg:       cfg,
		log:       log,
		bus:       bus,
		hub:       hub,
		billing:   billing,
		forwarder: o.forwarder,
	}
	s.router = NewRouter(log, Handlers{
		Rentals:      handler.NewRentalHandler(st, c, bus, v, log),
		Payments:     handler.NewPaymentHandler(payments, log),
		Provisioning: handler.NewProvisioningHandler(workflow, log),
		Calendar:     handler.NewCalendarHandler(cal, log),
		Activity:     handler.NewActivityHandler(o.activity, log),
		Live:         hub,
	})
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Bus returns the event bus.
func (s *Server) Bus() *eventbus.Bus { return s.bus }

// Handlers groups the route handlers.
type Handlers struct {
	Rentals      *handler.RentalHandler
	Payments     *handler.PaymentHandler
	Provisioning *handler.ProvisioningHandler
	Calendar     *handler.CalendarHandler
	Activity     *handler.ActivityHandler
	Live         http.Handler
}

// NewRouter registers every route.
func NewRouter(log *zap.Logger, h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handler.Logging(log))
	r.Use(handler.Recovery(log))

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// --- Single-entity rental endpoints ---
	r.Post("/external-unit-owners", h.Rentals.CreateOwner)
	r.Get("/external-unit-owners/active/{unitId}", h.Rentals.ActiveOwner)
	r.Post("/external-rental-contracts", h.Rentals.CreateContract)
	r.Get("/external-rental-contracts/{id}", h.Rentals.GetContract)
	r.Get("/external-units/{unitId}", h.Rentals.GetUnit)
	r.Post("/external-rental-tenants", h.Rentals.CreateTenant)

	// --- Payment portal ---
	r.Route("/portal/payments", func(r chi.Router) {
		r.Get("/", h.Payments.ListPayments)
		r.Post("/", h.Payments.CreatePayment)
		r.Get("/summary", h.Payments.Summary)
		r.Get("/{id}", h.Payments.GetPayment)
		r.Post("/{id}/submit", h.Payments.SubmitPayment)
		r.Post("/{id}/verify", h.Payments.VerifyPayment)
		r.Post("/{id}/reject", h.Payments.RejectPayment)
	})
	r.Route("/portal/receipts", func(r chi.Router) {
		r.Get("/", h.Payments.ListReceipts)
		r.Post("/", h.Payments.CreateReceipt)
		r.Post("/{id}/approve", h.Payments.ApproveReceipt)
		r.Post("/{id}/reject", h.Payments.RejectReceipt)
	})

	// --- Provisioning ---
	r.Post("/v1/provisioning", h.Provisioning.Provision)
	r.Post("/v1/schedules/preview", h.Provisioning.PreviewSchedule)

	// --- Calendar ---
	r.Route("/v1/calendar", func(r chi.Router) {
		r.Get("/", h.Calendar.View)
		r.Get("/day/{date}", h.Calendar.Day)
		r.Get("/agenda", h.Calendar.Agenda)
		if h.Live != nil {
			r.Handle("/ws", h.Live)
		}
	})

	// --- Activity ---
	r.Get("/v1/activity/search", h.Activity.Search)
	r.Get("/v1/activity/{entityType}/{entityId}", h.Activity.Entity)
	return r
}

// Run starts the event bus, the billing worker and the HTTP server, and
// shuts everything down when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.bus.Start(ctx)
	defer s.bus.Stop()
	if s.forwarder != nil {
		defer s.forwarder.Close()
	}

	if s.cfg.Billing.Enabled {
		go s.billing.Run(ctx)
	}

	srv := &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("starting server", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	s.log.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
