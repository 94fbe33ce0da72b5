package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/catalogue-manager/internal/client/catalogue"
	"github.com/xenking/catalogue-manager/internal/client/credentials"
	"github.com/xenking/catalogue-manager/internal/domain/auth"
	"github.com/xenking/catalogue-manager/internal/handler"
	"github.com/xenking/catalogue-manager/internal/security"
	"github.com/xenking/catalogue-manager/pkg/health"
	"github.com/xenking/catalogue-manager/pkg/httpmiddleware"
)

const serviceName = "catalogue-manager"

// Server is the assembled web application.
type Server struct {
	cfg     *Config
	lg      *zap.Logger
	health  *health.Health
	handler http.Handler
}

// NewServer creates all dependencies: the catalogue client with its
// credentials, the manager authenticator, health checks and the router.
func NewServer(ctx context.Context, lg *zap.Logger, cfg *Config, tp trace.TracerProvider, mp metric.MeterProvider) (*Server, error) {
	// Outgoing HTTP: telemetry on every hop, credentials on catalogue calls.
	base := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithTracerProvider(tp),
		otelhttp.WithMeterProvider(mp),
	)
	tokenClient := &http.Client{Transport: base, Timeout: cfg.Catalogue.Timeout}
	creds, err := cfg.CredentialsProvider(ctx, tokenClient)
	if err != nil {
		return nil, errors.Wrap(err, "credentials")
	}
	products, err := catalogue.New(catalogue.Config{
		BaseURL: cfg.Catalogue.BaseURL,
		HTTPClient: &http.Client{
			Transport: &credentials.Transport{Provider: creds, Base: base},
			Timeout:   cfg.Catalogue.Timeout,
		},
		TracerProvider: tp,
		MeterProvider:  mp,
	})
	if err != nil {
		return nil, errors.Wrap(err, "catalogue client")
	}

	managerList, err := cfg.ManagerList()
	if err != nil {
		return nil, errors.Wrap(err, "managers")
	}
	if len(managerList) == 0 {
		lg.Warn("No managers configured, catalogue pages will reject every login")
	}
	managers, err := security.NewStatic(managerList)
	if err != nil {
		return nil, errors.Wrap(err, "managers")
	}
	authn := security.NewAuthenticator(managers, serviceName)

	// Health check service.
	healthSvc := health.New()
	reachable, err := health.TCPCheck(cfg.Catalogue.BaseURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "catalogue check")
	}
	healthSvc.AddReadinessCheck("catalogue", 2*time.Second, reachable)
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	pages, err := handler.New(products)
	if err != nil {
		return nil, errors.Wrap(err, "pages")
	}

	r := chi.NewRouter()
	r.Use(
		httpmiddleware.LogRequests(handler.ChiRoute),
		httpmiddleware.Labeler(handler.ChiRoute),
	)
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	r.Group(func(r chi.Router) {
		r.Use(authn.Require(auth.RoleManager))
		pages.Mount(r)
	})
	r.NotFound(pages.NotFound)

	return &Server{
		cfg:    cfg,
		lg:     lg,
		health: healthSvc,
		handler: httpmiddleware.Wrap(r,
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.Instrument(serviceName, tp, mp),
		),
	}, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve accepts connections on ln until ctx is done, then drains: readiness
// goes false, the server waits ReadinessDelay and shuts down within
// ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      s.cfg.Catalogue.Timeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Handler:           s.handler,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	s.health.Start(ctx, 10*time.Second)
	defer s.health.Stop()
	s.health.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.lg.Info("Server listening", zap.String("addr", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.health.SetReady(false)
		s.lg.Info("Readiness set to false, draining", zap.Duration("delay", s.cfg.Graceful.ReadinessDelay))
		time.Sleep(s.cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Graceful.ShutdownTimeout)
		defer cancel()

		s.lg.Info("Shutting down server", zap.Duration("timeout", s.cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	return g.Wait()
}

// Run wires the application and serves it on cfg.Addr until ctx is done.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("catalogue", cfg.Catalogue.BaseURL),
		zap.String("auth_mode", cfg.Auth.Mode),
	)

	s, err := NewServer(ctx, lg, cfg, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	return s.Serve(ctx, ln)
}
