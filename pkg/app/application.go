package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/julienschmidt/httprouter"

	"cardoctor/pkg/config"
	"cardoctor/pkg/contracts"
	"cardoctor/pkg/middleware"
)

// idempotencySkip lists routes whose responses are never replayed. Tokens are
// signed for the claims of each request.
var idempotencySkip = []string{"/jwt"}

type Application struct {
	cfg              *config.Config
	server           *http.Server
	handler          http.Handler
	idempotencyStore *middleware.InMemoryIdempotencyStore
	shutdownHooks    []shutdownHook
}

type shutdownHook struct {
	name string
	fn   func(ctx context.Context) error
}

func NewApplication(cfg *config.Config) *Application {
	return &Application{cfg: cfg}
}

// SetApp mounts the liveness routes behind a minimal middleware stack and
// every other handler behind the full one.
func (a *Application) SetApp(health contracts.Handler, handlers ...contracts.Handler) {
	healthHandler := a.buildHealthHandler(health)
	appHandler := a.buildAppHandler(handlers...)

	mux := http.NewServeMux()
	mux.Handle("/{$}", healthHandler)
	mux.Handle("/health", healthHandler)
	mux.Handle("/ready", healthHandler)
	mux.Handle("/", appHandler)
	a.handler = mux

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      a.handler,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

// Handler returns the fully wired HTTP handler. SetApp must be called first.
func (a *Application) Handler() http.Handler {
	return a.handler
}

// OnShutdown registers fn to run after the server stops accepting requests.
// Hooks run in registration order.
func (a *Application) OnShutdown(name string, fn func(ctx context.Context) error) {
	a.shutdownHooks = append(a.shutdownHooks, shutdownHook{name: name, fn: fn})
}

func (a *Application) buildHealthHandler(health contracts.Handler) http.Handler {
	router := httprouter.New()
	health.RegisterRoutes(router)

	a.cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging + CORS only)")
	return middleware.Chain(router,
		middleware.Recovery(a.cfg.Log),
		middleware.RequestLogging(a.cfg.Log),
		middleware.CORS(a.cfg.CORSAllowedOrigins),
	)
}

func (a *Application) buildAppHandler(handlers ...contracts.Handler) http.Handler {
	router := httprouter.New()
	for _, h := range handlers {
		h.RegisterRoutes(router)
	}

	a.idempotencyStore = middleware.NewInMemoryIdempotencyStore(a.cfg.IdempotencyTTL)

	a.cfg.Log.Info("Application endpoints configured with full middleware stack")
	return middleware.Chain(router,
		middleware.Recovery(a.cfg.Log),
		middleware.RequestLogging(a.cfg.Log),
		middleware.CORS(a.cfg.CORSAllowedOrigins),
		middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize)),
		middleware.ContentTypeValidation(a.cfg.Log),
		middleware.RequestTimeout(a.cfg.RequestTimeout),
		middleware.Idempotency(a.idempotencyStore, middleware.DefaultIdempotencyHeader, idempotencySkip...),
	)
}

func (a *Application) Run() {
	serverErrors := make(chan error, 1)

	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			a.cfg.Log.Fatal("HTTP server failed", "error", err)
		}

	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig)
		a.gracefulShutdown()
	}
}

func (a *Application) gracefulShutdown() {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Fatal("Could not stop server gracefully", "error", err)
		}
	}
	a.cfg.Log.Info("Server stopped accepting requests")

	a.Close(ctx)
	a.cfg.Log.Info("Server stopped gracefully")
}

// Close stops background workers and runs the shutdown hooks. The HTTP
// server itself is left to Run.
func (a *Application) Close(ctx context.Context) {
	if a.idempotencyStore != nil {
		a.idempotencyStore.Stop()
	}

	for _, hook := range a.shutdownHooks {
		if err := hook.fn(ctx); err != nil {
			a.cfg.Log.Error("Shutdown hook failed", "hook", hook.name, "error", err)
			continue
		}
		a.cfg.Log.Info("Shutdown hook completed", "hook", hook.name)
	}
}
