package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/justinas/alice"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/DBCDK/fbs-cms-adapter/internal/adapter"
	"github.com/DBCDK/fbs-cms-adapter/internal/audit"
	"github.com/DBCDK/fbs-cms-adapter/internal/cache"
	"github.com/DBCDK/fbs-cms-adapter/internal/config"
	"github.com/DBCDK/fbs-cms-adapter/internal/credentials"
	"github.com/DBCDK/fbs-cms-adapter/internal/fbs"
	"github.com/DBCDK/fbs-cms-adapter/internal/observe"
	"github.com/DBCDK/fbs-cms-adapter/internal/server"
	"github.com/DBCDK/fbs-cms-adapter/internal/smaug"
	"github.com/DBCDK/fbs-cms-adapter/internal/userinfo"
)

func configureServerRoutes(service *adapter.Service) http.Handler {
	// wrap a mux such that HTTP telemetry is configured by default
	muxWithoutTelemetry := http.NewServeMux()
	mux := observe.NewMux(muxWithoutTelemetry)

	auditor := audit.Middleware()

	// Proxied bodies are small JSON documents; anything bigger is abuse.
	requestLimitBytes := int64(256 << 10) // 256 KB
	requestLimiter := maxRequestSize(requestLimitBytes)

	proxyRouteMiddleware := alice.New(requestLimiter, auditor)
	standardRouteMiddleware := alice.New(requestLimiter)

	mux.Handle("/external/", proxyRouteMiddleware.Then(handleProxy(service)))

	// healthchecks are not included in telemetry or auditing
	muxWithoutTelemetry.Handle("GET /healthcheck", standardRouteMiddleware.Then(handleHealthCheck()))

	return mux
}

func configureService(cfg config.Config, shutdown *server.ShutdownHooks) (*adapter.Service, error) {
	store, err := cache.NewFromConfig(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("cache configuration failed: %w", err)
	}
	shutdown.Add("cache", store.Close)

	return &adapter.Service{
		Smaug:       smaug.New(cfg.Smaug, http.DefaultClient),
		Userinfo:    userinfo.New(cfg.Userinfo, http.DefaultClient),
		Credentials: credentials.NewStore(cfg.FBS.Credentials, cfg.FBS.BaseURL),
		Sessions:    fbs.NewLoginClient(http.DefaultClient, cache.Namespaced(store, "sessionkey")),
		Patrons:     fbs.NewPatronResolver(http.DefaultClient, cache.Namespaced(store, "patronid")),
		Forwarder:   fbs.NewForwarder(http.DefaultClient),
	}, nil
}

func main() {
	configureLogging()

	logBuildInfo()

	err := launchServer()
	if err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}

func launchServer() error {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("configuration load failed: %w", err)
	}

	shutdown := &server.ShutdownHooks{}

	// configure telemetry, including wrapping the default HTTP client
	shutdownTelemetry, err := observe.Configure(ctx, cfg.Observe)
	if err != nil {
		return fmt.Errorf("telemetry bootstrap failed: %w", err)
	}
	shutdown.AddContext("telemetry", shutdownTelemetry)

	http.DefaultTransport = observe.HTTPTransport(
		configureHTTPTransport(cfg.Server),
		cfg.Observe,
	)
	http.DefaultClient = &http.Client{
		Transport: http.DefaultTransport,
	}

	service, err := configureService(cfg, shutdown)
	if err != nil {
		return err
	}

	handler := configureServerRoutes(service)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		MaxHeaderBytes:    20 << 10,         // 20 KB
		ReadHeaderTimeout: 20 * time.Second, // Prevent Slowloris attacks
	}

	err = serveHTTP(ctx, cfg.Server, httpServer, shutdown)
	if err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// serveHTTP runs the server until SIGINT or SIGTERM, then drains in-flight
// requests and executes the shutdown hooks.
func serveHTTP(ctx context.Context, cfg config.ServerConfig, httpServer *http.Server, shutdown *server.ShutdownHooks) error {
	notifyCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("server starting")
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		return err
	case <-notifyCtx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx,
		time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn().Err(err).Msg("server shutdown incomplete")
	}

	shutdown.Execute(shutdownCtx)

	return nil
}

func configureLogging() {
	// Set global level to the minimum: allows the Open Telemetry logging to be
	// configured separately. However, it means that any logger that sets its
	// level will log as this effectively disables the global level.
	zerolog.SetGlobalLevel(zerolog.Level(-128))

	// default level is Info
	log.Logger = log.Level(zerolog.InfoLevel)

	if os.Getenv("ENV") == "development" {
		log.Logger = log.
			Output(zerolog.ConsoleWriter{Out: os.Stdout}).
			Level(zerolog.DebugLevel)
	}

	zerolog.DefaultContextLogger = &log.Logger
}

func logBuildInfo() {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	ev := log.Info()
	for _, v := range buildInfo.Settings {
		if strings.HasPrefix(v.Key, "vcs.") ||
			strings.HasPrefix(v.Key, "GO") ||
			v.Key == "CGO_ENABLED" {
			ev = ev.Str(v.Key, v.Value)
		}
	}

	ev.Msg("build information")
}

// configureHTTPTransport tunes the shared outgoing transport. Proxy
// settings (HTTPS_PROXY and friends) are honored via the environment.
func configureHTTPTransport(cfg config.ServerConfig) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	transport.MaxIdleConns = cfg.OutgoingHTTPMaxIdleConns
	transport.MaxConnsPerHost = cfg.OutgoingHTTPMaxConnsPerHost

	return transport
}
