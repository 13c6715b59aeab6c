package main

import (
	"chat-hub/auth"
	"chat-hub/contract"
	"chat-hub/infrastructure/http/client"
	"chat-hub/infrastructure/http/server"
	"chat-hub/internal"
	"chat-hub/moderation"
	"chat-hub/observability"
	"chat-hub/repositories"
	"chat-hub/runtime"
	"chat-hub/runtime/workers"
	"chat-hub/services"
	"chat-hub/sink"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
)

// Exit codes to provide meaningful status to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chat-hub terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run owns every resource so deferred cleanup happens before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, log, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Core components
	clock := clockwork.NewRealClock()
	reg := observability.NewRegistry()
	hubMetrics := observability.NewHubMetrics(reg)

	store := repositories.NewConversationRepository(db, log, clock, config.LimitMessages)
	users := repositories.NewUserRepository(db, clock)
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration, clock)
	verifier := auth.NewRecordingVerifier(tokens, users, log)
	registry := runtime.NewRegistry()
	presence := workers.NewPresenceFanout(log, registry, hubMetrics, config.DeliveryTimeout)
	filter, err := moderation.NewFilter(moderation.ParseWords(config.CensoredWords), censorRune(config.CensorChar))
	if err != nil {
		return exitConfig, fmt.Errorf("censored words: %w", err)
	}

	hub := runtime.NewHub(log, verifier, store, registry, presence, hubMetrics, runtime.HubConfig{
		DeliveryTimeout:         config.DeliveryTimeout,
		JoinRequiresParticipant: config.JoinRequiresParticipant,
		EventsPerSecond:         config.InboundEventsPerSecond,
		Burst:                   config.InboundBurst,
		Filter:                  filter,
	})

	// 4. Supervised workers
	sup := workers.NewSupervisor(log, clock, hubMetrics, config.RestartInterval)
	sup.Add(
		presence,
		workers.NewHeartbeatWorker(log, registry, observability.NewProcessMetrics(reg), config.HeartbeatInterval),
	)
	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	// 5. HTTP server
	srv := server.NewServer(log, services.NewChatService(log, store, users, identityLookup(config, log, users)), hub, verifier, clock, reg,
		observability.NewHTTPMetrics(reg), server.Config{
			AllowedOrigins:    origins(config.AllowedOrigins),
			RequestsPerSecond: config.HTTPRequestsPerSecond,
			RequestBurst:      config.HTTPBurst,
			Sink: sink.Config{
				BufferSize:   config.ConnectionBufferSize,
				WriteTimeout: config.WriteTimeout,
				PingInterval: config.PingInterval,
			},
		})

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", clock.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if log.Enabled(ctx, slog.LevelDebug) {
		debugServer := startDebugServer(log, db, registry, config.DebugPort)
		defer func() { _ = debugServer.Close() }()
	}

	// 6. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		sup.Stop()
		<-supDone
		return exitRuntime, err
	}

	// 7. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	closed := server.CloseConnections(registry, "server shutting down")
	log.Info("Realtime connections closed", "count", closed)
	sup.Stop()
	<-supDone
	registry.Clear()
	log.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config Config, log *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if log.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}

func startDebugServer(log *slog.Logger, db *badger.DB, registry *runtime.Registry, port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/inspect", internal.DebugHandler(db, func() map[string]any {
		return map[string]any{
			"Online users":       len(registry.ActiveIdentities()),
			"Active connections": len(registry.Connections()),
		}
	}))
	debugServer := &http.Server{Addr: fmt.Sprintf("localhost:%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d/inspect", port))
		if err := debugServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("Debug server stopped", "error", err)
		}
	}()
	return debugServer
}

func origins(raw string) []string {
	return lo.Compact(lo.Map(strings.Split(raw, ","), func(o string, _ int) string {
		return strings.TrimSpace(o)
	}))
}

func censorRune(raw string) rune {
	for _, r := range raw {
		return r
	}
	return '*'
}

// identityLookup asks the account service when one is configured.
// Without it, ids are checked against the local directory, which accepts unseen users.
func identityLookup(config Config, log *slog.Logger, users *repositories.UserRepository) contract.IIdentityLookup {
	if config.UserLookupURL == "" {
		return users
	}
	return client.NewIdentityClient(log, config.UserLookupURL, config.UserLookupToken, config.UserLookupTimeout)
}
