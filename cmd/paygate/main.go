// Command paygate launches the payment webhook gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"

	"github.com/hostwell/paygate/internal/dispatch"
	"github.com/hostwell/paygate/internal/domain/event"
	"github.com/hostwell/paygate/internal/engine"
	"github.com/hostwell/paygate/internal/infra/config"
	"github.com/hostwell/paygate/internal/infra/persistence/migrations"
	"github.com/hostwell/paygate/internal/infra/persistence/postgres"
	httpserver "github.com/hostwell/paygate/internal/infra/server/http"
	"github.com/hostwell/paygate/internal/observability"
	"github.com/hostwell/paygate/lib/telemetry"
)

const (
	defaultConfigPath        = "config/app.yaml"
	serverShutdownTimeout    = 5 * time.Second
	lifecycleShutdownTimeout = 10 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
)

func main() {
	cfgPath := flag.String("config", defaultConfigPath, "Path to application configuration")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := log.New(os.Stdout, "paygate ", log.LstdFlags|log.Lmsgprefix)
	observability.SetLogger(observability.NewStdLogger(logger))

	appCfg, loadedFromFile, err := config.LoadOrDefault(ctx, *cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if !loadedFromFile {
		logger.Printf("configuration file not found, using defaults and environment")
	}
	logger.Printf("configuration initialised: env=%s addr=%s staleAfter=%s",
		appCfg.Environment, appCfg.Server.Addr, appCfg.Claims.StaleAfter)

	_, telemetryShutdown, err := telemetry.Init(ctx, appCfg.Telemetry)
	if err != nil {
		logger.Fatalf("initialise telemetry: %v", err)
	}
	observability.SetMetrics(observability.NewOTelMetrics("paygate"))

	if err := migrations.ApplyEmbedded(ctx, appCfg.Database.DSN, logger); err != nil {
		logger.Fatalf("apply migrations: %v", err)
	}

	pool, err := connectPool(ctx, appCfg.Database)
	if err != nil {
		logger.Fatalf("connect claim ledger: %v", err)
	}
	defer pool.Close()

	postgres.ObservePoolMetrics(pool, "claim-ledger")

	store := postgres.NewClaimStore(pool)
	coordinator := engine.NewCoordinator(store)
	recorder := engine.NewRecorder(store)

	router := dispatch.NewRouter()
	if err := registerHandlers(router); err != nil {
		logger.Fatalf("register handlers: %v", err)
	}

	var limiter *rate.Limiter
	if appCfg.Server.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(appCfg.Server.RatePerSecond), appCfg.Server.RateBurst)
	}

	handler := httpserver.NewHandler(httpserver.Deps{
		Verifier:    httpserver.NewStripeVerifier(appCfg.Webhook.SigningSecret),
		Coordinator: coordinator,
		Router:      router,
		Recorder:    recorder,
		StaleAfter:  appCfg.Claims.StaleAfter,
		Limiter:     limiter,
	})

	server := &http.Server{
		Addr:              appCfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: appCfg.Server.ReadHeaderTimeout,
	}

	var lifecycle conc.WaitGroup
	lifecycle.Go(func() {
		logger.Printf("webhook server listening on %s", appCfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("webhook server: %v", err)
			cancel()
		}
	})

	<-ctx.Done()
	logger.Print("shutdown signal received")

	performGracefulShutdown(logger, server, &lifecycle, telemetryShutdown)
}

// connectPool establishes the pgx pool, retrying with exponential backoff
// until the database answers or the connect timeout elapses.
func connectPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	operation := func() (*pgxpool.Pool, error) {
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return pool, nil
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(cfg.ConnectTimeout))
}

// registerHandlers wires the business flow handlers. The gateway ships
// acknowledge-only handlers; deployments replace these with the platform's
// booking, subscription, and fulfillment services.
func registerHandlers(router *dispatch.Router) error {
	oneToOne := map[string]string{
		event.TypeSubscriptionCreated:  "subscription-created",
		event.TypeSubscriptionUpdated:  "subscription-updated",
		event.TypeSubscriptionDeleted:  "subscription-deleted",
		event.TypeInvoicePaid:          "invoice-paid",
		event.TypeInvoicePaymentFailed: "invoice-payment-failed",
		event.TypeAccountUpdated:       "account-updated",
	}
	for eventType, flow := range oneToOne {
		if err := router.Register(eventType, ackHandler(flow)); err != nil {
			return err
		}
	}
	return dispatch.NewCheckoutChain(router,
		ackHandler("lifetime-plan"),
		ackHandler("digital-product"),
		ackHandler("signup"),
		ackHandler("booking-payment"),
	)
}

func ackHandler(flow string) dispatch.Handler {
	return dispatch.HandlerFunc(func(_ context.Context, evt event.Event) error {
		observability.Log().Info("event acknowledged",
			observability.String("flow", flow),
			observability.String("event_id", evt.ID),
			observability.String("event_type", evt.Type))
		return nil
	})
}

func performGracefulShutdown(logger *log.Logger, server *http.Server, lifecycle *conc.WaitGroup, telemetryShutdown func(context.Context) error) {
	shutdownStep := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, stepCancel := context.WithTimeout(context.Background(), timeout)
		defer stepCancel()
		logger.Printf("shutdown: %s...", name)
		if err := fn(stepCtx); err != nil {
			logger.Printf("shutdown: %s failed: %v", name, err)
		} else {
			logger.Printf("shutdown: %s completed", name)
		}
	}

	shutdownStep("stopping webhook server", serverShutdownTimeout, server.Shutdown)

	shutdownStep("waiting for lifecycle goroutines", lifecycleShutdownTimeout, func(stepCtx context.Context) error {
		done := make(chan struct{})
		go func() {
			lifecycle.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-stepCtx.Done():
			return stepCtx.Err()
		}
	})

	if telemetryShutdown != nil {
		shutdownStep("flushing telemetry", telemetryShutdownTimeout, telemetryShutdown)
	}
}
