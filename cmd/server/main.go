package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	claimsapp "github.com/fredtinotenda3/vp-multicurrency-sub001/internal/application/claims"
	fxapp "github.com/fredtinotenda3/vp-multicurrency-sub001/internal/application/fx"
	syncapp "github.com/fredtinotenda3/vp-multicurrency-sub001/internal/application/sync"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/shared"
	syncdomain "github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/sync"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/infrastructure/config"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/infrastructure/event"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/infrastructure/logger"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/infrastructure/persistence"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/infrastructure/ratesource"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/interfaces/http/handler"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/interfaces/http/middleware"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting optical POS core",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Open the register database; forward migrations run on open.
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to open register database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Register database ready", zap.String("path", cfg.Database.Path))

	// Repositories
	rateRepo := persistence.NewGormRateRepository(db.DB)
	actionRepo := persistence.NewGormActionRepository(db.DB, log)
	claimRepo := persistence.NewGormClaimRepository(db.DB)

	// Event bus for UI-facing observers
	bus := event.NewBus(log)

	// Exchange rate cache fed by the simulated source provider
	provider := ratesource.NewSimulatedProvider(ratesource.DefaultBaseRates(), cfg.Rates.DefaultTTL)
	rateCache := fxapp.NewCache(cfg.Rates, provider, rateRepo, bus, log)
	rateCache.Start()
	defer rateCache.Stop()

	// Offline queue and claims ledger
	queue := syncapp.NewQueue(cfg.Queue, actionRepo, bus, log)
	ledger := claimsapp.NewLedger(claimRepo, bus, log)
	registerExecutors(queue, ledger, log)
	queue.Start()
	defer queue.Stop()

	// Gin engine
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery(log))
	engine.Use(middleware.RequestLogger(log))

	r := router.NewRouter(engine)
	r.Register(handler.NewClaimsHandler(ledger, queue, log))
	r.Register(handler.NewRatesHandler(rateCache))
	r.Register(handler.NewQueueHandler(queue))
	r.Setup()

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// registerExecutors wires the queue's action types to their remote
// collaborators. The standalone build ships simulated gateways: payment
// captures acknowledge back into the ledger so the synced flag reflects
// replay, submissions and award acks log their delivery.
func registerExecutors(queue *syncapp.Queue, ledger *claimsapp.Ledger, log *zap.Logger) {
	queue.RegisterExecutor(syncdomain.ActionPaymentCapture, syncapp.ExecutorFunc(
		func(ctx context.Context, action *syncdomain.Action) error {
			p, ok := action.Payload.(*syncdomain.PaymentCapture)
			if !ok {
				return shared.NewDomainError("INVALID_PAYLOAD", "payment capture action carries a foreign payload")
			}
			claimID, err := uuid.Parse(p.ClaimID)
			if err != nil {
				return err
			}
			paymentID, err := uuid.Parse(p.PaymentID)
			if err != nil {
				return err
			}
			return ledger.MarkPaymentSynced(ctx, claimID, paymentID)
		}))

	queue.RegisterExecutor(syncdomain.ActionClaimSubmission, syncapp.ExecutorFunc(
		func(ctx context.Context, action *syncdomain.Action) error {
			p, ok := action.Payload.(*syncdomain.ClaimSubmission)
			if !ok {
				return shared.NewDomainError("INVALID_PAYLOAD", "claim submission action carries a foreign payload")
			}
			log.Info("claim submitted to provider gateway",
				zap.String("claim_number", p.ClaimNumber),
				zap.String("provider_id", p.ProviderID),
			)
			return nil
		}))

	queue.RegisterExecutor(syncdomain.ActionAwardSync, syncapp.ExecutorFunc(
		func(ctx context.Context, action *syncdomain.Action) error {
			p, ok := action.Payload.(*syncdomain.AwardSync)
			if !ok {
				return shared.NewDomainError("INVALID_PAYLOAD", "award sync action carries a foreign payload")
			}
			log.Info("award acknowledged to provider gateway",
				zap.String("claim_id", p.ClaimID),
				zap.String("award_usd", p.AwardUSD.String()),
			)
			return nil
		}))
}
