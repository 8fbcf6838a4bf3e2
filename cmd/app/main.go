// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"tw-license-service/internal/config"
	"tw-license-service/internal/domain/ports/adapter"
	"tw-license-service/internal/domain/ports/repository"
	"tw-license-service/internal/infra/api"
	"tw-license-service/internal/infra/api/apiv1"
	"tw-license-service/internal/infra/db/memory"
	pg "tw-license-service/internal/infra/db/postgres"
	"tw-license-service/internal/infra/events"
	"tw-license-service/internal/infra/logging"
	"tw-license-service/internal/infra/metrics"
	"tw-license-service/internal/infra/ratelimit"
	red "tw-license-service/internal/infra/redis"
	"tw-license-service/internal/infra/sched"
	"tw-license-service/internal/infra/security"
	"tw-license-service/internal/usecase"
)

// set via -ldflags
var (
	version = "dev"
	commit  = "none"
)

type stores struct {
	licenses repository.LicenseRepository
	devices  repository.DeviceRepository
	tm       repository.TransactionManager
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted keys)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
		if cfg.Auth.JWTSecret == "" {
			cfg.Auth.JWTSecret = "dev-secret-do-not-use"
		}
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Redis (optional) ----
	var redisClient red.RedisClient
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer rc.Close()
		redisClient = rc
	}

	// ---- Storage ----
	st, closeStore := openStores(ctx, cfg, redisClient, logger)
	defer closeStore()

	// ---- Events ----
	var publisher adapter.EventPublisher = events.NoopPublisher{}
	if len(cfg.Events.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("kafka publisher")
		}
		// the pool outlives ctx so Close can flush after the server stops
		publisher = events.NewAsyncPublisher(context.WithoutCancel(ctx), kp, cfg.Events.Workers, cfg.Events.QueueSize, cfg.Server.StoreTimeout, logger)
		logger.Info().Strs("brokers", cfg.Events.Brokers).Str("topic", cfg.Events.Topic).Msg("publishing license events")
	}

	// ---- Rate limiting ----
	var (
		limiter adapter.RateLimiter
		sweeper adapter.Sweeper
	)
	if cfg.RateLimits.Backend == "redis" {
		limiter = red.NewRateLimiter(redisClient)
	} else {
		mem := ratelimit.NewMemoryLimiter()
		limiter, sweeper = mem, mem
	}
	guard := usecase.NewRateGuard(limiter, ratePolicies(cfg.RateLimits), cfg.Server.StoreTimeout, logger)

	var locker adapter.Locker
	if redisClient != nil {
		locker = red.NewLocker(redisClient)
	}

	// ---- Use cases ----
	settings := usecase.LicenseSettings{
		StoreTimeout:           cfg.Server.StoreTimeout,
		EnforceChecksum:        cfg.License.EnforceChecksum,
		KeyRetryLimit:          cfg.License.KeyRetryLimit,
		DefaultActivationLimit: cfg.License.DefaultActivationLimit,
		Dev:                    cfg.Runtime.Dev,
	}
	activationUC := usecase.NewActivationUseCase(st.licenses, st.devices, st.tm, publisher, settings, logger)
	validationUC := usecase.NewValidationUseCase(st.licenses, st.devices, publisher, settings, logger)
	issuanceUC := usecase.NewIssuanceUseCase(st.licenses, st.devices, locker, publisher, settings, logger)

	// ---- HTTP ----
	auth := api.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	v1 := apiv1.NewServer(activationUC, validationUC, issuanceUC, guard, auth, logger)
	router := api.NewRouter(cfg.Server, logger, func(r chi.Router) { apiv1.RegisterAPIV1(r, v1) })
	server := api.NewServer(cfg.Server, router, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Background workers ----
	expiry := sched.NewLicenseExpiryWorker(cfg.Scheduler.ExpiryInterval, issuanceUC, logger)
	go runWorker(ctx, logger, "license expiry", expiry.Run)
	if sweeper != nil {
		sw := sched.NewRateLimitSweepWorker(cfg.Scheduler.RateLimitSweepInterval, sweeper, logger)
		go runWorker(ctx, logger, "rate limit sweep", sw.Run)
	}

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown requested")

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel() // stops the background workers
	if err := publisher.Close(); err != nil {
		logger.Warn().Err(err).Msg("close event publisher")
	}
}

func openStores(ctx context.Context, cfg *config.Config, redisClient red.RedisClient, logger *zerolog.Logger) (stores, func()) {
	if cfg.Database.Driver == "memory" {
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		mem := memory.NewStore()
		return stores{licenses: mem, devices: mem, tm: mem}, func() {}
	}

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	var cipher pg.NameCipher
	if cfg.Security.EncryptionKey != "" {
		fc, err := security.NewFieldCipher(cfg.Security.EncryptionKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("encryption")
		}
		cipher = fc
	} else {
		logger.Warn().Msg("security.encryption_key not set; device names stored in plaintext")
	}

	var licenses repository.LicenseRepository = pg.NewLicenseRepo(pool)
	if redisClient != nil {
		licenses = pg.NewLicenseRepoCacheDecorator(licenses, redisClient, cfg.Redis.TTL, logger)
	}
	return stores{
		licenses: licenses,
		devices:  pg.NewDeviceRepo(pool, cipher),
		tm:       pg.NewTxManager(pool),
	}, pool.Close
}

func ratePolicies(rl config.RateLimitConfig) map[usecase.Operation]usecase.RatePolicy {
	p := func(c config.Policy) usecase.RatePolicy { return usecase.RatePolicy{Limit: c.Limit, Window: c.Window} }
	return map[usecase.Operation]usecase.RatePolicy{
		usecase.OpActivate: p(rl.Activate),
		usecase.OpValidate: p(rl.Validate),
		usecase.OpList:     p(rl.List),
		usecase.OpRename:   p(rl.Rename),
		usecase.OpRevoke:   p(rl.Revoke),
	}
}

func runWorker(ctx context.Context, logger *zerolog.Logger, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Str("worker", name).Msg("worker stopped")
	}
}
