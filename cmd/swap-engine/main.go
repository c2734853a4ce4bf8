package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/Checker-Finance/swap-engine/internal/aggregator"
	"github.com/Checker-Finance/swap-engine/internal/api"
	"github.com/Checker-Finance/swap-engine/internal/chain"
	"github.com/Checker-Finance/swap-engine/internal/jobs"
	"github.com/Checker-Finance/swap-engine/internal/ledger"
	"github.com/Checker-Finance/swap-engine/internal/metrics"
	"github.com/Checker-Finance/swap-engine/internal/notify"
	"github.com/Checker-Finance/swap-engine/internal/publisher"
	"github.com/Checker-Finance/swap-engine/internal/quotecache"
	"github.com/Checker-Finance/swap-engine/internal/rate"
	internalsecrets "github.com/Checker-Finance/swap-engine/internal/secrets"
	"github.com/Checker-Finance/swap-engine/internal/store"
	"github.com/Checker-Finance/swap-engine/internal/swap"
	"github.com/Checker-Finance/swap-engine/internal/tokens"
	"github.com/Checker-Finance/swap-engine/internal/wallet"
	"github.com/Checker-Finance/swap-engine/pkg/config"
	"github.com/Checker-Finance/swap-engine/pkg/logger"
	"github.com/Checker-Finance/swap-engine/pkg/secrets"
	"github.com/Checker-Finance/swap-engine/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	zl := logger.L()
	logg.Infof("starting [%s]...", cfg.ServiceName)
	logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))

	// --- Secrets (optional) ---
	if cfg.SecretsPrefix != "" {
		awsProvider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
		}
		resolver := internalsecrets.NewResolver(zl, cfg.SecretsPrefix, awsProvider,
			secrets.NewCache[map[string]string](cfg.SecretsCacheTTL))

		if s, err := resolver.Aggregator(ctx); err != nil {
			logg.Warnw("aggregator secret unavailable, using env", "error", err)
		} else {
			cfg.AggregatorAPIKey = s.APIKey
			if s.BaseURL != "" {
				cfg.AggregatorBaseURL = s.BaseURL
			}
		}
		if s, err := resolver.Auth(ctx); err != nil {
			logg.Warnw("auth secret unavailable, using env", "error", err)
		} else {
			cfg.JWTSecret = s.JWTSecret
		}
	}
	if cfg.JWTSecret == "" {
		logg.Warn("JWT_SECRET not configured; authenticated routes will reject every request")
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	// --- Store (Postgres + Redis terminal cache) ---
	st, err := store.NewHybrid(ctx, rdb, cfg.DatabaseURL, store.PGPoolConfig{
		MaxConns:          int32(cfg.PGMaxConns),
		MinConns:          int32(cfg.PGMinConns),
		MaxConnLifetime:   cfg.PGMaxConnLifetime,
		MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
		HealthCheckPeriod: cfg.PGHealthCheckPeriod,
	}, zl)
	if err != nil {
		logg.Fatalw("failed to init store", "error", err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		logg.Fatalw("failed to ensure swap schema", "error", err)
	}

	// --- Fee ledger ---
	feeWriter := ledger.NewFeeWriter(st.PG, zl, cfg.TreasuryWallet, cfg.ServiceName)
	if err := feeWriter.EnsureSchema(ctx); err != nil {
		logg.Fatalw("failed to ensure fee ledger schema", "error", err)
	}

	// --- Chain RPC ---
	chainClient, err := chain.Dial(ctx, zl, cfg.ChainRPCURL)
	if err != nil {
		logg.Fatalw("failed to dial chain RPC", "error", err)
	}

	// --- Token registry ---
	registry := tokens.DefaultAmoy()
	if cfg.TokenListPath != "" {
		registry, err = tokens.LoadFile(cfg.TokenListPath)
		if err != nil {
			logg.Fatalw("failed to load token list", "path", cfg.TokenListPath, "error", err)
		}
	}

	// --- Rate limiter ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.AggregatorRPS,
		Burst:             cfg.AggregatorBurst,
	})

	// --- Aggregator ---
	var agg swap.Aggregator = aggregator.NewMock()
	if !cfg.AggregatorMock {
		agg = aggregator.NewOneInch(zl, aggregator.OneInchConfig{
			BaseURL: cfg.AggregatorBaseURL,
			APIKey:  cfg.AggregatorAPIKey,
			ChainID: cfg.ChainID,
		}, rateMgr, &http.Client{Timeout: cfg.AggregatorTimeout}, metrics.ObserveAggregator)
	}
	logg.Infow("aggregator configured", "provider", agg.Name(), "mock", cfg.AggregatorMock)

	// --- Quote cache ---
	var cache quotecache.Cache
	switch cfg.QuoteCacheBackend {
	case "redis":
		cache = quotecache.NewRedis(zl, rdb, time.Now)
	default:
		cache = quotecache.NewMemory(zl, time.Minute, time.Now)
	}

	// --- Events: NATS JetStream + optional RabbitMQ notifications ---
	nc, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.ServiceName))
	if err != nil {
		logg.Fatalw("failed to connect to NATS", "error", err)
	}
	pub, err := publisher.New(nc, cfg.ServiceName, zl)
	if err != nil {
		logg.Fatalw("failed to init publisher", "error", err)
	}
	sinks := []swap.EventSink{pub}
	var notifier *notify.Notifier
	if cfg.RabbitMQURL != "" {
		notifier, err = notify.Dial(cfg.RabbitMQURL, cfg.RabbitMQQueue, zl)
		if err != nil {
			logg.Fatalw("failed to init RabbitMQ notifier", "error", err)
		}
		sinks = append(sinks, notifier)
	} else {
		logg.Warn("RABBITMQ_URL not configured; swap notifications disabled")
	}
	events := swap.NewFanout(zl, sinks...)

	// --- Submission layer ---
	walletClient := wallet.New(zl, wallet.Config{
		BaseURL: cfg.WalletServiceURL,
		Token:   cfg.WalletServiceToken,
	}, rateMgr, &http.Client{Timeout: cfg.SubmitTimeout})

	// --- Swap services ---
	calc := swap.NewFeeCalculator(swap.FeeConfig{
		PlatformFeePercentage: cfg.PlatformFeePercentage,
		MinSlippage:           cfg.MinSlippage,
		MaxSlippage:           cfg.MaxSlippage,
	})
	quotes := swap.NewQuoteService(zl, swap.QuoteServiceConfig{
		QuoteTTL:            cfg.QuoteTTL,
		AggregatorTimeout:   cfg.AggregatorTimeout,
		DefaultSlippage:     cfg.DefaultSlippage,
		DefaultGasPriceGwei: cfg.DefaultGasPriceGwei,
	}, registry, agg, chainClient, cache, calc)

	tracker := swap.NewTracker(zl, swap.TrackerConfig{RPCTimeout: cfg.ChainRPCTimeout},
		st, chainClient, walletClient, events, feeWriter)

	poller := swap.NewPoller(ctx, zl, tracker, cfg.SwapPollInterval, cfg.SwapPollMaxDuration)

	executor := swap.NewExecutionService(zl, swap.ExecutionConfig{
		BalanceTimeout: cfg.ChainRPCTimeout,
		SubmitTimeout:  cfg.SubmitTimeout,
	}, quotes, chainClient, walletClient, st, events, poller)

	// --- Pending sweeper ---
	sweeper := jobs.NewPendingSweeper(zl, st, tracker, jobs.SweeperConfig{
		Interval: cfg.SweepInterval,
		MinAge:   cfg.SweepMinAge,
		Batch:    cfg.SweepBatch,
	}).WithFeeBackfill(st, feeWriter)
	go sweeper.Start(ctx)

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})

	handler := api.NewSwapHandler(zl, quotes, executor, tracker, st, walletClient, api.SlippageBounds{
		Min: cfg.MinSlippage,
		Max: cfg.MaxSlippage,
	}).WithTokens(registry)
	auth := api.NewAuthenticator(api.AuthConfig{
		HMACSecret: cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		Leeway:     cfg.JWTLeeway,
	}, zl)

	api.RegisterRoutes(app, handler, auth, map[string]api.HealthChecker{
		"store": st,
		"nats": api.HealthCheckFunc(func(context.Context) error {
			if !pub.Healthy() {
				return errors.New("disconnected")
			}
			return nc.FlushTimeout(time.Second)
		}),
	})

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow(fmt.Sprintf("[%s] running", cfg.ServiceName),
		"env", cfg.Env,
		"chain_id", cfg.ChainID,
		"nats", cfg.NATSURL,
		"quote_cache", cfg.QuoteCacheBackend,
		"poll_interval", cfg.SwapPollInterval)

	<-ctx.Done()
	logg.Infof("shutting down [%s]...", cfg.ServiceName)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	sweeper.Stop()
	poller.Stop()
	pub.Close()
	if notifier != nil {
		if err := notifier.Close(); err != nil {
			logg.Warnw("rabbitmq.close_failed", "error", err)
		}
	}
	chainClient.Close()
	st.Close()
	if err := rdb.Close(); err != nil {
		logg.Warnw("redis.close_failed", "error", err)
	}
}
