package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Jlypx/BetterForward-enhance/internal/cache"
	"github.com/Jlypx/BetterForward-enhance/internal/config"
	"github.com/Jlypx/BetterForward-enhance/internal/database"
	"github.com/Jlypx/BetterForward-enhance/internal/handler"
	"github.com/Jlypx/BetterForward-enhance/internal/i18n"
	"github.com/Jlypx/BetterForward-enhance/internal/jobs"
	"github.com/Jlypx/BetterForward-enhance/internal/metrics"
	"github.com/Jlypx/BetterForward-enhance/internal/middleware"
	"github.com/Jlypx/BetterForward-enhance/internal/model"
	"github.com/Jlypx/BetterForward-enhance/internal/redis"
	"github.com/Jlypx/BetterForward-enhance/internal/relay"
	"github.com/Jlypx/BetterForward-enhance/internal/repository"
	"github.com/Jlypx/BetterForward-enhance/internal/service"
	"github.com/Jlypx/BetterForward-enhance/internal/telegram"
	"github.com/Jlypx/BetterForward-enhance/internal/util"
	"github.com/Jlypx/BetterForward-enhance/internal/worker"
)

const webhookPath = "/telegram/webhook"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("relay stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("relay stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, config.DBPingTimeout)
	err = db.Ping(pingCtx)
	if err == nil {
		err = db.Migrate(pingCtx)
	}
	cancel()
	if err != nil {
		return err
	}
	log.Info().Bool("postgres", cfg.UsePostgres()).Msg("database ready")

	var mappingCache cache.Cache = cache.Nop{}
	var limiter relay.FloodLimiter
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")

		mappingCache = cache.NewRedisCache(redisClient.Client)
		if cfg.FloodLimitPerMin > 0 {
			limiter = service.NewFloodLimiter(redisClient.Client, cfg.FloodLimitPerMin)
		}
	}

	convService := service.NewConversationService(
		db, repository.NewConversationRepository(db.DB), mappingCache, config.MappingCacheTTL,
	)
	messageService := service.NewMessageService(repository.NewMessageLinkRepository(db.DB))

	client, err := telegram.NewClient(cfg.Token, cfg.APIURL)
	if err != nil {
		return err
	}
	identifyCtx, cancel := context.WithTimeout(ctx, config.ServerRequestTimeout)
	me, err := client.Identify(identifyCtx)
	cancel()
	if err != nil {
		return err
	}
	log.Info().
		Str("bot", me.Username).
		Str("token", util.MaskToken(cfg.Token)).
		Int64("groupId", cfg.GroupID).
		Msg("bot authorized")

	rl := relay.New(client, convService, messageService, i18n.New(cfg.Language), relay.Options{
		GroupID:      cfg.GroupID,
		StartMessage: cfg.StartMessage,
		Limiter:      limiter,
	})

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var fatalMu sync.Mutex
	var fatalErr error
	supervisor := relay.NewSupervisor(rl, relay.RetryPolicy{
		Base:        cfg.RetryBase(),
		Multiplier:  2,
		MaxAttempts: cfg.RetryMaxAttempts,
		MaxDelay:    cfg.RetryMaxDelay(),
	}, func(err error) {
		fatalMu.Lock()
		defer fatalMu.Unlock()
		if fatalErr == nil {
			fatalErr = err
			log.Error().Err(err).Msg("storage unavailable, stopping relay")
			cancelRun()
		}
	})

	pool := worker.NewPool(cfg.Workers, supervisor.Handle, supervisor.Abandon)
	dispatcher := relay.NewDispatcher(cfg.GroupID, pool, relay.WithSelfID(me.ID))

	metrics.Register()
	metrics.StartDBCollectors(runCtx, convService, messageService, config.MetricsPollInterval)

	cleanupJob := jobs.NewCleanupJob(messageService, cfg.LinkRetention(), config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	g, gctx := errgroup.WithContext(runCtx)

	var updates <-chan model.Update
	var webhook *handler.WebhookHandler
	if cfg.WebhookMode() {
		secret := cfg.WebhookSecret
		if secret == "" {
			if secret, err = util.GenerateToken(); err != nil {
				return err
			}
		}
		stream := make(chan model.Update, config.UpdateBufferSize)
		webhook = handler.NewWebhookHandler(stream)
		updates = stream

		if err := client.SetWebhook(gctx, cfg.WebhookURL, secret); err != nil {
			return err
		}
		cfg.WebhookSecret = secret
	} else {
		if updates, err = client.Poll(gctx, config.PollTimeoutSeconds, config.UpdateBufferSize); err != nil {
			return err
		}
		log.Info().Msg("long polling started")
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      newRouter(cfg, db, pool, webhook),
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	g.Go(func() error {
		// The update stream only closes when intake has stopped for good.
		defer cancelRun()
		return dispatcher.Run(gctx, updates)
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
		}
		return nil
	})

	runErr := g.Wait()

	// The server is down now, so nothing else can enter the stream.
	dispatcher.Drain(updates)

	log.Info().Int("pendingJobs", pool.Pending()).Msg("draining relay jobs")
	graceCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
	defer cancel()
	if err := pool.Shutdown(graceCtx); err != nil {
		log.Warn().Err(err).Msg("relay jobs abandoned at shutdown")
	}

	fatalMu.Lock()
	defer fatalMu.Unlock()
	if fatalErr != nil {
		return fatalErr
	}
	return runErr
}

func newRouter(cfg *config.Config, db *database.DB, pool *worker.Pool, webhook *handler.WebhookHandler) http.Handler {
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(cfg.WebhookMode())
	healthHandler := handler.NewHealthHandler(db, pool, config.DBPingTimeout)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.HTTPMiddleware)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", healthHandler.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	if webhook != nil {
		secretToken := middleware.NewSecretTokenMiddleware(cfg.WebhookSecret)
		r.With(secretToken.Handler).Post(webhookPath, webhook.Webhook)
	}

	return r
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
