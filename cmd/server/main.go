package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/gso-inventory-auth/internal/audit"
	"github.com/iliyamo/gso-inventory-auth/internal/config"
	"github.com/iliyamo/gso-inventory-auth/internal/database"
	"github.com/iliyamo/gso-inventory-auth/internal/handler"
	"github.com/iliyamo/gso-inventory-auth/internal/logger"
	"github.com/iliyamo/gso-inventory-auth/internal/middleware"
	"github.com/iliyamo/gso-inventory-auth/internal/queue"
	"github.com/iliyamo/gso-inventory-auth/internal/repository"
	"github.com/iliyamo/gso-inventory-auth/internal/revocation"
	"github.com/iliyamo/gso-inventory-auth/internal/router"
	"github.com/iliyamo/gso-inventory-auth/internal/service"
	"github.com/iliyamo/gso-inventory-auth/internal/utils"
	"github.com/iliyamo/gso-inventory-auth/internal/worker"
)

func main() {
	_ = godotenv.Load() // .env is optional; real environment wins
	cfg := config.Load()
	log := logger.New(cfg.Env)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dsn := database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if cfg.DBMigrate {
		if err := database.Migrate(dsn, "up"); err != nil {
			log.Fatalw("migrations failed", "error", err)
		}
	}
	db, err := database.Open(dsn)
	if err != nil {
		log.Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	// Shared state lives in Redis when it answers; a single instance can run
	// on process memory.
	rdb, err := config.NewRedisClient(config.LoadRedisConfig())
	if err != nil {
		log.Warnw("redis unavailable, using in-process revocation and rate limits", "error", err)
	}
	var (
		registry revocation.Registry
		pruner   worker.Pruner
	)
	if rdb != nil {
		defer rdb.Close()
		registry = revocation.NewRedis(rdb, cfg.RevocationPfx)
	} else {
		mem := revocation.NewMemory()
		registry, pruner = mem, mem
	}

	users := repository.NewUserRepo(db)
	sessions := repository.NewSessionRepo(db, cfg.SessionTTL())
	resets := repository.NewPasswordResetRepo(db)
	auditRepo := repository.NewAuditRepo(db)
	rec := audit.NewRecorder(auditRepo, log)
	tokens := utils.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTTL())

	authSvc := service.NewAuthService(service.AuthDeps{
		Users:      users,
		Sessions:   sessions,
		Resets:     resets,
		Tokens:     tokens,
		Registry:   registry,
		Mailer:     queue.NewPublisher(cfg.AMQPURL, log),
		Log:        log,
		BcryptCost: cfg.BcryptCost,
		ResetTTL:   cfg.ResetTTL(),
		BaseURL:    cfg.AppBaseURL,
	})
	sessionSvc := service.NewSessionService(sessions, registry, tokens.TTL(), log)

	e := echo.New()
	e.HideBanner = true
	ipx, err := middleware.IPExtractor(cfg.TrustedProxies)
	if err != nil {
		log.Fatalw("invalid TRUSTED_PROXIES", "error", err)
	}
	e.IPExtractor = ipx
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))

	limiter := middleware.NewLimiter(config.LoadRateLimitConfig(), rdb, log)
	requireAuth := middleware.Auth(tokens, registry, sessions, log)
	router.RegisterRoutes(e, handler.Health{DB: db, Audit: rec}, limiter)
	router.RegisterAuth(e, handler.NewAuthHandler(authSvc, log), requireAuth, limiter, rec)
	router.RegisterSessions(e, handler.NewSessionHandler(sessionSvc, log), requireAuth, limiter, rec)
	router.RegisterAdmin(e, handler.NewAdminHandler(sessionSvc, auditRepo, log), requireAuth, limiter, rec)

	reaper := &worker.Reaper{Sessions: sessions, Registry: pruner, Interval: cfg.ReaperInterval, Log: log}
	go reaper.Run(ctx)

	if cfg.MailSinkEnabled {
		sink := &queue.MailSink{URL: cfg.AMQPURL, Log: log}
		go func() {
			if err := sink.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warnw("mail sink stopped", "error", err)
			}
		}()
	}

	addr := ":" + cfg.Port
	go func() {
		log.Infow("listening", "addr", addr, "env", cfg.Env, "shared_state", rdb != nil)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Errorw("graceful shutdown failed", "error", err)
	}
	rec.Wait()
	authSvc.Wait()
	log.Info("stopped cleanly")
}
