package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/futureofwork/core/internal/config"
	"github.com/futureofwork/core/internal/database"
	"github.com/futureofwork/core/internal/middleware"
	"github.com/futureofwork/core/internal/modules/account"
	"github.com/futureofwork/core/internal/modules/account/token"
	"github.com/futureofwork/core/internal/modules/feed"
	"github.com/futureofwork/core/internal/modules/oauth"
	"github.com/futureofwork/core/internal/modules/security"
	pkgcron "github.com/futureofwork/core/internal/pkg/cron"
	"github.com/futureofwork/core/internal/pkg/bark"
	"github.com/futureofwork/core/internal/pkg/jwt"
	"github.com/futureofwork/core/internal/pkg/mail"
	"github.com/futureofwork/core/internal/pkg/metrics"
	"github.com/futureofwork/core/internal/pkg/ratelimit"
	pkgredis "github.com/futureofwork/core/internal/pkg/redis"
	"github.com/futureofwork/core/internal/pkg/session"
	"github.com/futureofwork/core/internal/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds all application dependencies.
type App struct {
	cfg     *config.AppConfig
	logger  *zap.Logger
	router  *gin.Engine
	db      *gorm.DB
	rc      *pkgredis.Client
	metrics *metrics.Metrics
	sched   *pkgcron.Scheduler
	queue   *taskqueue.Service
	ledger  *session.Ledger

	accounts *account.Service
	security *security.Service
	feed     *feed.Service
	auth     *middleware.Authenticator

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New initializes the application: config → DB → Redis → services → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	applyRuntimeSettings(cfg, logger)

	db, err := database.Connect(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(context.Background(), cfg.Redis.URL)
	if err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("redis: %w", err)
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		rc:      rc,
		metrics: metrics.New(),
		sched:   pkgcron.New(logger.Named("CronService")),
		ledger:  session.NewLedger(db, nil),
	}
	a.queue = taskqueue.NewService(rc, logger, taskqueue.Options{Observe: a.metrics.ObserveTask})

	signer := jwt.NewSigner(cfg.JWT.Secret)
	a.auth = middleware.NewAuthenticator(signer, a.ledger, db)

	a.accounts = account.NewService(account.Deps{
		DB:      db,
		Log:     logger,
		Tokens:  token.NewIssuer(cfg.Tokens.Secret, cfg.Tokens.TTL, nil),
		Signer:  signer,
		Ledger:  a.ledger,
		Limiter: ratelimit.New(rc, ""),
		Queue:   a.queue,
	}, account.Options{
		GracePeriod:    cfg.Account.GracePeriod,
		UpdateCooldown: cfg.Account.UpdateCooldown,
		ResendRate:     ratelimit.Rate{Limit: int64(cfg.Account.ResendLimit), Window: cfg.Account.ResendWindow},
		BcryptCost:     cfg.Account.BcryptCost,
		AccessTTL:      cfg.JWT.AccessTTL,
		RefreshTTL:     cfg.JWT.RefreshTTL,
	})
	a.feed = feed.NewService(db, logger, nil)
	a.accounts.OnCreate(feed.CreateStats)
	a.accounts.OnDelete(feed.PurgeUser)

	a.security = security.NewService(db, logger, a.metrics, security.Options{
		SuspiciousWindow:   cfg.Security.SuspiciousWindow,
		SuspiciousRequests: cfg.Security.SuspiciousRequests,
		BlacklistWindow:    cfg.Security.BlacklistWindow,
		BlacklistRequests:  cfg.Security.BlacklistRequests,
		ActivityRetention:  cfg.Security.ActivityRetention,
		Alerter: bark.New(bark.Config{
			Key:       cfg.Security.Bark.Key,
			ServerURL: cfg.Security.Bark.ServerURL,
			Title:     "Future of Work",
		}, logger),
	})

	account.NewMailers(a.accounts, mail.New(mail.Config{
		Enable: cfg.Mail.Enable,
		Host:   cfg.Mail.Host,
		Port:   cfg.Mail.Port,
		User:   cfg.Mail.User,
		Pass:   cfg.Mail.Pass,
		From:   cfg.Mail.From,
	}), cfg.FrontendURL).Register(a.queue)

	registerCronJobs(a.sched, a)

	if err := a.buildRouter(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) google() oauth.Verifier {
	if !a.cfg.OAuth.Google.Enable {
		return nil
	}
	return oauth.NewGoogle(a.cfg.OAuth.Google.UserInfoURL, nil)
}

// Start launches the task worker and the scheduler.
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.queue.Run(ctx)
	}()
	a.sched.Start(ctx)
}

// Addr returns the listen address.
func (a *App) Addr() string { return a.cfg.Addr() }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// MetricsAddr is the Prometheus listen address, empty when disabled.
func (a *App) MetricsAddr() string { return a.cfg.Metrics.Addr }

// MetricsHandler serves the Prometheus registry.
func (a *App) MetricsHandler() http.Handler { return a.metrics.Handler() }

// Shutdown stops background goroutines and closes connections.
func (a *App) Shutdown() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.close()
}

func (a *App) close() {
	if err := a.rc.Close(); err != nil {
		a.logger.Warn("close redis", zap.Error(err))
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}
}
