// Package app wires configuration into the stores, transport, dispatcher and
// campaign service shared by the server and worker binaries.
package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/unclebandit/outreach-dispatch/internal/cache"
	"github.com/unclebandit/outreach-dispatch/internal/config"
	"github.com/unclebandit/outreach-dispatch/internal/controller"
	"github.com/unclebandit/outreach-dispatch/internal/db"
	"github.com/unclebandit/outreach-dispatch/internal/dispatch"
	"github.com/unclebandit/outreach-dispatch/internal/logger"
	"github.com/unclebandit/outreach-dispatch/internal/planner"
	"github.com/unclebandit/outreach-dispatch/internal/queue"
	"github.com/unclebandit/outreach-dispatch/internal/repository"
	"github.com/unclebandit/outreach-dispatch/internal/service"
	"github.com/unclebandit/outreach-dispatch/internal/transport"
	"github.com/unclebandit/outreach-dispatch/internal/transport/telegram"
)

const (
	cancelFlagTTL = 24 * time.Hour
	runAction     = "campaign_run"
)

type App struct {
	Config  *config.Config
	Log     logger.Logger
	DB      *sql.DB
	Redis   *redis.Client
	Queue   queue.Queue
	Service *service.CampaignService
	Limiter *cache.RateLimiter

	closers []func() error
}

// New connects to postgres, redis and the configured queue and builds the
// campaign service on top of them.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	sqlDB, err := db.Open(ctx, cfg.Database.Postgres)
	if err != nil {
		return nil, err
	}
	a.DB = sqlDB
	a.closers = append(a.closers, sqlDB.Close)

	a.Redis = cache.NewRedis(cfg.Redis)
	a.closers = append(a.closers, a.Redis.Close)
	if err := cache.Ping(ctx, a.Redis); err != nil {
		// Rate limiting fails open and cancel flags fall back to the
		// in-process registry, so a missing redis only degrades.
		log.WithError(err).Warn("redis unavailable", map[string]interface{}{"address": cfg.Redis.Address})
	}

	q, err := NewQueue(cfg.Queue, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Queue = q
	if rq, ok := q.(*queue.RabbitQueue); ok {
		a.closers = append(a.closers, rq.Close)
	}

	cancels := cache.NewCancelFlags(a.Redis, cancelFlagTTL)
	deliveries := repository.NewDeliveryRepository(sqlDB)

	dispatcher := dispatch.New(
		NewTransport(cfg.Telegram, cfg.Dispatch.SendTimeout),
		deliveries,
		log,
		dispatch.WithDelays(dispatch.NewRandomDelays(TimingFrom(cfg.Dispatch), time.Now().UnixNano())),
		dispatch.WithCanceller(cancels),
		dispatch.WithSendTimeout(cfg.Dispatch.SendTimeout),
	)

	a.Service = &service.CampaignService{
		CampaignRepo: repository.NewCampaignRepository(sqlDB),
		ContactRepo:  repository.NewContactRepository(sqlDB),
		AccountRepo:  repository.NewAccountRepository(sqlDB),
		DeliveryRepo: deliveries,
		AuditRepo:    repository.NewAuditRepository(sqlDB),
		Dispatcher:   dispatcher,
		Policy:       PolicyFrom(cfg.Dispatch),
		Cancels:      cancels,
		Queue:        q,
		RunTopic:     cfg.Queue.Name,
		Log:          log,
	}
	a.Limiter = cache.NewRateLimiter(a.Redis, runAction, cfg.RateLimit.CampaignRuns, cfg.RateLimit.Window)
	return a, nil
}

// StartConsumer subscribes a run worker to the run topic. Runs started by
// it are cancelled when ctx is.
func (a *App) StartConsumer(ctx context.Context) error {
	w := service.NewWorker(ctx, a.Service, a.Log)
	return a.Queue.Subscribe(a.Config.Queue.Name, w.Handle)
}

// Router serves the campaign API plus /healthz and /metrics.
func (a *App) Router() http.Handler {
	return NewRouter(&controller.CampaignController{
		CampaignService: a.Service,
		Limiter:         a.Limiter,
		Log:             a.Log,
	}, a.Log)
}

// Drain stops taking new run jobs and waits for the ones in flight. Runs
// see their cancelled context and finalize as paused, so call it before
// Close.
func (a *App) Drain() {
	switch q := a.Queue.(type) {
	case *queue.InMemoryQueue:
		q.Wait()
	case *queue.RabbitQueue:
		if err := q.StopConsuming(); err != nil {
			a.Log.WithError(err).Warn("failed to cancel consumers", nil)
		}
		q.Wait()
	}
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func NewRouter(ctrl *controller.CampaignController, log logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	ctrl.Routes(r)
	return r
}

func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request", map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			})
		})
	}
}

func NewQueue(cfg config.QueueConfig, log logger.Logger) (queue.Queue, error) {
	if cfg.Driver == "rabbitmq" {
		return queue.DialRabbit(cfg.URL, cfg.MaxRetries, log)
	}
	return queue.NewInMemoryQueue(cfg.MaxRetries, log), nil
}

// NewTransport returns the Telegram Bot API transport, or the random mock
// sender when telegram.mock is set.
func NewTransport(cfg config.TelegramConfig, sendTimeout time.Duration) transport.Transport {
	if cfg.Mock {
		return transport.NewMockSender(cfg.MockSuccessRate, time.Now().UnixNano())
	}
	return telegram.New(telegram.Config{
		APIURL:     cfg.APIURL,
		RatePerSec: cfg.RatePerSec,
		Timeout:    sendTimeout,
	})
}

func PolicyFrom(d config.DispatchConfig) planner.Policy {
	return planner.Policy{
		ColdCapacity: d.ColdCapacity,
		WarmCapacity: d.WarmCapacity,
		WarmWindow:   d.WarmWindow,
	}
}

func TimingFrom(d config.DispatchConfig) dispatch.Timing {
	return dispatch.Timing{
		TypingMin: d.TypingMin,
		TypingMax: d.TypingMax,
		PacingMin: d.PacingMin,
		PacingMax: d.PacingMax,
		Cooldown:  d.Cooldown,
	}
}
