package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gorelikserver/scada-sms/internal/alarm_service/app"
	"github.com/gorelikserver/scada-sms/internal/alarm_service/calendar"
	"github.com/gorelikserver/scada-sms/internal/alarm_service/provider"
	"github.com/gorelikserver/scada-sms/internal/alarm_service/queue"
	pgrepo "github.com/gorelikserver/scada-sms/internal/alarm_service/repository/postgres"
	"github.com/gorelikserver/scada-sms/internal/platform/config"
	"github.com/gorelikserver/scada-sms/internal/platform/database"
	"github.com/gorelikserver/scada-sms/internal/platform/lease"
	"github.com/gorelikserver/scada-sms/internal/platform/logger"
	"github.com/gorelikserver/scada-sms/internal/platform/messagebroker"
)

// env is what every command starts from: configuration, a logger and
// cleanups for whatever the command opened.
type env struct {
	cfg      config.Config
	logger   *slog.Logger
	cleanups []func()
}

func newEnv(configFile string) (*env, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return &env{cfg: cfg, logger: logger.New(cfg.LogLevel)}, nil
}

func (e *env) close() {
	for i := len(e.cleanups) - 1; i >= 0; i-- {
		e.cleanups[i]()
	}
	e.cleanups = nil
}

func (e *env) openQueue() (*queue.FileQueue, error) {
	return queue.NewFileQueue(e.cfg.Queue, e.logger)
}

func (e *env) openPool(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := database.NewDBPool(ctx, e.cfg.Postgres)
	if err != nil {
		return nil, err
	}
	e.cleanups = append(e.cleanups, pool.Close)
	e.logger.DebugContext(ctx, "Connected to PostgreSQL")
	return pool, nil
}

func (e *env) newOracle(pool *pgxpool.Pool) (*calendar.Oracle, error) {
	return calendar.NewOracle(pgrepo.NewPgCalendarRepository(pool, e.logger), e.cfg.Calendar, e.logger)
}

func (e *env) newSender() (provider.SMSSenderProvider, error) {
	switch strings.ToLower(e.cfg.GatewayProvider) {
	case "mock":
		e.logger.Warn("Using mock SMS provider, no messages will be delivered")
		return provider.NewMockSMSProvider(e.logger, false, 0), nil
	case "", "http":
		return provider.NewHTTPGatewayProvider(e.logger, e.cfg.Gateway, nil)
	default:
		return nil, fmt.Errorf("unknown GATEWAY_PROVIDER %q (want http or mock)", e.cfg.GatewayProvider)
	}
}

// dispatcherOptions wires the optional NATS outcome events and Redis lease.
// A broker that cannot be reached is logged and skipped; a configured lease
// store that cannot be reached is an error.
func (e *env) dispatcherOptions(ctx context.Context) ([]app.DispatcherOption, error) {
	var opts []app.DispatcherOption

	if e.cfg.NATSUrl != "" {
		nc, err := messagebroker.NewNatsClient(e.cfg.NATSUrl, "scada-sms", e.logger)
		if err != nil {
			e.logger.WarnContext(ctx, "Outcome events disabled, NATS unavailable", "error", err)
		} else {
			e.cleanups = append(e.cleanups, nc.Close)
			opts = append(opts, app.WithOutcomePublisher(app.NewBrokerOutcomePublisher(nc, e.cfg.NATSOutcomeSubject, e.logger)))
		}
	}

	if e.cfg.RedisURL != "" {
		client, err := lease.NewClient(ctx, e.cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect dispatch lease store: %w", err)
		}
		e.cleanups = append(e.cleanups, func() { _ = client.Close() })
		opts = append(opts, app.WithLease(lease.NewRedisLease(client, lease.DefaultKey, e.cfg.LeaseTTL, e.logger)))
	}
	return opts, nil
}

// dispatchDeps holds everything a dispatching command needs.
type dispatchDeps struct {
	queue      *queue.FileQueue
	audit      *pgrepo.PgAuditRepository
	dispatcher *app.Dispatcher
}

func (e *env) buildDispatcher(ctx context.Context) (*dispatchDeps, error) {
	q, err := e.openQueue()
	if err != nil {
		return nil, err
	}
	pool, err := e.openPool(ctx)
	if err != nil {
		return nil, err
	}
	oracle, err := e.newOracle(pool)
	if err != nil {
		return nil, err
	}
	sender, err := e.newSender()
	if err != nil {
		return nil, err
	}
	opts, err := e.dispatcherOptions(ctx)
	if err != nil {
		return nil, err
	}

	resolver := app.NewRecipientResolver(pgrepo.NewPgRecipientRepository(pool, e.logger), oracle, e.logger)
	audit := pgrepo.NewPgAuditRepository(pool, e.logger)
	d := app.NewDispatcher(q, resolver, sender, audit, e.logger, e.cfg.Dispatch, opts...)
	return &dispatchDeps{queue: q, audit: audit, dispatcher: d}, nil
}
