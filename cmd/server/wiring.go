package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	accountmetrics "biblioteca/internal/accounts/metrics"
	accountservice "biblioteca/internal/accounts/service"
	accountstore "biblioteca/internal/accounts/store"
	catalogservice "biblioteca/internal/catalog/service"
	catalogstore "biblioteca/internal/catalog/store"
	lendingmetrics "biblioteca/internal/lending/metrics"
	lendingmodels "biblioteca/internal/lending/models"
	lendingservice "biblioteca/internal/lending/service"
	lendingstore "biblioteca/internal/lending/store"
	"biblioteca/internal/platform/config"
	"biblioteca/internal/platform/postgres"
	"biblioteca/internal/platform/redis"
	"biblioteca/internal/reporting"
	audit "biblioteca/pkg/platform/audit"
	"biblioteca/pkg/platform/audit/publisher"
	kafkasink "biblioteca/pkg/platform/audit/sink/kafka"
	auditmemory "biblioteca/pkg/platform/audit/store/memory"
	auditpostgres "biblioteca/pkg/platform/audit/store/postgres"
)

type accountStore interface {
	accountservice.Store
	lendingservice.AccountDirectory
}

type catalogStore interface {
	catalogservice.Store
	lendingservice.Inventory
	reporting.CatalogReader
}

type loanStore interface {
	lendingservice.Store
	reporting.LoanReader
}

// infra holds the storage backends chosen from configuration: Postgres when
// DATABASE_URL is set, in-memory stores otherwise.
type infra struct {
	kind      string
	db        *sql.DB
	redis     *redis.Client
	accounts  accountStore
	catalog   catalogStore
	loans     loanStore
	ledgerTx  lendingservice.LedgerTx
	publisher *publisher.Publisher
}

func openInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	in := &infra{}
	var auditStore audit.Store

	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		in.kind = "postgres"
		in.db = db
		in.accounts = accountstore.NewPostgres(db)
		in.catalog = catalogstore.NewPostgres(db)
		in.loans = lendingstore.NewPostgres(db)
		in.ledgerTx = lendingstore.NewPostgresTx(db)
		auditStore = auditpostgres.New(db)
	} else {
		in.kind = "memory"
		in.accounts = accountstore.NewInMemory()
		in.catalog = catalogstore.NewInMemory()
		in.loans = lendingstore.NewInMemory()
		in.ledgerTx = lendingservice.NewShardedTx()
		auditStore = auditmemory.NewInMemoryStore()
	}

	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		in.Close()
		return nil, err
	}
	in.redis = client

	opts := []publisher.Option{publisher.WithLogger(log), publisher.WithAsyncBuffer(1024)}
	if len(cfg.Kafka.Brokers) > 0 {
		if err := kafkasink.EnsureTopic(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, -1); err != nil {
			log.Warn("audit topic not ensured", "topic", cfg.Kafka.AuditTopic, "error", err)
		}
		sink, err := kafkasink.New(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("audit sink: %w", err)
		}
		opts = append(opts, publisher.WithSink(sink))
	}
	in.publisher = publisher.NewPublisher(auditStore, opts...)
	return in, nil
}

// Health reports the first failing dependency.
func (in *infra) Health(ctx context.Context) error {
	if in.db != nil {
		if err := in.db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if in.redis != nil {
		if err := in.redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close drains the audit publisher, which also closes the Kafka sink, before
// closing the connections it may still be writing to.
func (in *infra) Close() {
	if in.publisher != nil {
		in.publisher.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
}

type services struct {
	accounts  *accountservice.Service
	catalog   *catalogservice.Service
	lending   *lendingservice.Service
	reporting *reporting.Service
}

func buildServices(cfg config.Server, in *infra, log *slog.Logger) services {
	reg := prometheus.DefaultRegisterer

	reportOpts := []reporting.Option{
		reporting.WithLogger(log),
		reporting.WithLocation(cfg.Lending.Location),
	}
	if in.redis != nil {
		reportOpts = append(reportOpts, reporting.WithCache(reporting.NewRedisCache(in.redis.Client, cfg.Redis.DashboardTTL)))
	}

	return services{
		accounts: accountservice.New(in.accounts,
			accountservice.WithLogger(log),
			accountservice.WithAuditPublisher(in.publisher),
			accountservice.WithMetrics(accountmetrics.New(reg)),
		),
		catalog: catalogservice.New(in.catalog,
			catalogservice.WithLogger(log),
			catalogservice.WithAuditPublisher(in.publisher),
		),
		lending: lendingservice.New(in.loans, in.catalog, in.accounts,
			lendingservice.WithLogger(log),
			lendingservice.WithAuditPublisher(in.publisher),
			lendingservice.WithMetrics(lendingmetrics.New(reg)),
			lendingservice.WithLedgerTx(in.ledgerTx),
			lendingservice.WithFinePerDay(lendingmodels.Money(cfg.Lending.FinePerDay)),
			lendingservice.WithDefaultLoanDays(cfg.Lending.DefaultLoanDays),
			lendingservice.WithMaxLoanDays(cfg.Lending.MaxLoanDays),
			lendingservice.WithLocation(cfg.Lending.Location),
		),
		reporting: reporting.New(in.catalog, in.loans, reportOpts...),
	}
}
