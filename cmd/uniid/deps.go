package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"uniid/internal/identity/sequence"
	"uniid/internal/identity/service"
	"uniid/internal/identity/store"
	"uniid/internal/identity/sweep"
	"uniid/internal/notify"
	"uniid/internal/platform/config"
	"uniid/internal/platform/postgres"
	"uniid/internal/platform/redis"
)

// dependencies holds the adapters selected by configuration.
type dependencies struct {
	kind     string
	store    service.Store
	tx       service.StoreTx
	counter  sweep.Counter
	sequence service.Sequencer
	notifier service.Notifier

	db    *sql.DB
	redis *redis.Client
	kafka *kgo.Client
}

// buildDeps selects Postgres when DATABASE_URL is set and in-memory stores
// otherwise. The sequence comes from Redis when configured, else from the
// chosen store.
func buildDeps(ctx context.Context, cfg *config.Server, log *slog.Logger) (*dependencies, error) {
	deps := &dependencies{}

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if db != nil {
		deps.db = db
		deps.kind = "postgres"
		pg := store.NewPostgres(db, store.WithTxTimeout(cfg.TxTimeout))
		deps.store, deps.tx, deps.counter = pg, pg, pg
		deps.sequence = sequence.NewPostgres(db)
	} else {
		log.WarnContext(ctx, "DATABASE_URL not set, identities are kept in memory")
		deps.kind = "memory"
		mem := store.NewInMemory()
		deps.store, deps.tx, deps.counter = mem, mem, mem
		deps.sequence = sequence.NewInMemory()
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		deps.Close()
		return nil, err
	}
	if rc != nil {
		deps.redis = rc
		deps.sequence = sequence.NewRedis(rc.Client)
	}

	notifier, err := deps.buildNotifier(cfg.Notify, log)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.notifier = notifier
	return deps, nil
}

func (d *dependencies) buildNotifier(cfg config.Notify, log *slog.Logger) (service.Notifier, error) {
	switch {
	case cfg.SMTP.Host != "":
		return notify.NewSMTP(cfg.SMTP), nil
	case len(cfg.Kafka.Brokers) > 0:
		client, err := notify.NewKafkaClient(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, fmt.Errorf("kafka notifier: %w", err)
		}
		d.kafka = client
		return notify.NewKafka(client, cfg.Kafka.Topic), nil
	default:
		return notify.NewLog(log), nil
	}
}

// Health pings every external backend in use.
func (d *dependencies) Health(ctx context.Context) error {
	var errs []error
	if d.db != nil {
		errs = append(errs, d.db.PingContext(ctx))
	}
	if d.redis != nil {
		errs = append(errs, d.redis.Health(ctx))
	}
	return errors.Join(errs...)
}

func (d *dependencies) Close() {
	if d.kafka != nil {
		d.kafka.Close()
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.db != nil {
		_ = d.db.Close()
	}
}
