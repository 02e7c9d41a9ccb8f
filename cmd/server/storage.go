package main

import (
	"context"
	"fmt"
	"time"

	"ordertx/internal/core/tx"
	"ordertx/internal/domain/audit"
	"ordertx/internal/domain/notification"
	"ordertx/internal/domain/order"
	"ordertx/internal/domain/product"
	"ordertx/internal/infrastructure/http/v1/handlers"
	"ordertx/internal/infrastructure/mail"
	"ordertx/internal/infrastructure/storage/memory"
	"ordertx/internal/infrastructure/storage/postgres"
	"ordertx/internal/infrastructure/storage/postgres/order_repo"
	"ordertx/internal/infrastructure/storage/postgres/product_repo"
	"ordertx/pkg/logger"
)

// storage bundles one backend: the transactional resource and the
// repositories bound to it.
type storage struct {
	kind     string
	resource tx.Resource
	products product.Repository
	orders   order.Repository
	audit    audit.Repository
	pinger   handlers.Pinger
	closers  []func()
}

func (s *storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStorage(ctx context.Context, log *logger.Logger) (*storage, error) {
	switch kind := getEnv("STORAGE", "memory"); kind {
	case "memory":
		return openMemory(log), nil
	case "postgres":
		return openPostgres(ctx, log)
	default:
		return nil, fmt.Errorf("unknown STORAGE %q (want postgres or memory)", kind)
	}
}

func openMemory(log *logger.Logger) *storage {
	store := memory.NewStore(memory.WithLockTimeout(getEnvDuration("TX_LOCK_TIMEOUT", 5*time.Second)))
	log.Warn("using in-memory storage; data is lost on restart")

	return &storage{
		kind:     "memory",
		resource: store,
		products: memory.NewProductRepo(store),
		orders:   memory.NewOrderRepo(store),
		audit:    memory.NewAuditRepo(store),
		pinger:   store,
	}
}

func openPostgres(ctx context.Context, log *logger.Logger) (*storage, error) {
	dsn := getEnv("DATABASE_URL", "")
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when STORAGE=postgres")
	}

	poolCfg := postgres.DefaultPoolConfig(dsn)
	poolCfg.MaxConns = int32(getEnvInt("DB_MAX_CONNS", int(poolCfg.MaxConns)))
	poolCfg.MinConns = int32(getEnvInt("DB_MIN_CONNS", int(poolCfg.MinConns)))

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	s := &storage{kind: "postgres", closers: []func(){pool.Close}}
	log.Infow("database connection established", "max_conns", poolCfg.MaxConns)

	if getEnv("DB_MIGRATE", "true") == "true" {
		if err := postgres.Migrate(ctx, pool); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	txOpts := postgres.DefaultTxOptions()
	txOpts.StatementTimeout = getEnvDuration("TX_STATEMENT_TIMEOUT", txOpts.StatementTimeout)
	txOpts.LockTimeout = getEnvDuration("TX_LOCK_TIMEOUT", txOpts.LockTimeout)
	resource := postgres.NewResource(pool, txOpts)

	auditRepo, err := postgres.NewAuditRepo(resource, getEnvInt("AUDIT_COMPRESS_THRESHOLD", postgres.DefaultCompressThreshold))
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, auditRepo.Close)

	if interval := getEnvDuration("DB_STATS_INTERVAL", 0); interval > 0 {
		go logPoolStats(ctx, pool, interval)
	}

	s.resource = resource
	s.products = product_repo.New(resource)
	s.orders = order_repo.New(resource)
	s.audit = auditRepo
	s.pinger = resource
	return s, nil
}

func logPoolStats(ctx context.Context, pool *postgres.Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pool.LogStats(ctx)
		}
	}
}

func openNotifier(log *logger.Logger) (notification.Notifier, error) {
	switch driver := getEnv("MAIL_DRIVER", "log"); driver {
	case "log":
		return mail.NewLogNotifier(log), nil
	case "smtp":
		n, err := mail.NewSMTPNotifier(mail.SMTPConfig{
			Addr:     getEnv("SMTP_ADDR", "localhost:25"),
			From:     getEnv("SMTP_FROM", ""),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
		})
		if err != nil {
			return nil, err
		}
		log.Infow("mail via smtp", "addr", getEnv("SMTP_ADDR", "localhost:25"))
		return n, nil
	default:
		return nil, fmt.Errorf("unknown MAIL_DRIVER %q (want smtp or log)", driver)
	}
}
