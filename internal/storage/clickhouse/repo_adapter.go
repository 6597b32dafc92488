package clickhouse

import (
	"context"

	"unify/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

// wrappedRepo adds the storage.Repository Close to *Repository.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

var _ storage.Repository = (*wrappedRepo)(nil)

func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func init() {
	storage.Register("clickhouse", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{
			Addr:     Addr(cfg.Host, cfg.Port, cfg.Secure),
			Database: cfg.Database,
			User:     cfg.User,
			Password: cfg.Password,
			Secure:   cfg.Secure,
			Table:    cfg.Table,
			DSN:      cfg.DSN,
		})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
}
