// Package market holds the Crop-Tap business rules: single-farmer carts with
// frozen line prices, and orders materialized from those carts. Every
// multi-statement operation runs in one database transaction.
package market

import (
	"context"
	"database/sql"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/safar/croptap/internal/database"
	"github.com/safar/croptap/internal/metrics"
)

type Options struct {
	TxMaxRetries int
	BcryptCost   int
}

func DefaultOptions() Options {
	return Options{
		TxMaxRetries: 3,
		BcryptCost:   bcrypt.DefaultCost,
	}
}

type Service struct {
	db      *sql.DB
	logger  *zap.Logger
	metrics *metrics.Metrics
	opts    Options
}

func NewService(db *sql.DB, logger *zap.Logger, m *metrics.Metrics, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:      db,
		logger:  logger.Named("market"),
		metrics: m,
		opts:    opts,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Service) txOptions() database.TxOptions {
	opts := database.DefaultTxOptions()
	opts.MaxRetries = s.opts.TxMaxRetries
	return opts
}

func (s *Service) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return database.WithRetry(ctx, s.db, s.txOptions(), fn)
}

func (s *Service) inSerializableTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return database.WithRetry(ctx, s.db, database.SerializableTxOptions(s.opts.TxMaxRetries), fn)
}

// fail translates err and counts rejected business operations.
func (s *Service) fail(op string, err error) error {
	err = translate(err)
	kind := KindOf(err)
	if s.metrics != nil {
		s.metrics.BusinessErrors.WithLabelValues(op, kind.String()).Inc()
	}
	if kind == KindInternal {
		s.logger.Error("operation failed", zap.String("op", op), zap.Error(err))
	} else {
		s.logger.Debug("operation rejected", zap.String("op", op), zap.Stringer("kind", kind), zap.Error(err))
	}
	return err
}
