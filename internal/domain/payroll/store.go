package payroll

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"paycore/internal/platform/querier"
)

const uniqueViolation = "23505"

var (
	_ StoreAPI          = (*Store)(nil)
	_ AttendanceSource  = (*AttendanceStore)(nil)
	_ EmployeeDirectory = (*Directory)(nil)
	_ BankDetailsWriter = (*Directory)(nil)
)

// Store is the PostgreSQL StoreAPI. Every method runs on the transaction
// carried by ctx when there is one.
type Store struct {
	DB  querier.Beginner
	log *zap.Logger
}

func NewStore(db querier.Beginner, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{DB: db, log: log.Named("payroll.store")}
}

func (s *Store) q(ctx context.Context) querier.Querier {
	return querier.From(ctx, s.DB)
}

// WithinTx runs fn in a transaction. Nested calls join the outer one.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := querier.TxFrom(ctx); ok {
		return fn(ctx)
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.log.Warn("rollback failed", zap.Error(rbErr))
		}
	}()

	if err := fn(querier.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func notFound(err, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
