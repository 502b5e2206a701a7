package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"orders_manager/internal/domain/order/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestOrderRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("Missing row maps to ErrNotFound", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderRepository(db)

		mock.ExpectQuery(`SELECT \* FROM "orders" WHERE id = \$1`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.GetByID(ctx, 1)
		assert.ErrorIs(t, err, model.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderRepository(db)

		rows := sqlmock.NewRows([]string{"id", "user_id", "orders_status", "pay_status", "real_pay_amount"}).
			AddRow(int64(7), int64(3), 100, 4, "200.00")
		mock.ExpectQuery(`SELECT \* FROM "orders" WHERE id = \$1`).WillReturnRows(rows)

		order, err := repo.GetByID(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, model.OrderStatusDispatching, order.OrdersStatus)
		assert.Equal(t, model.PayStatusPaySuccess, order.PayStatus)
		assert.True(t, decimal.NewFromInt(200).Equal(order.RealPayAmount))
	})
}

func TestOrderRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	columns := map[string]interface{}{"orders_status": model.OrderStatusCanceled}

	t.Run("Conditional update hits", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderRepository(db)

		mock.ExpectExec(`UPDATE "orders" SET .* WHERE id = \$\d+ AND orders_status = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.UpdateStatus(ctx, 1, model.OrderStatusNoPay, columns))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Zero rows is a stale state", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderRepository(db)

		mock.ExpectExec(`UPDATE "orders" SET .* WHERE id = \$\d+ AND orders_status = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateStatus(ctx, 1, model.OrderStatusNoPay, columns)
		assert.ErrorIs(t, err, model.ErrStaleState)
	})

	t.Run("Driver errors are wrapped", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderRepository(db)

		mock.ExpectExec(`UPDATE "orders"`).WillReturnError(errors.New("connection reset"))

		err := repo.UpdateStatus(ctx, 1, model.OrderStatusNoPay, columns)
		require.Error(t, err)
		assert.NotErrorIs(t, err, model.ErrStaleState)
	})
}

func TestOrderRepository_UpdateRefundStatus(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)

	mock.ExpectExec(`UPDATE "orders" SET .* WHERE id = \$\d+ AND refund_status <> \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "orders" SET .* WHERE id = \$\d+ AND refund_status <> \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := repo.UpdateRefundStatus(ctx, 9, model.RefundStatusSuccess, "r-1", "no-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.UpdateRefundStatus(ctx, 9, model.RefundStatusSuccess, "r-1", "no-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_ListOverdueNoPay(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)

	rows := sqlmock.NewRows([]string{"id", "orders_status"}).
		AddRow(int64(1), 0).
		AddRow(int64(2), 0)
	mock.ExpectQuery(`SELECT \* FROM "orders" WHERE orders_status = \$1 AND created_at < \$2 ORDER BY created_at LIMIT`).
		WillReturnRows(rows)

	orders, err := repo.ListOverdueNoPay(context.Background(), time.Now().Add(-15*time.Minute), 2)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Create ignores duplicates", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRefundRepository(db)

		mock.ExpectExec(`INSERT INTO "orders_refund" .* ON CONFLICT \("id"\) DO NOTHING`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Create(ctx, &model.RefundRequest{ID: 5, RealPayAmount: decimal.NewFromInt(200)})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Delete by order id", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRefundRepository(db)

		mock.ExpectExec(`DELETE FROM "orders_refund" WHERE id = \$1`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Delete(ctx, 5))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactor(t *testing.T) {
	ctx := context.Background()

	t.Run("Commit runs after-commit hooks", func(t *testing.T) {
		db, mock := newMockDB(t)
		tx := NewTransactor(db)
		repo := NewOrderRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "orders"`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		fired := false
		err := tx.WithTx(ctx, func(ctx context.Context) error {
			AfterCommit(ctx, func(context.Context) { fired = true })
			assert.False(t, fired)
			return repo.UpdateStatus(ctx, 1, model.OrderStatusNoPay, map[string]interface{}{"orders_status": model.OrderStatusCanceled})
		})
		require.NoError(t, err)
		assert.True(t, fired)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Rollback drops after-commit hooks", func(t *testing.T) {
		db, mock := newMockDB(t)
		tx := NewTransactor(db)

		mock.ExpectBegin()
		mock.ExpectRollback()

		fired := false
		err := tx.WithTx(ctx, func(ctx context.Context) error {
			AfterCommit(ctx, func(context.Context) { fired = true })
			return model.ErrStaleState
		})
		assert.ErrorIs(t, err, model.ErrStaleState)
		assert.False(t, fired)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Nested WithTx reuses the outer transaction", func(t *testing.T) {
		db, mock := newMockDB(t)
		tx := NewTransactor(db)

		mock.ExpectBegin()
		mock.ExpectCommit()

		err := tx.WithTx(ctx, func(ctx context.Context) error {
			return tx.WithTx(ctx, func(context.Context) error { return nil })
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Without a transaction hooks run immediately", func(t *testing.T) {
		fired := false
		AfterCommit(ctx, func(context.Context) { fired = true })
		assert.True(t, fired)
	})
}
