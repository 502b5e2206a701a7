package service

import (
	"context"
	"errors"
	"testing"

	"orders_manager/internal/domain/order/model"
	"orders_manager/internal/domain/order/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// closed 得到已关闭、待退款的订单
func (f *fixture) closed(t *testing.T) int64 {
	id := f.dispatching(t)
	require.NoError(t, f.manager.Cancel(context.Background(), CancelInput{
		OrderID:         id,
		Reason:          "服务人员无法上门",
		CurrentUserID:   99,
		CurrentUserType: model.UserTypeOperation,
	}))
	return id
}

func refundFor(id int64) interface{} {
	return mock.MatchedBy(func(cmd strategy.RefundCommand) bool {
		return cmd.OrderID == id && cmd.TradingOrderNo == "T1" && cmd.Channel == model.ChannelWechat &&
			cmd.Amount.Equal(decimal.NewFromInt(200))
	})
}

func TestRefundService_HandleRefunds(t *testing.T) {
	ctx := context.Background()

	t.Run("Success records refund and removes the request", func(t *testing.T) {
		f := newFixture(t)
		id := f.closed(t)
		f.gateway.On("Refund", mock.Anything, refundFor(id)).
			Return(&strategy.RefundResult{Result: strategy.RefundSuccess, RefundID: "5030001", RefundNo: "R1"}, nil).Once()

		n, err := f.refunds.HandleRefunds(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		order := f.order(t, id)
		assert.Equal(t, model.OrderStatusClosed, order.OrdersStatus)
		assert.Equal(t, model.RefundStatusSuccess, order.RefundStatus)
		assert.Equal(t, "5030001", order.RefundID)
		assert.Equal(t, "R1", order.RefundNo)

		_, err = f.store.Refunds().GetByID(ctx, id)
		assert.ErrorIs(t, err, model.ErrNotFound)

		snap, err := f.sm.GetSnapshot(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.RefundStatusSuccess, snap.RefundStatus)

		n, err = f.refunds.HandleRefunds(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		f.gateway.AssertExpectations(t)
	})

	t.Run("Failure is terminal", func(t *testing.T) {
		f := newFixture(t)
		id := f.closed(t)
		f.gateway.On("Refund", mock.Anything, refundFor(id)).
			Return(&strategy.RefundResult{Result: strategy.RefundFailed, RefundNo: "R1"}, nil).Once()

		n, err := f.refunds.HandleRefunds(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, model.RefundStatusFail, f.order(t, id).RefundStatus)

		_, err = f.store.Refunds().GetByID(ctx, id)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("Pending keeps the request", func(t *testing.T) {
		f := newFixture(t)
		id := f.closed(t)
		f.gateway.On("Refund", mock.Anything, refundFor(id)).
			Return(&strategy.RefundResult{Result: strategy.RefundPending}, nil).Once()

		n, err := f.refunds.HandleRefunds(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, model.RefundStatusRefunding, f.order(t, id).RefundStatus)

		_, err = f.store.Refunds().GetByID(ctx, id)
		assert.NoError(t, err)
	})

	t.Run("Gateway error is treated as pending", func(t *testing.T) {
		f := newFixture(t)
		id := f.closed(t)
		f.gateway.On("Refund", mock.Anything, refundFor(id)).
			Return(nil, errors.New("gateway unavailable")).Once()

		n, err := f.refunds.HandleRefunds(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, model.RefundStatusRefunding, f.order(t, id).RefundStatus)

		_, err = f.store.Refunds().GetByID(ctx, id)
		assert.NoError(t, err)
	})

	t.Run("Missing requests are recreated for refunding orders", func(t *testing.T) {
		f := newFixture(t)
		id := f.closed(t)
		require.NoError(t, f.store.Refunds().Delete(ctx, id))

		f.gateway.On("Refund", mock.Anything, refundFor(id)).
			Return(&strategy.RefundResult{Result: strategy.RefundPending}, nil).Once()

		_, err := f.refunds.HandleRefunds(ctx, 100)
		require.NoError(t, err)

		req, err := f.store.Refunds().GetByID(ctx, id)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(200).Equal(req.RealPayAmount))
		f.gateway.AssertExpectations(t)
	})
}

func TestRefundService_AttemptRefund(t *testing.T) {
	ctx := context.Background()

	t.Run("Replayed terminal result still removes the request", func(t *testing.T) {
		f := newFixture(t)
		id := f.closed(t)
		req, err := f.store.Refunds().GetByID(ctx, id)
		require.NoError(t, err)

		f.gateway.On("Refund", mock.Anything, refundFor(id)).
			Return(&strategy.RefundResult{Result: strategy.RefundSuccess, RefundID: "5030001", RefundNo: "R1"}, nil)

		outcome, err := f.refunds.AttemptRefund(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, strategy.RefundSuccess, outcome)

		// 模拟删除前崩溃后的重放
		require.NoError(t, f.store.Refunds().Create(ctx, req))
		outcome, err = f.refunds.AttemptRefund(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, strategy.RefundSuccess, outcome)

		_, err = f.store.Refunds().GetByID(ctx, id)
		assert.ErrorIs(t, err, model.ErrNotFound)
		assert.Equal(t, model.RefundStatusSuccess, f.order(t, id).RefundStatus)
	})
}

func TestRefundService_RefundByOrderID(t *testing.T) {
	ctx := context.Background()

	t.Run("Refunds immediately", func(t *testing.T) {
		f := newFixture(t)
		id := f.closed(t)
		f.gateway.On("Refund", mock.Anything, refundFor(id)).
			Return(&strategy.RefundResult{Result: strategy.RefundSuccess, RefundNo: "R1"}, nil).Once()

		require.NoError(t, f.refunds.RefundByOrderID(ctx, id))
		assert.Equal(t, model.RefundStatusSuccess, f.order(t, id).RefundStatus)
	})

	t.Run("Already handled request is a no-op", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.refunds.RefundByOrderID(ctx, 404))
		f.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
	})
}
