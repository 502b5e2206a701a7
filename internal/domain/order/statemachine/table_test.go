package statemachine

import (
	"testing"

	"orders_manager/internal/domain/order/model"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	t.Run("Default table is valid", func(t *testing.T) {
		assert.NoError(t, Validate(DefaultTable))
	})

	t.Run("Conflicting targets", func(t *testing.T) {
		table := append(Table{}, DefaultTable...)
		table = append(table, Transition{Source: model.OrderStatusNoPay, Event: model.EventPayed, Target: model.OrderStatusServing})
		assert.ErrorContains(t, Validate(table), "conflicting")
	})

	t.Run("Duplicate identical rows are allowed", func(t *testing.T) {
		table := append(Table{}, DefaultTable...)
		table = append(table, DefaultTable[1])
		assert.NoError(t, Validate(table))
	})

	t.Run("Unknown event", func(t *testing.T) {
		table := append(Table{}, DefaultTable...)
		table = append(table, Transition{Source: model.OrderStatusNoPay, Event: "REFUND", Target: model.OrderStatusClosed})
		assert.ErrorContains(t, Validate(table), "unknown event")
	})

	t.Run("Unknown state", func(t *testing.T) {
		table := append(Table{}, DefaultTable...)
		table = append(table, Transition{Source: model.OrderStatusNoPay, Event: model.EventCancel, Target: model.OrderStatus(42)})
		assert.ErrorContains(t, Validate(table), "unknown state")
	})

	t.Run("Unreachable source", func(t *testing.T) {
		table := append(Table{}, DefaultTable...)
		table = append(table, Transition{Source: model.OrderStatusServing, Event: model.EventCancel, Target: model.OrderStatusFinished})
		assert.ErrorContains(t, Validate(table), "unreachable")
	})
}

func TestTransitionColumns(t *testing.T) {
	t.Run("Close marks refund in progress", func(t *testing.T) {
		tr, ok := DefaultTable.lookup(model.OrderStatusDispatching, model.EventCloseDispatchingOrder)
		assert.True(t, ok)

		cols := tr.columns(model.StatusDelta{CancelReason: "changed my mind"})
		assert.Equal(t, model.OrderStatusClosed, cols["orders_status"])
		assert.Equal(t, model.RefundStatusRefunding, cols["refund_status"])
		assert.NotContains(t, cols, "cancel_reason")
	})

	t.Run("Pay records pay status", func(t *testing.T) {
		tr, ok := DefaultTable.lookup(model.OrderStatusNoPay, model.EventPayed)
		assert.True(t, ok)

		cols := tr.columns(model.StatusDelta{TradingOrderNo: "T1", TransactionID: "X1"})
		assert.Equal(t, model.PayStatusPaySuccess, cols["pay_status"])
		assert.Equal(t, "T1", cols["trading_order_no"])
		assert.Equal(t, "X1", cols["transaction_id"])
	})
}
