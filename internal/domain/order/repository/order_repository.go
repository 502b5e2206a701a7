package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orders_manager/internal/domain/order/model"

	"gorm.io/gorm"
)

type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id int64) (*model.Order, error)
	// UpdateStatus 条件更新 WHERE id = ? AND orders_status = from，未命中返回 ErrStaleState
	UpdateStatus(ctx context.Context, id int64, from model.OrderStatus, columns map[string]interface{}) error
	// UpdateTrading 记录支付单号与渠道，订单状态不变
	UpdateTrading(ctx context.Context, id int64, tradingOrderNo, channel string) error
	// ListOverdueNoPay 查询 created_at 早于 before 的待支付订单
	ListOverdueNoPay(ctx context.Context, before time.Time, limit int) ([]model.Order, error)
	// UpdateRefundStatus 仅当退款状态与目标不同时更新，返回影响行数
	UpdateRefundStatus(ctx context.Context, id int64, status model.RefundStatus, refundID, refundNo string) (int64, error)
	// ListRefundingWithoutRequest 已关闭、退款中但缺少待退款记录的订单
	ListRefundingWithoutRequest(ctx context.Context, limit int) ([]model.Order, error)
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	if err := conn(ctx, r.db).Create(order).Error; err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	var order model.Order
	if err := conn(ctx, r.db).Where("id = ?", id).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	return &order, nil
}

// UpdateStatus 乐观锁更新订单状态
func (r *orderRepository) UpdateStatus(ctx context.Context, id int64, from model.OrderStatus, columns map[string]interface{}) error {
	result := conn(ctx, r.db).Model(&model.Order{}).
		Where("id = ? AND orders_status = ?", id, from).
		Updates(columns)

	if result.Error != nil {
		return fmt.Errorf("update order %d status: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return model.ErrStaleState
	}
	return nil
}

func (r *orderRepository) UpdateTrading(ctx context.Context, id int64, tradingOrderNo, channel string) error {
	result := conn(ctx, r.db).Model(&model.Order{}).
		Where("id = ? AND pay_status = ?", id, model.PayStatusNoPay).
		Updates(map[string]interface{}{
			"trading_order_no": tradingOrderNo,
			"trading_channel":  channel,
		})

	if result.Error != nil {
		return fmt.Errorf("update order %d trading: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return model.ErrStaleState
	}
	return nil
}

func (r *orderRepository) ListOverdueNoPay(ctx context.Context, before time.Time, limit int) ([]model.Order, error) {
	var orders []model.Order
	err := conn(ctx, r.db).
		Where("orders_status = ? AND created_at < ?", model.OrderStatusNoPay, before).
		Order("created_at").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("list overdue orders: %w", err)
	}
	return orders, nil
}

func (r *orderRepository) UpdateRefundStatus(ctx context.Context, id int64, status model.RefundStatus, refundID, refundNo string) (int64, error) {
	columns := map[string]interface{}{"refund_status": status}
	if refundID != "" {
		columns["refund_id"] = refundID
	}
	if refundNo != "" {
		columns["refund_no"] = refundNo
	}

	result := conn(ctx, r.db).Model(&model.Order{}).
		Where("id = ? AND refund_status <> ?", id, status).
		Updates(columns)
	if result.Error != nil {
		return 0, fmt.Errorf("update order %d refund status: %w", id, result.Error)
	}
	return result.RowsAffected, nil
}

func (r *orderRepository) ListRefundingWithoutRequest(ctx context.Context, limit int) ([]model.Order, error) {
	var orders []model.Order
	err := conn(ctx, r.db).
		Where("orders_status = ? AND refund_status = ?", model.OrderStatusClosed, model.RefundStatusRefunding).
		Where("NOT EXISTS (SELECT 1 FROM orders_refund r WHERE r.id = orders.id)").
		Order("updated_at").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("list orphan refunding orders: %w", err)
	}
	return orders, nil
}
