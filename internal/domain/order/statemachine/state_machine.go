package statemachine

import (
	"context"
	"errors"
	"fmt"

	"orders_manager/internal/domain/order/model"
	"orders_manager/internal/domain/order/repository"
	"orders_manager/internal/pkg/clock"
	"orders_manager/pkg/cache"
	"orders_manager/pkg/logger"
	"orders_manager/pkg/metrics"

	"go.uber.org/zap"
)

// StateMachine 订单状态机，所有状态变更的唯一入口
type StateMachine interface {
	// Start 初始化待支付快照，同一订单重复调用返回 ErrAlreadyExists
	Start(ctx context.Context, orderID int64, snap *model.OrderSnapshot) (*model.OrderSnapshot, error)
	// ChangeStatus 按流转表执行事件，条件更新未命中返回 ErrStaleState
	ChangeStatus(ctx context.Context, orderID int64, event model.StatusChangeEvent, delta model.StatusDelta) (*model.OrderSnapshot, error)
	// GetSnapshot 读取快照，缓存未命中时从数据库重建
	GetSnapshot(ctx context.Context, orderID int64) (*model.OrderSnapshot, error)
	// Refresh 从数据库重建快照并覆盖缓存
	Refresh(ctx context.Context, orderID int64) (*model.OrderSnapshot, error)
}

type stateMachine struct {
	table        Table
	orderRepo    repository.OrderRepository
	canceledRepo repository.CanceledRepository
	snapshots    *SnapshotCache
	clock        clock.Clock
	metrics      *metrics.MetricsCollector
}

func NewStateMachine(
	orderRepo repository.OrderRepository,
	canceledRepo repository.CanceledRepository,
	snapshots *SnapshotCache,
	clk clock.Clock,
	collector *metrics.MetricsCollector,
) (StateMachine, error) {
	if err := Validate(DefaultTable); err != nil {
		return nil, fmt.Errorf("invalid order transition table: %w", err)
	}
	return &stateMachine{
		table:        DefaultTable,
		orderRepo:    orderRepo,
		canceledRepo: canceledRepo,
		snapshots:    snapshots,
		clock:        clk,
		metrics:      collector,
	}, nil
}

func (m *stateMachine) Start(ctx context.Context, orderID int64, snap *model.OrderSnapshot) (*model.OrderSnapshot, error) {
	tr, ok := m.table.lookup(StatusNone, model.EventPlaced)
	if !ok {
		return nil, fmt.Errorf("order %d: no initial transition: %w", orderID, model.ErrInvalidTransition)
	}

	snap.ID = orderID
	snap.OrdersStatus = tr.Target
	if err := m.snapshots.Create(ctx, snap); err != nil {
		if errors.Is(err, model.ErrAlreadyExists) {
			return nil, err
		}
		logger.Log.Warn("create order snapshot failed", zap.Int64("order_id", orderID), zap.Error(err))
	}
	m.metrics.RecordTransition(string(model.EventPlaced), "ok")
	return snap, nil
}

func (m *stateMachine) ChangeStatus(ctx context.Context, orderID int64, event model.StatusChangeEvent, delta model.StatusDelta) (*model.OrderSnapshot, error) {
	// 1. 读取当前持久化状态
	order, err := m.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	// 2. 查表
	tr, ok := m.table.lookup(order.OrdersStatus, event)
	if !ok {
		m.metrics.RecordTransition(string(event), "invalid")
		return nil, fmt.Errorf("order %d: %s does not accept %s: %w", orderID, order.OrdersStatus, event, model.ErrInvalidTransition)
	}

	// 3. 条件更新，WHERE orders_status = Source
	if err := m.orderRepo.UpdateStatus(ctx, orderID, tr.Source, tr.columns(delta)); err != nil {
		if errors.Is(err, model.ErrStaleState) {
			m.metrics.RecordTransition(string(event), "stale")
		} else {
			m.metrics.RecordTransition(string(event), "error")
		}
		return nil, err
	}
	m.metrics.RecordTransition(string(event), "ok")

	// 4. 合并增量写快照，事务内则等提交后再写
	snap := model.NewSnapshot(order)
	tr.apply(snap, delta)
	snap.UpdateTime = m.clock.Now()
	repository.AfterCommit(ctx, func(ctx context.Context) {
		m.put(ctx, snap)
	})
	return snap, nil
}

func (m *stateMachine) GetSnapshot(ctx context.Context, orderID int64) (*model.OrderSnapshot, error) {
	snap, err := m.snapshots.Get(ctx, orderID)
	if err == nil {
		m.metrics.RecordSnapshotLookup(true)
		return snap, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		logger.Log.Warn("read order snapshot failed", zap.Int64("order_id", orderID), zap.Error(err))
	}
	m.metrics.RecordSnapshotLookup(false)
	return m.Refresh(ctx, orderID)
}

func (m *stateMachine) Refresh(ctx context.Context, orderID int64) (*model.OrderSnapshot, error) {
	order, err := m.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	snap := model.NewSnapshot(order)
	if order.OrdersStatus == model.OrderStatusCanceled || order.OrdersStatus == model.OrderStatusClosed {
		record, err := m.canceledRepo.GetByID(ctx, orderID)
		switch {
		case err == nil:
			snap.CancelReason = record.CancelReason
			snap.CancellerID = record.CancellerID
		case !errors.Is(err, model.ErrNotFound):
			logger.Log.Warn("load cancellation record failed", zap.Int64("order_id", orderID), zap.Error(err))
		}
	}

	repository.AfterCommit(ctx, func(ctx context.Context) {
		m.put(ctx, snap)
	})
	return snap, nil
}

// put 快照可随时重建，写失败只记日志
func (m *stateMachine) put(ctx context.Context, snap *model.OrderSnapshot) {
	if err := m.snapshots.Put(ctx, snap); err != nil {
		logger.Log.Warn("write order snapshot failed", zap.Int64("order_id", snap.ID), zap.Error(err))
	}
}
