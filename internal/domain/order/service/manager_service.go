package service

import (
	"context"
	"errors"
	"fmt"

	"orders_manager/internal/domain/order/model"
	"orders_manager/internal/domain/order/repository"
	"orders_manager/internal/domain/order/statemachine"
	"orders_manager/internal/pkg/clock"
	"orders_manager/internal/pkg/config"
	"orders_manager/internal/pkg/push"
	"orders_manager/pkg/logger"

	"go.uber.org/zap"
)

const (
	ReasonTimeoutCancel    = "order timeout auto-cancel"
	ReasonPayTimeoutCancel = "order payment timeout auto-cancel"
)

// CancelInput 取消订单参数
type CancelInput struct {
	OrderID         int64
	Reason          string
	CurrentUserID   int64
	CurrentUserName string
	CurrentUserType string
}

// RefundDispatcher 即时退款投递
type RefundDispatcher interface {
	Dispatch(orderID int64)
}

type ManagerService interface {
	// Cancel 待支付订单取消，派单中订单关闭并退款，其他状态不支持
	Cancel(ctx context.Context, in CancelInput) error
	// GetDetail 订单详情，超时未支付的订单会先对账再返回
	GetDetail(ctx context.Context, orderID int64) (*model.OrderSnapshot, error)
	// CancelOverdueOrders 取消超时未支付订单，返回取消数量
	CancelOverdueOrders(ctx context.Context, limit int) (int, error)
}

type managerService struct {
	tx           repository.Transactor
	orderRepo    repository.OrderRepository
	canceledRepo repository.CanceledRepository
	refundRepo   repository.RefundRepository
	sm           statemachine.StateMachine
	creator      CreateService
	dispatcher   RefundDispatcher
	notifier     notifier
	clock        clock.Clock
	cfg          config.OrderConfig
}

func NewManagerService(
	tx repository.Transactor,
	orderRepo repository.OrderRepository,
	canceledRepo repository.CanceledRepository,
	refundRepo repository.RefundRepository,
	sm statemachine.StateMachine,
	creator CreateService,
	dispatcher RefundDispatcher,
	pusher push.PushService,
	clk clock.Clock,
	cfg config.OrderConfig,
) ManagerService {
	return &managerService{
		tx:           tx,
		orderRepo:    orderRepo,
		canceledRepo: canceledRepo,
		refundRepo:   refundRepo,
		sm:           sm,
		creator:      creator,
		dispatcher:   dispatcher,
		notifier:     newNotifier(pusher),
		clock:        clk,
		cfg:          cfg,
	}
}

func (s *managerService) Cancel(ctx context.Context, in CancelInput) error {
	order, err := s.orderRepo.GetByID(ctx, in.OrderID)
	if err != nil {
		return err
	}
	// 普通用户只能取消自己的订单
	if in.CurrentUserType == model.UserTypeUser && order.UserID != in.CurrentUserID {
		return model.ErrNotFound
	}

	switch order.OrdersStatus {
	case model.OrderStatusNoPay:
		return s.cancelByNoPay(ctx, order, in)
	case model.OrderStatusDispatching:
		return s.cancelByDispatching(ctx, order, in)
	default:
		return fmt.Errorf("order %d is %s: %w", order.ID, order.OrdersStatus, model.ErrUnsupportedTransition)
	}
}

// cancelByNoPay 取消记录与状态变更在同一事务中，无需退款
func (s *managerService) cancelByNoPay(ctx context.Context, order *model.Order, in CancelInput) error {
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.recordCancel(ctx, order.ID, model.EventCancel, in)
	})
	if err != nil {
		return err
	}

	logger.Log.Info("order canceled", zap.Int64("order_id", order.ID),
		zap.String("canceller_type", in.CurrentUserType), zap.String("reason", in.Reason))
	if in.CurrentUserType == model.UserTypeSystem {
		s.notifier.orderCanceled(order.UserID, order.ID, in.Reason)
	}
	return nil
}

// cancelByDispatching 关闭订单后生成待退款记录并立即尝试退款
func (s *managerService) cancelByDispatching(ctx context.Context, order *model.Order, in CancelInput) error {
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.recordCancel(ctx, order.ID, model.EventCloseDispatchingOrder, in)
	})
	if err != nil {
		return err
	}
	logger.Log.Info("dispatching order closed", zap.Int64("order_id", order.ID),
		zap.String("canceller_type", in.CurrentUserType), zap.String("reason", in.Reason))

	// 待退款记录写入失败不回滚，定时任务会补建
	req := &model.RefundRequest{
		ID:             order.ID,
		TradingOrderNo: order.TradingOrderNo,
		TradingChannel: order.TradingChannel,
		RealPayAmount:  order.RealPayAmount,
	}
	if err := s.refundRepo.Create(ctx, req); err != nil {
		logger.Log.Error("create refund request failed", zap.Int64("order_id", order.ID), zap.Error(err))
		return nil
	}
	s.dispatcher.Dispatch(order.ID)
	return nil
}

func (s *managerService) recordCancel(ctx context.Context, orderID int64, event model.StatusChangeEvent, in CancelInput) error {
	now := s.clock.Now()
	record := &model.CancellationRecord{
		ID:            orderID,
		CancellerID:   in.CurrentUserID,
		CancelerName:  in.CurrentUserName,
		CancellerType: in.CurrentUserType,
		CancelReason:  in.Reason,
		CancelTime:    now,
	}
	if err := s.canceledRepo.Create(ctx, record); err != nil {
		return err
	}

	_, err := s.sm.ChangeStatus(ctx, orderID, event, model.StatusDelta{
		CancelTime:   &now,
		CancelReason: in.Reason,
		CancellerID:  in.CurrentUserID,
	})
	// 调用方已按读到的状态选定事件，此时不再接受说明状态在读取后被改动
	if errors.Is(err, model.ErrInvalidTransition) {
		return fmt.Errorf("order %d changed after it was loaded: %w", orderID, model.ErrStaleState)
	}
	return err
}

func (s *managerService) GetDetail(ctx context.Context, orderID int64) (*model.OrderSnapshot, error) {
	snap, err := s.sm.GetSnapshot(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !snap.IsPayOvertime(s.clock.Now(), s.cfg.PayTimeout) {
		return snap, nil
	}

	if _, err := s.reconcileOverdue(ctx, orderID, ReasonPayTimeoutCancel); err != nil {
		logger.Log.Warn("reconcile overdue order on read failed", zap.Int64("order_id", orderID), zap.Error(err))
	}
	// 缓存可能落后于数据库，超时订单一律从数据库重建
	return s.sm.Refresh(ctx, orderID)
}

func (s *managerService) CancelOverdueOrders(ctx context.Context, limit int) (int, error) {
	before := s.clock.Now().Add(-s.cfg.PayTimeout)
	orders, err := s.orderRepo.ListOverdueNoPay(ctx, before, limit)
	if err != nil {
		return 0, err
	}

	canceled := 0
	for _, order := range orders {
		if ctx.Err() != nil {
			return canceled, ctx.Err()
		}
		ok, err := s.reconcileOverdue(ctx, order.ID, ReasonTimeoutCancel)
		if err != nil {
			logger.Log.Warn("cancel overdue order failed", zap.Int64("order_id", order.ID), zap.Error(err))
			continue
		}
		if ok {
			canceled++
		}
	}
	return canceled, nil
}

// reconcileOverdue 超时订单先向渠道确认支付结果，确认未支付才取消
// 只处理仍为待支付的订单，并发支付或取消导致的条件更新失败视为正常
func (s *managerService) reconcileOverdue(ctx context.Context, orderID int64, reason string) (bool, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	if order.OrdersStatus != model.OrderStatusNoPay {
		return false, nil
	}

	if order.TradingOrderNo != "" {
		result, err := s.creator.GetPayResult(ctx, orderID)
		if err != nil {
			return false, err
		}
		if result.PayStatus == model.PayStatusPaySuccess {
			return false, nil
		}
	}

	err = s.cancelByNoPay(ctx, order, CancelInput{
		OrderID:         orderID,
		Reason:          reason,
		CurrentUserType: model.UserTypeSystem,
	})
	if errors.Is(err, model.ErrStaleState) || errors.Is(err, model.ErrInvalidTransition) {
		logger.Log.Debug("overdue order changed concurrently", zap.Int64("order_id", orderID))
		return false, nil
	}
	return err == nil, err
}
