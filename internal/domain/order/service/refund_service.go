package service

import (
	"context"
	"errors"

	"orders_manager/internal/domain/order/model"
	"orders_manager/internal/domain/order/repository"
	"orders_manager/internal/domain/order/statemachine"
	"orders_manager/internal/domain/order/strategy"
	"orders_manager/internal/pkg/push"
	"orders_manager/pkg/logger"
	"orders_manager/pkg/metrics"

	"go.uber.org/zap"
)

type RefundService interface {
	// AttemptRefund 调用一次网关退款，成功或失败时落库并删除待退款记录
	AttemptRefund(ctx context.Context, req *model.RefundRequest) (strategy.RefundOutcome, error)
	// RefundByOrderID 即时退款入口，待退款记录不存在时为空操作
	RefundByOrderID(ctx context.Context, orderID int64) error
	// HandleRefunds 定时退款，先补建缺失的待退款记录，返回拿到终态结果的数量
	HandleRefunds(ctx context.Context, limit int) (int, error)
	// RecoverOrphans 为退款中但缺少待退款记录的已关闭订单补建记录
	RecoverOrphans(ctx context.Context, limit int) (int, error)
}

type refundService struct {
	tx         repository.Transactor
	orderRepo  repository.OrderRepository
	refundRepo repository.RefundRepository
	sm         statemachine.StateMachine
	gateway    strategy.Gateway
	notifier   notifier
	metrics    *metrics.MetricsCollector
}

func NewRefundService(
	tx repository.Transactor,
	orderRepo repository.OrderRepository,
	refundRepo repository.RefundRepository,
	sm statemachine.StateMachine,
	gateway strategy.Gateway,
	pusher push.PushService,
	collector *metrics.MetricsCollector,
) RefundService {
	return &refundService{
		tx:         tx,
		orderRepo:  orderRepo,
		refundRepo: refundRepo,
		sm:         sm,
		gateway:    gateway,
		notifier:   newNotifier(pusher),
		metrics:    collector,
	}
}

func (s *refundService) AttemptRefund(ctx context.Context, req *model.RefundRequest) (strategy.RefundOutcome, error) {
	// 1. 请求网关，异常按退款中处理，记录保留等待下次重试
	result, err := s.gateway.Refund(ctx, strategy.RefundCommand{
		OrderID:        req.ID,
		TradingOrderNo: req.TradingOrderNo,
		Channel:        req.TradingChannel,
		Amount:         req.RealPayAmount,
	})
	if err != nil {
		logger.Log.Warn("refund request failed", zap.Int64("order_id", req.ID), zap.Error(err))
		s.metrics.RecordRefundAttempt("error")
		return strategy.RefundPending, nil
	}
	s.metrics.RecordRefundAttempt(result.Result.String())

	var status model.RefundStatus
	switch result.Result {
	case strategy.RefundSuccess:
		status = model.RefundStatusSuccess
	case strategy.RefundFailed:
		status = model.RefundStatusFail
	default:
		return strategy.RefundPending, nil
	}

	// 2. 写入退款结果并删除待退款记录
	var updated int64
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		n, err := s.orderRepo.UpdateRefundStatus(ctx, req.ID, status, result.RefundID, result.RefundNo)
		if err != nil {
			return err
		}
		updated = n
		return s.refundRepo.Delete(ctx, req.ID)
	})
	if err != nil {
		return result.Result, err
	}

	// 3. 重复回放只清理记录，不再刷新和推送
	if updated == 0 {
		logger.Log.Debug("refund result already recorded", zap.Int64("order_id", req.ID))
		return result.Result, nil
	}
	logger.Log.Info("refund finished", zap.Int64("order_id", req.ID),
		zap.Stringer("result", result.Result), zap.String("refund_no", result.RefundNo))

	snap, err := s.sm.Refresh(ctx, req.ID)
	if err != nil {
		logger.Log.Warn("refresh order snapshot failed", zap.Int64("order_id", req.ID), zap.Error(err))
		return result.Result, nil
	}
	s.notifier.refundFinished(snap.UserID, req.ID, status == model.RefundStatusSuccess)
	return result.Result, nil
}

func (s *refundService) RefundByOrderID(ctx context.Context, orderID int64) error {
	req, err := s.refundRepo.GetByID(ctx, orderID)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.AttemptRefund(ctx, req)
	return err
}

func (s *refundService) HandleRefunds(ctx context.Context, limit int) (int, error) {
	if _, err := s.RecoverOrphans(ctx, limit); err != nil {
		logger.Log.Warn("recover orphan refunds failed", zap.Error(err))
	}

	requests, err := s.refundRepo.ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}

	finished := 0
	for i := range requests {
		if ctx.Err() != nil {
			return finished, ctx.Err()
		}
		outcome, err := s.AttemptRefund(ctx, &requests[i])
		if err != nil {
			logger.Log.Warn("handle refund failed", zap.Int64("order_id", requests[i].ID), zap.Error(err))
			continue
		}
		if outcome != strategy.RefundPending {
			finished++
		}
	}
	return finished, nil
}

func (s *refundService) RecoverOrphans(ctx context.Context, limit int) (int, error) {
	orders, err := s.orderRepo.ListRefundingWithoutRequest(ctx, limit)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, order := range orders {
		err := s.refundRepo.Create(ctx, &model.RefundRequest{
			ID:             order.ID,
			TradingOrderNo: order.TradingOrderNo,
			TradingChannel: order.TradingChannel,
			RealPayAmount:  order.RealPayAmount,
		})
		if err != nil {
			logger.Log.Warn("recreate refund request failed", zap.Int64("order_id", order.ID), zap.Error(err))
			continue
		}
		recovered++
	}
	if recovered > 0 {
		logger.Log.Info("recovered orphan refund requests", zap.Int("count", recovered))
	}
	return recovered, nil
}
