package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"orders_manager/internal/domain/order/model"
)

// Router 按渠道分发到具体的支付策略
type Router struct {
	mu         sync.RWMutex
	strategies map[string]PaymentStrategy
	timeout    time.Duration
}

// NewRouter timeout 为单次渠道调用的超时
func NewRouter(timeout time.Duration) *Router {
	return &Router{
		strategies: make(map[string]PaymentStrategy),
		timeout:    timeout,
	}
}

// RegisterStrategy 注册支付策略
func (r *Router) RegisterStrategy(s PaymentStrategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Channel()] = s
}

func (r *Router) strategy(channel string) (PaymentStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[channel]
	if !ok {
		return nil, fmt.Errorf("unsupported payment channel %q: %w", channel, model.ErrValidation)
	}
	return s, nil
}

func (r *Router) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Router) CreateTransaction(ctx context.Context, req NativePayRequest) (*NativePayResponse, error) {
	s, err := r.strategy(req.Channel)
	if err != nil {
		return nil, err
	}
	if req.TradingOrderNo == "" {
		req.TradingOrderNo = NewTradingOrderNo(req.OrderID)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	resp, err := s.NativePay(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s native pay order %d: %v: %w", req.Channel, req.OrderID, err, model.ErrExternalService)
	}
	return resp, nil
}

func (r *Router) QueryTransaction(ctx context.Context, channel, tradingOrderNo string) (*TradeResult, error) {
	s, err := r.strategy(channel)
	if err != nil {
		return nil, err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	result, err := s.Query(ctx, tradingOrderNo)
	if err != nil {
		return nil, fmt.Errorf("%s query %s: %v: %w", channel, tradingOrderNo, err, model.ErrExternalService)
	}
	return result, nil
}

func (r *Router) Refund(ctx context.Context, cmd RefundCommand) (*RefundResult, error) {
	s, err := r.strategy(cmd.Channel)
	if err != nil {
		return nil, err
	}
	if cmd.RefundNo == "" {
		cmd.RefundNo = RefundNo(cmd.OrderID)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	result, err := s.Refund(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("%s refund order %d: %v: %w", cmd.Channel, cmd.OrderID, err, model.ErrExternalService)
	}
	return result, nil
}

// Notify 解析渠道回调
func (r *Router) Notify(ctx context.Context, channel string, params interface{}) (*TradeResult, error) {
	s, err := r.strategy(channel)
	if err != nil {
		return nil, err
	}
	return s.Notify(ctx, params)
}

var _ Gateway = (*Router)(nil)
