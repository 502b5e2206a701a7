package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orders_manager/internal/domain/order/model"
	"orders_manager/internal/domain/order/repository"
	"orders_manager/internal/domain/order/statemachine"
	"orders_manager/internal/domain/order/strategy"
	"orders_manager/internal/pkg/clock"
	"orders_manager/internal/pkg/config"
	"orders_manager/internal/pkg/idgen"
	"orders_manager/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PlaceOrderInput 下单参数，服务项价格由调用方查询后传入
type PlaceOrderInput struct {
	UserID         int64
	ServeID        int64
	ServeItemName  string
	Price          decimal.Decimal
	PurNum         int
	ServeStartTime time.Time
}

// PayResult 支付信息
type PayResult struct {
	OrderID        int64           `json:"id"`
	PayStatus      model.PayStatus `json:"payStatus"`
	TradingOrderNo string          `json:"tradingOrderNo,omitempty"`
	TradingChannel string          `json:"tradingChannel,omitempty"`
	QRCode         string          `json:"qrCode,omitempty"`
}

type CreateService interface {
	PlaceOrder(ctx context.Context, in PlaceOrderInput) (*model.OrderSnapshot, error)
	// Pay 发起支付，已支付时直接返回支付信息
	Pay(ctx context.Context, orderID, userID int64, channel string) (*PayResult, error)
	// GetPayResult 主动向支付渠道查询支付结果
	GetPayResult(ctx context.Context, orderID int64) (*PayResult, error)
	// PaySuccess 应用支付成功通知，重复通知为空操作
	PaySuccess(ctx context.Context, msg model.TradeStatusMsg) error
}

type createService struct {
	tx        repository.Transactor
	orderRepo repository.OrderRepository
	sm        statemachine.StateMachine
	idGen     idgen.Generator
	gateway   strategy.Gateway
	clock     clock.Clock
	trade     config.TradeConfig
}

func NewCreateService(
	tx repository.Transactor,
	orderRepo repository.OrderRepository,
	sm statemachine.StateMachine,
	idGen idgen.Generator,
	gateway strategy.Gateway,
	clk clock.Clock,
	trade config.TradeConfig,
) CreateService {
	return &createService{
		tx:        tx,
		orderRepo: orderRepo,
		sm:        sm,
		idGen:     idGen,
		gateway:   gateway,
		clock:     clk,
		trade:     trade,
	}
}

func (s *createService) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*model.OrderSnapshot, error) {
	if in.UserID == 0 {
		return nil, fmt.Errorf("user id is required: %w", model.ErrValidation)
	}
	if !in.Price.IsPositive() {
		return nil, fmt.Errorf("price must be positive: %w", model.ErrValidation)
	}
	if in.PurNum < 0 {
		return nil, fmt.Errorf("purchase quantity must not be negative: %w", model.ErrValidation)
	}
	if in.PurNum == 0 {
		in.PurNum = 1
	}

	// 1. 生成订单号
	id, err := s.idGen.Next(ctx)
	if err != nil {
		return nil, err
	}

	// 2. 计算金额，暂无优惠
	total := in.Price.Mul(decimal.NewFromInt(int64(in.PurNum)))
	discount := decimal.Zero
	order := &model.Order{
		ID:             id,
		UserID:         in.UserID,
		ServeID:        in.ServeID,
		ServeItemName:  in.ServeItemName,
		Price:          in.Price,
		PurNum:         in.PurNum,
		TotalAmount:    total,
		DiscountAmount: discount,
		RealPayAmount:  total.Sub(discount),
		ServeStartTime: in.ServeStartTime,
		SortBy:         in.ServeStartTime.UnixMilli() + id%100000,
		OrdersStatus:   model.OrderStatusNoPay,
		PayStatus:      model.PayStatusNoPay,
		RefundStatus:   model.RefundStatusNone,
	}
	order.CreatedAt = s.clock.Now()
	order.UpdatedAt = order.CreatedAt

	// 3. 落库并初始化快照
	var snap *model.OrderSnapshot
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.orderRepo.Create(ctx, order); err != nil {
			return err
		}
		started, err := s.sm.Start(ctx, id, model.NewSnapshot(order))
		snap = started
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("order placed", zap.Int64("order_id", id), zap.Int64("user_id", in.UserID),
		zap.String("real_pay_amount", order.RealPayAmount.StringFixed(2)))
	return snap, nil
}

func (s *createService) Pay(ctx context.Context, orderID, userID int64, channel string) (*PayResult, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if userID != 0 && order.UserID != userID {
		return nil, model.ErrNotFound
	}

	// 1. 已支付直接返回
	if order.PayStatus == model.PayStatusPaySuccess && order.TradingOrderNo != "" {
		return payResultOf(order), nil
	}
	if order.OrdersStatus != model.OrderStatusNoPay {
		return nil, fmt.Errorf("order %d is %s: %w", orderID, order.OrdersStatus, model.ErrInvalidTransition)
	}

	// 2. 渠道对应的商户号
	var merchantID int64
	switch channel {
	case model.ChannelAlipay:
		merchantID = s.trade.AliEnterpriseID
	case model.ChannelWechat:
		merchantID = s.trade.WechatEnterpriseID
	default:
		return nil, fmt.Errorf("unsupported payment channel %q: %w", channel, model.ErrValidation)
	}

	// 3. 同渠道复用支付单，切换渠道时重新下单
	changeChannel := order.TradingChannel != "" && order.TradingChannel != channel
	tradingOrderNo := order.TradingOrderNo
	if changeChannel {
		tradingOrderNo = ""
	}

	resp, err := s.gateway.CreateTransaction(ctx, strategy.NativePayRequest{
		MerchantID:     merchantID,
		ProductAppID:   s.trade.ProductAppID,
		OrderID:        orderID,
		Channel:        channel,
		Amount:         order.RealPayAmount,
		Memo:           order.ServeItemName,
		TradingOrderNo: tradingOrderNo,
		ChangeChannel:  changeChannel,
	})
	if err != nil {
		return nil, err
	}

	// 4. 记录支付单号
	if err := s.orderRepo.UpdateTrading(ctx, orderID, resp.TradingOrderNo, resp.TradingChannel); err != nil {
		return nil, err
	}
	if _, err := s.sm.Refresh(ctx, orderID); err != nil {
		logger.Log.Warn("refresh order snapshot failed", zap.Int64("order_id", orderID), zap.Error(err))
	}

	return &PayResult{
		OrderID:        orderID,
		PayStatus:      model.PayStatusNoPay,
		TradingOrderNo: resp.TradingOrderNo,
		TradingChannel: resp.TradingChannel,
		QRCode:         resp.QRCode,
	}, nil
}

func (s *createService) GetPayResult(ctx context.Context, orderID int64) (*PayResult, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PayStatus != model.PayStatusNoPay || order.TradingOrderNo == "" {
		return payResultOf(order), nil
	}

	trade, err := s.gateway.QueryTransaction(ctx, order.TradingChannel, order.TradingOrderNo)
	if err != nil {
		return nil, err
	}
	if trade.State != strategy.TradeStatePaid {
		return payResultOf(order), nil
	}

	err = s.PaySuccess(ctx, model.TradeStatusMsg{
		ProductOrderNo: orderID,
		ProductAppID:   s.trade.ProductAppID,
		StatusCode:     model.TradeStatusPaid,
		TradingOrderNo: trade.TradingOrderNo,
		TradingChannel: trade.Channel,
		TransactionID:  trade.TransactionID,
		PayTime:        trade.PayTime,
	})
	if err != nil {
		return nil, err
	}

	order, err = s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return payResultOf(order), nil
}

func (s *createService) PaySuccess(ctx context.Context, msg model.TradeStatusMsg) error {
	order, err := s.orderRepo.GetByID(ctx, msg.ProductOrderNo)
	if err != nil {
		return err
	}

	// 已处理过的通知
	if order.PayStatus != model.PayStatusNoPay {
		logger.Log.Debug("duplicate pay notification ignored", zap.Int64("order_id", order.ID))
		return nil
	}
	if msg.TransactionID == "" {
		return fmt.Errorf("order %d: pay notification without transaction id: %w", order.ID, model.ErrValidation)
	}

	payTime := s.clock.Now()
	if msg.PayTime != nil {
		payTime = *msg.PayTime
	}
	_, err = s.sm.ChangeStatus(ctx, order.ID, model.EventPayed, model.StatusDelta{
		PayTime:        &payTime,
		TradingOrderNo: msg.TradingOrderNo,
		TradingChannel: msg.TradingChannel,
		TransactionID:  msg.TransactionID,
	})
	if errors.Is(err, model.ErrStaleState) {
		logger.Log.Info("pay success lost the race to another transition", zap.Int64("order_id", order.ID))
		return nil
	}
	if errors.Is(err, model.ErrInvalidTransition) {
		// 订单已取消但渠道侧支付成功，需要人工处理
		logger.Log.Error("payment received for a non payable order",
			zap.Int64("order_id", order.ID), zap.Stringer("status", order.OrdersStatus),
			zap.String("transaction_id", msg.TransactionID))
	}
	return err
}

func payResultOf(order *model.Order) *PayResult {
	return &PayResult{
		OrderID:        order.ID,
		PayStatus:      order.PayStatus,
		TradingOrderNo: order.TradingOrderNo,
		TradingChannel: order.TradingChannel,
	}
}
