package strategy

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"orders_manager/internal/domain/order/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const tradingSuffixLen = 8

// TradeState 支付单状态
type TradeState int

const (
	TradeStatePaying TradeState = iota + 1 // 待支付
	TradeStatePaid                         // 已支付
	TradeStateClosed                       // 已关闭
	TradeStateFailed                       // 支付失败
)

// RefundOutcome 退款结果，SUCCESS/FAILED 为终态
type RefundOutcome int

const (
	RefundPending RefundOutcome = iota
	RefundSuccess
	RefundFailed
)

func (o RefundOutcome) String() string {
	switch o {
	case RefundSuccess:
		return "success"
	case RefundFailed:
		return "failed"
	default:
		return "pending"
	}
}

// NativePayRequest 扫码支付下单
type NativePayRequest struct {
	MerchantID     int64
	ProductAppID   string
	OrderID        int64
	Channel        string
	Amount         decimal.Decimal
	Memo           string
	TradingOrderNo string // 为空时生成新的支付单号
	ChangeChannel  bool   // 是否切换了支付渠道
}

type NativePayResponse struct {
	TradingOrderNo string
	TradingChannel string
	QRCode         string
}

// TradeResult 渠道支付单查询或回调的结果
type TradeResult struct {
	TradingOrderNo string
	Channel        string
	State          TradeState
	TransactionID  string
	PayTime        *time.Time
	Amount         decimal.Decimal
}

// RefundCommand 退款请求，RefundNo 作为渠道侧幂等键
type RefundCommand struct {
	OrderID        int64
	TradingOrderNo string
	Channel        string
	Amount         decimal.Decimal
	RefundNo       string
}

type RefundResult struct {
	Result   RefundOutcome
	RefundID string
	RefundNo string
}

// PaymentStrategy 单个支付渠道
type PaymentStrategy interface {
	Channel() string
	// NativePay 发起扫码支付，返回二维码内容
	NativePay(ctx context.Context, req NativePayRequest) (*NativePayResponse, error)
	Query(ctx context.Context, tradingOrderNo string) (*TradeResult, error)
	Refund(ctx context.Context, cmd RefundCommand) (*RefundResult, error)
	// Notify 验签并解析渠道异步通知
	Notify(ctx context.Context, params interface{}) (*TradeResult, error)
}

// Gateway 支付网关
type Gateway interface {
	CreateTransaction(ctx context.Context, req NativePayRequest) (*NativePayResponse, error)
	QueryTransaction(ctx context.Context, channel, tradingOrderNo string) (*TradeResult, error)
	Refund(ctx context.Context, cmd RefundCommand) (*RefundResult, error)
}

// NewTradingOrderNo 生成支付单号：订单号 + 8 位随机串
func NewTradingOrderNo(orderID int64) string {
	return fmt.Sprintf("%d%s", orderID, uuid.NewString()[:tradingSuffixLen])
}

// OrderIDFromTradingOrderNo 从支付单号还原订单号
func OrderIDFromTradingOrderNo(tradingOrderNo string) (int64, error) {
	if len(tradingOrderNo) <= tradingSuffixLen {
		return 0, fmt.Errorf("malformed trading order no %q: %w", tradingOrderNo, model.ErrValidation)
	}
	id, err := strconv.ParseInt(tradingOrderNo[:len(tradingOrderNo)-tradingSuffixLen], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed trading order no %q: %w", tradingOrderNo, model.ErrValidation)
	}
	return id, nil
}

// RefundNo 退款单号由订单号确定，重复提交不会重复退款
func RefundNo(orderID int64) string {
	return fmt.Sprintf("R%d", orderID)
}

// toFen 元转分
func toFen(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
