package model

import (
	"time"

	baseModel "orders_manager/pkg/model"

	"github.com/shopspring/decimal"
)

// OrderStatus 订单状态
type OrderStatus int

const (
	OrderStatusNoPay       OrderStatus = 0   // 待支付
	OrderStatusDispatching OrderStatus = 100 // 派单中
	OrderStatusNoServe     OrderStatus = 200 // 待服务
	OrderStatusServing     OrderStatus = 300 // 服务中
	OrderStatusFinished    OrderStatus = 500 // 已完成
	OrderStatusCanceled    OrderStatus = 600 // 已取消
	OrderStatusClosed      OrderStatus = 700 // 已关闭
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusNoPay:
		return "NO_PAY"
	case OrderStatusDispatching:
		return "DISPATCHING"
	case OrderStatusNoServe:
		return "NO_SERVE"
	case OrderStatusServing:
		return "SERVING"
	case OrderStatusFinished:
		return "FINISHED"
	case OrderStatusCanceled:
		return "CANCELED"
	case OrderStatusClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// PayStatus 支付状态
type PayStatus int

const (
	PayStatusNoPay      PayStatus = 2
	PayStatusPaySuccess PayStatus = 4
)

// RefundStatus 退款状态，订单关闭后才有意义
type RefundStatus int

const (
	RefundStatusNone      RefundStatus = 0
	RefundStatusRefunding RefundStatus = 1
	RefundStatusSuccess   RefundStatus = 2
	RefundStatusFail      RefundStatus = 3
)

// 支付渠道
const (
	ChannelAlipay = "ALI_PAY"
	ChannelWechat = "WECHAT_PAY"
)

// Order 订单模型
type Order struct {
	ID             int64           `gorm:"primaryKey;autoIncrement:false" json:"id"`
	UserID         int64           `gorm:"index;not null" json:"userId"`
	ServeID        int64           `json:"serveId"`
	ServeItemName  string          `gorm:"size:100" json:"serveItemName"`
	Price          decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price"`
	PurNum         int             `gorm:"not null" json:"purNum"`
	TotalAmount    decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"totalAmount"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"discountAmount"`
	RealPayAmount  decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"realPayAmount"`
	ServeStartTime time.Time       `json:"serveStartTime"`
	SortBy         int64           `gorm:"index" json:"sortBy"`
	OrdersStatus   OrderStatus     `gorm:"not null;index:idx_orders_status_created" json:"ordersStatus"`
	PayStatus      PayStatus       `gorm:"not null" json:"payStatus"`
	RefundStatus   RefundStatus    `gorm:"not null" json:"refundStatus"`
	TradingOrderNo string          `gorm:"size:64" json:"tradingOrderNo"`
	TradingChannel string          `gorm:"size:32" json:"tradingChannel"`
	TransactionID  string          `gorm:"size:64" json:"transactionId"` // 第三方支付交易号
	RefundID       string          `gorm:"size:64" json:"refundId"`
	RefundNo       string          `gorm:"size:64" json:"refundNo"`
	PayTime        *time.Time      `json:"payTime,omitempty"`
	CancelTime     *time.Time      `json:"cancelTime,omitempty"`
	baseModel.TimeModel
}

func (Order) TableName() string { return "orders" }

// IsPayOvertime 待支付且超过宽限期
func (o *Order) IsPayOvertime(now time.Time, grace time.Duration) bool {
	return o.OrdersStatus == OrderStatusNoPay && o.CreatedAt.Add(grace).Before(now)
}
