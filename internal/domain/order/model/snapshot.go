package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSnapshot 订单快照，由订单行与最近一次事件的增量数据合成
// 只是读模型，随时可以从数据库重建
type OrderSnapshot struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"userId"`
	ServeID        int64           `json:"serveId"`
	ServeItemName  string          `json:"serveItemName"`
	Price          decimal.Decimal `json:"price"`
	PurNum         int             `json:"purNum"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	RealPayAmount  decimal.Decimal `json:"realPayAmount"`
	ServeStartTime time.Time       `json:"serveStartTime"`
	SortBy         int64           `json:"sortBy"`
	OrdersStatus   OrderStatus     `json:"ordersStatus"`
	PayStatus      PayStatus       `json:"payStatus"`
	RefundStatus   RefundStatus    `json:"refundStatus"`
	TradingOrderNo string          `json:"tradingOrderNo,omitempty"`
	TradingChannel string          `json:"tradingChannel,omitempty"`
	TransactionID  string          `json:"transactionId,omitempty"`
	RefundID       string          `json:"refundId,omitempty"`
	RefundNo       string          `json:"refundNo,omitempty"`
	PayTime        *time.Time      `json:"payTime,omitempty"`
	CancelTime     *time.Time      `json:"cancelTime,omitempty"`
	CancelReason   string          `json:"cancelReason,omitempty"`
	CancellerID    int64           `json:"cancellerId,omitempty"`
	CreateTime     time.Time       `json:"createTime"`
	UpdateTime     time.Time       `json:"updateTime"`
}

// NewSnapshot 根据订单行构建快照
func NewSnapshot(o *Order) *OrderSnapshot {
	return &OrderSnapshot{
		ID:             o.ID,
		UserID:         o.UserID,
		ServeID:        o.ServeID,
		ServeItemName:  o.ServeItemName,
		Price:          o.Price,
		PurNum:         o.PurNum,
		TotalAmount:    o.TotalAmount,
		DiscountAmount: o.DiscountAmount,
		RealPayAmount:  o.RealPayAmount,
		ServeStartTime: o.ServeStartTime,
		SortBy:         o.SortBy,
		OrdersStatus:   o.OrdersStatus,
		PayStatus:      o.PayStatus,
		RefundStatus:   o.RefundStatus,
		TradingOrderNo: o.TradingOrderNo,
		TradingChannel: o.TradingChannel,
		TransactionID:  o.TransactionID,
		RefundID:       o.RefundID,
		RefundNo:       o.RefundNo,
		PayTime:        o.PayTime,
		CancelTime:     o.CancelTime,
		CreateTime:     o.CreatedAt,
		UpdateTime:     o.UpdatedAt,
	}
}

// Apply 合并事件增量，空字段保持原值
func (s *OrderSnapshot) Apply(status OrderStatus, delta StatusDelta) {
	s.OrdersStatus = status
	if delta.PayTime != nil {
		s.PayTime = delta.PayTime
		s.PayStatus = PayStatusPaySuccess
	}
	if delta.TradingOrderNo != "" {
		s.TradingOrderNo = delta.TradingOrderNo
	}
	if delta.TradingChannel != "" {
		s.TradingChannel = delta.TradingChannel
	}
	if delta.TransactionID != "" {
		s.TransactionID = delta.TransactionID
	}
	if delta.CancelTime != nil {
		s.CancelTime = delta.CancelTime
	}
	if delta.CancelReason != "" {
		s.CancelReason = delta.CancelReason
	}
	if delta.CancellerID != 0 {
		s.CancellerID = delta.CancellerID
	}
}

// IsPayOvertime 与 Order.IsPayOvertime 一致，供读路径使用
func (s *OrderSnapshot) IsPayOvertime(now time.Time, grace time.Duration) bool {
	return s.OrdersStatus == OrderStatusNoPay && s.CreateTime.Add(grace).Before(now)
}
