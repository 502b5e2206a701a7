package model

import "time"

// StatusChangeEvent 驱动订单状态变更的事件
type StatusChangeEvent string

const (
	EventPlaced                StatusChangeEvent = "PLACED"
	EventPayed                 StatusChangeEvent = "PAYED"
	EventCancel                StatusChangeEvent = "CANCEL"
	EventCloseDispatchingOrder StatusChangeEvent = "CLOSE_DISPATCHING_ORDER"
)

// StatusDelta 状态变更时随事件携带的增量数据
// 零值字段表示不修改
type StatusDelta struct {
	PayTime        *time.Time `json:"payTime,omitempty"`
	TradingOrderNo string     `json:"tradingOrderNo,omitempty"`
	TradingChannel string     `json:"tradingChannel,omitempty"`
	TransactionID  string     `json:"transactionId,omitempty"`

	CancelTime   *time.Time `json:"cancelTime,omitempty"`
	CancelReason string     `json:"cancelReason,omitempty"`
	CancellerID  int64      `json:"cancellerId,omitempty"`
}
