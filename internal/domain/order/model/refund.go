package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RefundRequest 待退款记录，拿到终态结果后删除
type RefundRequest struct {
	ID             int64           `gorm:"primaryKey;autoIncrement:false" json:"id"` // 订单 id
	TradingOrderNo string          `gorm:"size:64" json:"tradingOrderNo"`
	TradingChannel string          `gorm:"size:32" json:"tradingChannel"`
	RealPayAmount  decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"realPayAmount"`
	CreatedAt      time.Time       `json:"createTime"`
}

func (RefundRequest) TableName() string { return "orders_refund" }

// TradeStatusMsg 支付服务推送的交易状态
type TradeStatusMsg struct {
	ProductOrderNo int64      `json:"productOrderNo"`
	ProductAppID   string     `json:"productAppId"`
	StatusCode     int        `json:"statusCode"`
	TradingOrderNo string     `json:"tradingOrderNo"`
	TradingChannel string     `json:"tradingChannel"`
	TransactionID  string     `json:"transactionId"`
	PayTime        *time.Time `json:"payTime,omitempty"`
}

// TradeStatusPaid 支付服务的"已结算"状态码
const TradeStatusPaid = 4
