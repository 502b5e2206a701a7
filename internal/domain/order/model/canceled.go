package model

import "time"

// 取消操作人类型
const (
	UserTypeUser      = "USER"
	UserTypeSystem    = "SYSTEM"
	UserTypeOperation = "OPERATION"
)

// CancellationRecord 订单取消记录，只写一次
type CancellationRecord struct {
	ID            int64     `gorm:"primaryKey;autoIncrement:false" json:"id"` // 订单 id
	CancellerID   int64     `json:"cancellerId"`
	CancelerName  string    `gorm:"size:64" json:"cancelerName"`
	CancellerType string    `gorm:"size:16;not null" json:"cancellerType"`
	CancelReason  string    `gorm:"size:255" json:"cancelReason"`
	CancelTime    time.Time `gorm:"not null" json:"cancelTime"`
	CreatedAt     time.Time `json:"createTime"`
}

func (CancellationRecord) TableName() string { return "orders_canceled" }
