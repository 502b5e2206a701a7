package model

import (
	"time"
)

// TimeModel 公共时间字段，替代 gorm.Model
// 订单类表使用业务生成的主键，不再内嵌自增/UUID 主键，也不使用软删除
type TimeModel struct {
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"createTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updateTime"`
}
