package repository

import (
	"context"
	"errors"
	"fmt"

	"orders_manager/internal/domain/order/model"

	"gorm.io/gorm"
)

type CanceledRepository interface {
	Create(ctx context.Context, record *model.CancellationRecord) error
	GetByID(ctx context.Context, orderID int64) (*model.CancellationRecord, error)
}

type canceledRepository struct {
	db *gorm.DB
}

func NewCanceledRepository(db *gorm.DB) CanceledRepository {
	return &canceledRepository{db: db}
}

func (r *canceledRepository) Create(ctx context.Context, record *model.CancellationRecord) error {
	if err := conn(ctx, r.db).Create(record).Error; err != nil {
		// 主键冲突说明订单已被其他请求取消
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return model.ErrStaleState
		}
		return fmt.Errorf("create cancellation record %d: %w", record.ID, err)
	}
	return nil
}

func (r *canceledRepository) GetByID(ctx context.Context, orderID int64) (*model.CancellationRecord, error) {
	var record model.CancellationRecord
	if err := conn(ctx, r.db).Where("id = ?", orderID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get cancellation record %d: %w", orderID, err)
	}
	return &record, nil
}
