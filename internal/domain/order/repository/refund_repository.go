package repository

import (
	"context"
	"errors"
	"fmt"

	"orders_manager/internal/domain/order/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RefundRepository interface {
	// Create 每个订单至多一条，重复写入被忽略
	Create(ctx context.Context, req *model.RefundRequest) error
	GetByID(ctx context.Context, orderID int64) (*model.RefundRequest, error)
	// ListPending 按创建时间取最早的 limit 条
	ListPending(ctx context.Context, limit int) ([]model.RefundRequest, error)
	Delete(ctx context.Context, orderID int64) error
}

type refundRepository struct {
	db *gorm.DB
}

func NewRefundRepository(db *gorm.DB) RefundRepository {
	return &refundRepository{db: db}
}

func (r *refundRepository) Create(ctx context.Context, req *model.RefundRequest) error {
	err := conn(ctx, r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(req).Error
	if err != nil {
		return fmt.Errorf("create refund request %d: %w", req.ID, err)
	}
	return nil
}

func (r *refundRepository) GetByID(ctx context.Context, orderID int64) (*model.RefundRequest, error) {
	var req model.RefundRequest
	if err := conn(ctx, r.db).Where("id = ?", orderID).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get refund request %d: %w", orderID, err)
	}
	return &req, nil
}

func (r *refundRepository) ListPending(ctx context.Context, limit int) ([]model.RefundRequest, error) {
	var reqs []model.RefundRequest
	if err := conn(ctx, r.db).Order("created_at").Limit(limit).Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("list refund requests: %w", err)
	}
	return reqs, nil
}

func (r *refundRepository) Delete(ctx context.Context, orderID int64) error {
	if err := conn(ctx, r.db).Where("id = ?", orderID).Delete(&model.RefundRequest{}).Error; err != nil {
		return fmt.Errorf("delete refund request %d: %w", orderID, err)
	}
	return nil
}
