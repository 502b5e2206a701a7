package repository

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

type txKey struct{}

// unitOfWork 挂在 ctx 上的事务，以及提交后才执行的回调
type unitOfWork struct {
	tx          *gorm.DB
	mu          sync.Mutex
	afterCommit []func(ctx context.Context)
	undo        []func() // 仅内存实现使用
}

// Transactor 工作单元边界，fn 内所有仓储调用共享同一个事务
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type transactor struct {
	db *gorm.DB
}

func NewTransactor(db *gorm.DB) Transactor {
	return &transactor{db: db}
}

// WithTx 开启事务执行 fn；ctx 中已有事务时直接复用
// fn 返回错误则整体回滚，提交成功后依次执行 AfterCommit 注册的回调
func (t *transactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fromContext(ctx) != nil {
		return fn(ctx)
	}

	uow := &unitOfWork{}
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		uow.tx = tx
		return fn(context.WithValue(ctx, txKey{}, uow))
	})
	if err != nil {
		return err
	}

	uow.mu.Lock()
	hooks := uow.afterCommit
	uow.mu.Unlock()
	for _, hook := range hooks {
		hook(ctx)
	}
	return nil
}

// AfterCommit 注册事务提交后的回调；ctx 不在事务中时立即执行
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	uow := fromContext(ctx)
	if uow == nil {
		fn(ctx)
		return
	}
	uow.mu.Lock()
	uow.afterCommit = append(uow.afterCommit, fn)
	uow.mu.Unlock()
}

func fromContext(ctx context.Context) *unitOfWork {
	uow, _ := ctx.Value(txKey{}).(*unitOfWork)
	return uow
}

// conn 优先返回 ctx 中的事务连接
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if uow := fromContext(ctx); uow != nil {
		return uow.tx
	}
	return db.WithContext(ctx)
}
