package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"orders_manager/internal/domain/order/model"
)

// MemoryStore 内存实现（用于开发/测试）
// 条件更新在同一把锁内完成比较与写入，语义与数据库一致
type MemoryStore struct {
	mu       sync.Mutex
	orders   map[int64]model.Order
	canceled map[int64]model.CancellationRecord
	refunds  map[int64]model.RefundRequest
	now      func() time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		orders:   make(map[int64]model.Order),
		canceled: make(map[int64]model.CancellationRecord),
		refunds:  make(map[int64]model.RefundRequest),
		now:      now,
	}
}

func (s *MemoryStore) Orders() OrderRepository { return memoryOrders{s} }
func (s *MemoryStore) Canceled() CanceledRepository { return memoryCanceled{s} }
func (s *MemoryStore) Refunds() RefundRepository { return memoryRefunds{s} }
func (s *MemoryStore) Transactor() Transactor { return memoryTransactor{} }

// CancellationCount 取消记录数量
func (s *MemoryStore) CancellationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.canceled)
}

// onRollback 在事务中记录撤销操作，调用方需持有 s.mu
func onRollback(ctx context.Context, fn func()) {
	if uow := fromContext(ctx); uow != nil {
		uow.mu.Lock()
		uow.undo = append(uow.undo, fn)
		uow.mu.Unlock()
	}
}

type memoryTransactor struct{}

func (memoryTransactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fromContext(ctx) != nil {
		return fn(ctx)
	}

	uow := &unitOfWork{}
	if err := fn(context.WithValue(ctx, txKey{}, uow)); err != nil {
		uow.mu.Lock()
		undo := uow.undo
		uow.mu.Unlock()
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
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

type memoryOrders struct{ s *MemoryStore }

func (r memoryOrders) Create(ctx context.Context, order *model.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	r.s.orders[order.ID] = *order
	onRollback(ctx, func() {
		r.s.mu.Lock()
		delete(r.s.orders, order.ID)
		r.s.mu.Unlock()
	})
	return nil
}

func (r memoryOrders) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	order, ok := r.s.orders[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &order, nil
}

func (r memoryOrders) UpdateStatus(ctx context.Context, id int64, from model.OrderStatus, columns map[string]interface{}) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	order, ok := r.s.orders[id]
	if !ok || order.OrdersStatus != from {
		return model.ErrStaleState
	}
	r.write(ctx, order, func(o *model.Order) { applyColumns(o, columns) })
	return nil
}

func (r memoryOrders) UpdateTrading(ctx context.Context, id int64, tradingOrderNo, channel string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	order, ok := r.s.orders[id]
	if !ok || order.PayStatus != model.PayStatusNoPay {
		return model.ErrStaleState
	}
	r.write(ctx, order, func(o *model.Order) {
		o.TradingOrderNo = tradingOrderNo
		o.TradingChannel = channel
	})
	return nil
}

func (r memoryOrders) ListOverdueNoPay(ctx context.Context, before time.Time, limit int) ([]model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []model.Order
	for _, o := range r.s.orders {
		if o.OrdersStatus == model.OrderStatusNoPay && o.CreatedAt.Before(before) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memoryOrders) UpdateRefundStatus(ctx context.Context, id int64, status model.RefundStatus, refundID, refundNo string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	order, ok := r.s.orders[id]
	if !ok || order.RefundStatus == status {
		return 0, nil
	}
	r.write(ctx, order, func(o *model.Order) {
		o.RefundStatus = status
		if refundID != "" {
			o.RefundID = refundID
		}
		if refundNo != "" {
			o.RefundNo = refundNo
		}
	})
	return 1, nil
}

func (r memoryOrders) ListRefundingWithoutRequest(ctx context.Context, limit int) ([]model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []model.Order
	for id, o := range r.s.orders {
		if _, has := r.s.refunds[id]; has {
			continue
		}
		if o.OrdersStatus == model.OrderStatusClosed && o.RefundStatus == model.RefundStatusRefunding {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// write 修改订单行并登记撤销，调用方需持有 s.mu
func (r memoryOrders) write(ctx context.Context, before model.Order, mutate func(o *model.Order)) {
	after := before
	mutate(&after)
	after.UpdatedAt = r.s.now()
	r.s.orders[before.ID] = after
	onRollback(ctx, func() {
		r.s.mu.Lock()
		r.s.orders[before.ID] = before
		r.s.mu.Unlock()
	})
}

func applyColumns(o *model.Order, columns map[string]interface{}) {
	for col, v := range columns {
		switch col {
		case "orders_status":
			o.OrdersStatus = v.(model.OrderStatus)
		case "pay_status":
			o.PayStatus = v.(model.PayStatus)
		case "refund_status":
			o.RefundStatus = v.(model.RefundStatus)
		case "pay_time":
			t := v.(time.Time)
			o.PayTime = &t
		case "cancel_time":
			t := v.(time.Time)
			o.CancelTime = &t
		case "trading_order_no":
			o.TradingOrderNo = v.(string)
		case "trading_channel":
			o.TradingChannel = v.(string)
		case "transaction_id":
			o.TransactionID = v.(string)
		}
	}
}

type memoryCanceled struct{ s *MemoryStore }

func (r memoryCanceled) Create(ctx context.Context, record *model.CancellationRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.canceled[record.ID]; ok {
		return model.ErrStaleState
	}
	record.CreatedAt = r.s.now()
	r.s.canceled[record.ID] = *record
	onRollback(ctx, func() {
		r.s.mu.Lock()
		delete(r.s.canceled, record.ID)
		r.s.mu.Unlock()
	})
	return nil
}

func (r memoryCanceled) GetByID(ctx context.Context, orderID int64) (*model.CancellationRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	record, ok := r.s.canceled[orderID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &record, nil
}

type memoryRefunds struct{ s *MemoryStore }

func (r memoryRefunds) Create(ctx context.Context, req *model.RefundRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.refunds[req.ID]; ok {
		return nil
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = r.s.now()
	}
	r.s.refunds[req.ID] = *req
	return nil
}

func (r memoryRefunds) GetByID(ctx context.Context, orderID int64) (*model.RefundRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	req, ok := r.s.refunds[orderID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &req, nil
}

func (r memoryRefunds) ListPending(ctx context.Context, limit int) ([]model.RefundRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]model.RefundRequest, 0, len(r.s.refunds))
	for _, req := range r.s.refunds {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memoryRefunds) Delete(ctx context.Context, orderID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	req, ok := r.s.refunds[orderID]
	if !ok {
		return nil
	}
	delete(r.s.refunds, orderID)
	onRollback(ctx, func() {
		r.s.mu.Lock()
		r.s.refunds[orderID] = req
		r.s.mu.Unlock()
	})
	return nil
}
