package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"orders_manager/internal/domain/order/model"
	"orders_manager/internal/domain/order/repository"
	"orders_manager/internal/domain/order/statemachine"
	"orders_manager/internal/domain/order/strategy"
	"orders_manager/internal/pkg/clock"
	"orders_manager/internal/pkg/config"
	"orders_manager/internal/pkg/idgen"
	"orders_manager/pkg/cache"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockGateway is a mock of strategy.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateTransaction(ctx context.Context, req strategy.NativePayRequest) (*strategy.NativePayResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*strategy.NativePayResponse), args.Error(1)
}

func (m *MockGateway) QueryTransaction(ctx context.Context, channel, tradingOrderNo string) (*strategy.TradeResult, error) {
	args := m.Called(ctx, channel, tradingOrderNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*strategy.TradeResult), args.Error(1)
}

func (m *MockGateway) Refund(ctx context.Context, cmd strategy.RefundCommand) (*strategy.RefundResult, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*strategy.RefundResult), args.Error(1)
}

// recordingDispatcher 记录即时退款投递的订单
type recordingDispatcher struct {
	mu  sync.Mutex
	ids []int64
}

func (d *recordingDispatcher) Dispatch(orderID int64) {
	d.mu.Lock()
	d.ids = append(d.ids, orderID)
	d.mu.Unlock()
}

func (d *recordingDispatcher) dispatched() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int64(nil), d.ids...)
}

const testUserID int64 = 7

var testOrderConfig = config.OrderConfig{PayTimeout: 15 * time.Minute}

var testTrade = config.TradeConfig{
	ProductAppID:       "jzo2o.orders",
	AliEnterpriseID:    1001,
	WechatEnterpriseID: 1002,
}

// transitionResult 一次 ChangeStatus 的事件与结果
type transitionResult struct {
	event model.StatusChangeEvent
	err   error
}

// recordingStateMachine 记录每次状态变更的结果
type recordingStateMachine struct {
	statemachine.StateMachine

	mu      sync.Mutex
	results []transitionResult
}

func (m *recordingStateMachine) ChangeStatus(ctx context.Context, orderID int64, event model.StatusChangeEvent, delta model.StatusDelta) (*model.OrderSnapshot, error) {
	snap, err := m.StateMachine.ChangeStatus(ctx, orderID, event, delta)
	m.mu.Lock()
	m.results = append(m.results, transitionResult{event: event, err: err})
	m.mu.Unlock()
	return snap, err
}

func (m *recordingStateMachine) recorded() []transitionResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transitionResult(nil), m.results...)
}

// failingCache Set 可按需失败，模拟快照写入丢失
type failingCache struct {
	*cache.MemoryCache
	failSet atomic.Bool
}

func (c *failingCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if c.failSet.Load() {
		return errors.New("redis: connection refused")
	}
	return c.MemoryCache.Set(ctx, key, value, expiration)
}

type fixtureOptions struct {
	cache cache.CacheService
	// orders 包装状态机与各服务使用的订单仓储
	orders func(repository.OrderRepository) repository.OrderRepository
}

type fixture struct {
	store       *repository.MemoryStore
	clock       *clock.Manual
	gateway     *MockGateway
	dispatcher  *recordingDispatcher
	sm          statemachine.StateMachine
	transitions *recordingStateMachine
	creator     CreateService
	manager     ManagerService
	refunds     RefundService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, fixtureOptions{})
}

func newFixtureWith(t *testing.T, opts fixtureOptions) *fixture {
	clk := clock.NewManual(time.Date(2024, 3, 9, 10, 0, 0, 0, time.Local))
	store := repository.NewMemoryStore(clk.Now)

	backend := opts.cache
	if backend == nil {
		backend = cache.NewMemoryCache()
	}
	snapshots := statemachine.NewSnapshotCache(backend, time.Hour)

	orders := store.Orders()
	if opts.orders != nil {
		orders = opts.orders(orders)
	}

	inner, err := statemachine.NewStateMachine(orders, store.Canceled(), snapshots, clk, nil)
	require.NoError(t, err)
	sm := &recordingStateMachine{StateMachine: inner}

	gw := &MockGateway{}
	dispatcher := &recordingDispatcher{}
	creator := NewCreateService(store.Transactor(), orders, sm, idgen.NewMemoryGenerator(clk), gw, clk, testTrade)
	manager := NewManagerService(store.Transactor(), orders, store.Canceled(), store.Refunds(),
		sm, creator, dispatcher, nil, clk, testOrderConfig)
	refunds := NewRefundService(store.Transactor(), orders, store.Refunds(), sm, gw, nil, nil)

	return &fixture{
		store:       store,
		clock:       clk,
		gateway:     gw,
		dispatcher:  dispatcher,
		sm:          sm,
		transitions: sm,
		creator:     creator,
		manager:     manager,
		refunds:     refunds,
	}
}

// place 下单：单价 100 × 2
func (f *fixture) place(t *testing.T) int64 {
	snap, err := f.creator.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID:         testUserID,
		ServeID:        11,
		ServeItemName:  "日常保洁",
		Price:          decimal.NewFromInt(100),
		PurNum:         2,
		ServeStartTime: f.clock.Now().Add(48 * time.Hour),
	})
	require.NoError(t, err)
	return snap.ID
}

// pay 应用一次支付成功推送
func (f *fixture) pay(t *testing.T, orderID int64) {
	payTime := f.clock.Now()
	require.NoError(t, f.creator.PaySuccess(context.Background(), model.TradeStatusMsg{
		ProductOrderNo: orderID,
		ProductAppID:   testTrade.ProductAppID,
		StatusCode:     model.TradeStatusPaid,
		TradingOrderNo: "T1",
		TradingChannel: model.ChannelWechat,
		TransactionID:  "4200001",
		PayTime:        &payTime,
	}))
}

// dispatching 下单并支付，得到派单中订单
func (f *fixture) dispatching(t *testing.T) int64 {
	id := f.place(t)
	f.pay(t, id)
	return id
}

func (f *fixture) order(t *testing.T, id int64) *model.Order {
	order, err := f.store.Orders().GetByID(context.Background(), id)
	require.NoError(t, err)
	return order
}
