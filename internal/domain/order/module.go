package order

import (
	"context"

	"orders_manager/internal/domain/order/handler"
	"orders_manager/internal/domain/order/job"
	"orders_manager/internal/domain/order/listener"
	"orders_manager/internal/domain/order/repository"
	"orders_manager/internal/domain/order/service"
	"orders_manager/internal/domain/order/statemachine"
	"orders_manager/internal/domain/order/strategy"
	"orders_manager/internal/pkg/clock"
	"orders_manager/internal/pkg/config"
	"orders_manager/internal/pkg/idgen"
	"orders_manager/internal/pkg/middleware"
	"orders_manager/internal/pkg/push"
	"orders_manager/internal/pkg/registry"
	"orders_manager/internal/pkg/worker"
	"orders_manager/pkg/cache"
	"orders_manager/pkg/logger"

	"go.uber.org/zap"
)

// OrderModule 订单模块
type OrderModule struct{}

func init() {
	registry.Register(&OrderModule{})
}

func (m *OrderModule) Name() string {
	return "order"
}

func (m *OrderModule) Priority() int {
	return 20
}

func (m *OrderModule) Init(ctx *registry.ModuleContext) error {
	cfg := config.GlobalConfig
	clk := clock.NewSystem()

	// 1. 存储与状态机
	tx := repository.NewTransactor(ctx.DB)
	orderRepo := repository.NewOrderRepository(ctx.DB)
	canceledRepo := repository.NewCanceledRepository(ctx.DB)
	refundRepo := repository.NewRefundRepository(ctx.DB)

	snapshots := statemachine.NewSnapshotCache(cache.NewRedisCache(ctx.Redis), cfg.Order.SnapshotTTL)
	sm, err := statemachine.NewStateMachine(orderRepo, canceledRepo, snapshots, clk, ctx.Metrics)
	if err != nil {
		return err
	}

	// 2. 支付渠道
	gateway := strategy.NewRouter(cfg.Trade.Timeout)
	if cfg.Alipay.AppID != "" {
		alipayStrategy, err := strategy.NewAlipayStrategy(cfg.Alipay)
		if err != nil {
			logger.Log.Error("failed to init alipay strategy", zap.Error(err))
		} else {
			gateway.RegisterStrategy(alipayStrategy)
		}
	}
	if cfg.Wechat.MchID != "" {
		wechatStrategy, err := strategy.NewWechatStrategy(context.Background(), cfg.Wechat)
		if err != nil {
			logger.Log.Error("failed to init wechat pay strategy", zap.Error(err))
		} else {
			gateway.RegisterStrategy(wechatStrategy)
		}
	}

	pusher, err := push.NewPushService(cfg.Push)
	if err != nil {
		logger.Log.Warn("push service disabled", zap.Error(err))
	}

	// 3. 服务，即时退款池依赖退款服务，取消服务依赖退款池
	refunds := service.NewRefundService(tx, orderRepo, refundRepo, sm, gateway, pusher, ctx.Metrics)
	pool := worker.NewWorkerPool(refunds.RefundByOrderID, cfg.Order.RefundWorkers, cfg.Order.RefundQueueSize)

	creator := service.NewCreateService(tx, orderRepo, sm, idgen.NewRedisGenerator(ctx.Redis, clk), gateway, clk, cfg.Trade)
	manager := service.NewManagerService(tx, orderRepo, canceledRepo, refundRepo, sm, creator, pool, pusher, clk, cfg.Order)

	// 4. 路由
	h := handler.NewOrderHandler(creator, manager, gateway)
	g := ctx.Router.Group("/orders")
	handler.RegisterNotifyRoutes(g, h)
	auth := g.Group("")
	auth.Use(middleware.AuthMiddleware())
	handler.RegisterRoutes(auth, h)

	// 5. 后台任务
	ctx.Go("refund-worker-pool", func(runCtx context.Context) error {
		pool.Start(runCtx)
		<-runCtx.Done()
		pool.Stop()
		return nil
	})

	scheduler := job.NewScheduler(cfg.Order.ScanInterval, ctx.Metrics,
		job.Job{Name: "cancel_overdue_orders", Run: func(runCtx context.Context) (int, error) {
			return manager.CancelOverdueOrders(runCtx, cfg.Order.TimeoutBatchSize)
		}},
		job.Job{Name: "handle_refunds", Run: func(runCtx context.Context) (int, error) {
			return refunds.HandleRefunds(runCtx, cfg.Order.RefundBatchSize)
		}},
	)
	ctx.Go("order-scheduler", func(runCtx context.Context) error {
		scheduler.Start(runCtx)
		return nil
	})

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.TradeStatusTopic != "" {
		reader := listener.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.TradeStatusTopic, cfg.Kafka.GroupID)
		tradeListener := listener.NewTradeStatusListener(reader, creator, cfg.Trade.ProductAppID, ctx.Metrics)
		ctx.Go("trade-status-listener", func(runCtx context.Context) error {
			tradeListener.Start(runCtx)
			<-runCtx.Done()
			tradeListener.Stop()
			return nil
		})
	} else {
		logger.Log.Warn("kafka not configured, trade status push disabled")
	}

	logger.Log.Info("order module initialized",
		zap.Duration("pay_timeout", cfg.Order.PayTimeout),
		zap.Duration("scan_interval", cfg.Order.ScanInterval))
	return nil
}

