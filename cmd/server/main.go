package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "orders_manager/internal/domain/common"
	_ "orders_manager/internal/domain/order"
	"orders_manager/internal/pkg/config"
	"orders_manager/internal/pkg/middleware"
	"orders_manager/internal/pkg/registry"
	"orders_manager/pkg/database"
	"orders_manager/pkg/logger"
	"orders_manager/pkg/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	// 1. 配置与日志
	config.LoadConfig()
	cfg := config.GlobalConfig
	if err := logger.Init(cfg.App.Env, cfg.App.Debug); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// 2. 基础设施
	db := database.InitDatabase()
	rdb := database.InitRedis()
	collector := metrics.GetGlobalCollector()

	// 3. HTTP 引擎与中间件
	gin.SetMode(cfg.Server.Mode)
	limiter := middleware.NewIPRateLimiter(rate.Limit(200), 400, 10*time.Minute)
	r := gin.New()
	r.Use(
		middleware.RecoveryMiddleware(),
		middleware.TraceMiddleware(),
		middleware.LoggerMiddleware(),
		middleware.MetricsMiddleware(collector),
		middleware.RateLimitMiddleware(limiter),
		middleware.TimeoutMiddleware(10*time.Second),
		cors.New(cors.Config{
			AllowOrigins:     []string{"*"},
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.HeaderTraceID},
			ExposeHeaders:    []string{middleware.HeaderTraceID},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}),
	)

	// 4. 模块初始化
	moduleCtx := &registry.ModuleContext{DB: db, Redis: rdb, Router: r, Metrics: collector}
	if err := registry.InitModules(moduleCtx); err != nil {
		logger.Log.Fatal("failed to init modules", zap.Error(err))
	}

	// 5. 启动 HTTP 服务与后台任务，收到信号后统一退出
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				limiter.Cleanup()
			case <-gctx.Done():
				return nil
			}
		}
	})

	for _, task := range moduleCtx.Tasks() {
		g.Go(func() error {
			logger.Log.Info("background task started", zap.String("task", task.Name))
			err := task.Run(gctx)
			logger.Log.Info("background task stopped", zap.String("task", task.Name), zap.Error(err))
			return err
		})
	}

	if err := g.Wait(); err != nil {
		logger.Log.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Log.Info("server exited")
}
