package common

import (
	"context"
	"errors"
	"time"

	commonHandler "orders_manager/internal/pkg/common"
	"orders_manager/internal/pkg/registry"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CommonModule 通用功能模块
type CommonModule struct{}

func init() {
	registry.Register(&CommonModule{})
}

func (m *CommonModule) Name() string {
	return "common"
}

func (m *CommonModule) Priority() int {
	return 100 // 最后初始化
}

func (m *CommonModule) Init(ctx *registry.ModuleContext) error {
	checks := map[string]commonHandler.Check{
		"postgres": func(c context.Context) error {
			if ctx.DB == nil {
				return errors.New("not initialized")
			}
			sqlDB, err := ctx.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(c)
		},
		"redis": func(c context.Context) error {
			if ctx.Redis == nil {
				return errors.New("not initialized")
			}
			return ctx.Redis.Ping(c).Err()
		},
	}
	setupRoutes(ctx.Router, checks)
	return nil
}

func setupRoutes(r *gin.Engine, checks map[string]commonHandler.Check) {
	r.GET("/health", commonHandler.Health(checks, 2*time.Second))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
