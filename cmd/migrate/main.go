package main

import (
	"errors"
	"flag"
	"fmt"
	"log"

	"orders_manager/internal/pkg/config"
	"orders_manager/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

func main() {
	direction := flag.String("direction", "up", "up 或 down")
	steps := flag.Int("steps", 0, "down 时回滚的版本数，0 表示全部")
	source := flag.String("source", "file://migrations", "迁移文件目录")
	flag.Parse()

	config.LoadConfig()
	if err := logger.Init(config.GlobalConfig.App.Env, config.GlobalConfig.App.Debug); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.GlobalConfig.Database
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName, cfg.SSLMode)

	m, err := migrate.New(*source, dsn)
	if err != nil {
		logger.Log.Fatal("failed to open migrations", zap.Error(err))
	}
	defer m.Close()

	switch *direction {
	case "up":
		err = m.Up()
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
	default:
		logger.Log.Fatal("unknown direction", zap.String("direction", *direction))
	}

	// dirty 状态下回退到上一个干净版本后重试一次
	var dirty migrate.ErrDirty
	if errors.As(err, &dirty) && *direction == "up" {
		logger.Log.Warn("database is dirty, forcing previous version", zap.Int("version", dirty.Version))
		if err := m.Force(dirty.Version - 1); err != nil {
			logger.Log.Fatal("failed to force version", zap.Error(err))
		}
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Log.Fatal("migration failed", zap.Error(err))
	}

	version, dirtyFlag, _ := m.Version()
	logger.Log.Info("migration successful", zap.String("direction", *direction),
		zap.Uint("version", version), zap.Bool("dirty", dirtyFlag))
}
