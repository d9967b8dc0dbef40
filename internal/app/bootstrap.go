package app

import (
	"errors"

	"github.com/bazaar-next/internal/cache"
	"github.com/bazaar-next/internal/config"
	"github.com/bazaar-next/internal/logger"
	"github.com/bazaar-next/internal/models"
	"github.com/bazaar-next/internal/provider"
	"github.com/bazaar-next/internal/router"
	"github.com/bazaar-next/internal/worker"
)

// InitDatabase 连接数据库并执行迁移
func InitDatabase(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		return err
	}
	return models.AutoMigrate()
}

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	container := provider.NewContainer(cfg)
	return buildRunner(cfg, mode, container)
}

func buildRunner(cfg *config.Config, mode string, container *provider.Container) (*Runner, error) {
	var services []Service

	// 初始化 HTTP 服务
	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		services = append(services, NewHTTPService(addr, engine))
	}

	// 初始化 Worker 服务；all 模式下队列关闭时只跑 API
	if mode == ModeAll || mode == ModeWorker {
		if cfg.Queue.Enabled {
			consumer := worker.NewConsumer(container)
			workerService, err := worker.NewService(cfg, consumer)
			if err != nil {
				return nil, err
			}
			services = append(services, workerService)
		} else if mode == ModeWorker {
			return nil, errors.New("worker mode requires queue.enabled")
		} else {
			logger.Warnw("app_worker_skipped_queue_disabled")
		}
	}

	if len(services) == 0 {
		return nil, errors.New("no services initialized (check mode and config)")
	}

	runner := NewRunner(services...)
	runner.onStop = append(runner.onStop, func() {
		if err := container.QueueClient.Close(); err != nil {
			logger.Warnw("app_queue_client_close_failed", "error", err)
		}
		if err := cache.Close(); err != nil {
			logger.Warnw("app_redis_close_failed", "error", err)
		}
	})
	return runner, nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}
	if !isValidMode(opts.Mode) {
		return errors.New("unknown mode: " + opts.Mode)
	}

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}

	addr := opts.Config.Server.Host + ":" + opts.Config.Server.Port
	opts.Logger.Infow("app_start", "addr", addr, "mode", opts.Mode)
	return RunWithOptions(runner, opts)
}
