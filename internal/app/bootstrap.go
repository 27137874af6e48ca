package app

import (
	"errors"

	"github.com/garagebot/affiliate-ledger/internal/config"
	"github.com/garagebot/affiliate-ledger/internal/logger"
	"github.com/garagebot/affiliate-ledger/internal/provider"
	"github.com/garagebot/affiliate-ledger/internal/queue"
	"github.com/garagebot/affiliate-ledger/internal/router"
	"github.com/garagebot/affiliate-ledger/internal/worker"
)

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	container, err := provider.NewContainer(cfg)
	if err != nil {
		return nil, err
	}

	var services []Service

	// HTTP 服务
	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		services = append(services, NewHTTPService(cfg.Server, engine))
	}

	// Worker 与定时对账
	if mode == ModeAll || mode == ModeWorker {
		consumer := worker.NewConsumer(container)
		workerService, err := worker.NewService(&cfg.Queue, consumer)
		switch {
		case err == nil:
			services = append(services, workerService)
		case errors.Is(err, queue.ErrDisabled):
			logger.Infow("app_worker_skipped_queue_disabled", "mode", mode)
		default:
			container.Close()
			return nil, err
		}

		scheduler, err := worker.NewScheduler(container)
		if err != nil {
			container.Close()
			return nil, err
		}
		services = append(services, scheduler)
	}

	if len(services) == 0 {
		container.Close()
		return nil, errors.New("no services initialized (check mode and config)")
	}

	return NewRunner(services...).WithCloser(container.Close), nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts, err := normalizeOptions(opts)
	if err != nil {
		return err
	}
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}

	opts.Logger.Infow("app_start", "addr", opts.Config.Server.Addr(), "mode", opts.Mode, "shutdown_timeout", opts.ShutdownTimeout)
	return RunWithOptions(runner, opts)
}
