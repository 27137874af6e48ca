package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/garagebot/affiliate-ledger/internal/config"
	"github.com/garagebot/affiliate-ledger/internal/logger"

	"go.uber.org/zap"
)

// 运行模式：api 只提供 HTTP，worker 只消费队列与定时对账，all 两者都跑
const (
	ModeAll    = "all"
	ModeAPI    = "api"
	ModeWorker = "worker"
)

const defaultShutdownTimeout = 10 * time.Second

// Options 应用启动选项
type Options struct {
	Config          *config.Config
	Logger          *zap.SugaredLogger
	Signals         []os.Signal
	ShutdownTimeout time.Duration
	Mode            string
}

// ParseMode 空值视为 all，未知模式报错
func ParseMode(raw string) (string, error) {
	mode := strings.ToLower(strings.TrimSpace(raw))
	switch mode {
	case "":
		return ModeAll, nil
	case ModeAll, ModeAPI, ModeWorker:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown run mode %q (want all, api or worker)", raw)
	}
}

// normalizeOptions 补齐默认参数，显式传入的 ShutdownTimeout 优先于配置
func normalizeOptions(opts Options) (Options, error) {
	if opts.Logger == nil {
		opts.Logger = logger.S()
	}
	if opts.ShutdownTimeout <= 0 && opts.Config != nil {
		opts.ShutdownTimeout = seconds(opts.Config.Server.ShutdownTimeoutSeconds)
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	mode, err := ParseMode(opts.Mode)
	if err != nil {
		return opts, err
	}
	opts.Mode = mode
	return opts, nil
}
