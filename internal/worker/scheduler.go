package worker

import (
	"context"
	"errors"
	"strings"

	"github.com/garagebot/affiliate-ledger/internal/logger"
	"github.com/garagebot/affiliate-ledger/internal/provider"
	"github.com/garagebot/affiliate-ledger/internal/queue"

	"github.com/robfig/cron/v3"
)

const defaultReconcileCron = "0 3 * * *"

// Scheduler 定时任务服务，目前负责每日全量对账
type Scheduler struct {
	container *provider.Container
	cron      *cron.Cron
	schedule  string
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewScheduler 创建定时任务服务
func NewScheduler(c *provider.Container) (*Scheduler, error) {
	if c == nil || c.AffiliateLedgerService == nil {
		return nil, errors.New("ledger service is nil")
	}
	schedule := defaultReconcileCron
	if c.Config != nil && strings.TrimSpace(c.Config.Affiliate.ReconcileCron) != "" {
		schedule = strings.TrimSpace(c.Config.Affiliate.ReconcileCron)
	}
	s := &Scheduler{
		container: c,
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		schedule:  schedule,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	if _, err := s.cron.AddFunc(schedule, s.runReconcile); err != nil {
		return nil, err
	}
	return s, nil
}

// Name 服务名称
func (s *Scheduler) Name() string {
	return "scheduler"
}

// Start 启动定时任务，阻塞直到 ctx 结束
func (s *Scheduler) Start(ctx context.Context) error {
	logger.Infow("scheduler_started", "reconcile_cron", s.schedule)
	s.cron.Start()
	<-ctx.Done()
	return nil
}

// Stop 停止定时任务并等待运行中的任务结束
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runReconcile 队列可用时投递去重任务，多实例只跑一次；否则本地直接执行
func (s *Scheduler) runReconcile() {
	if s.container.QueueClient.Enabled() {
		err := s.container.QueueClient.EnqueueReconcile(queue.AffiliateReconcilePayload{})
		if err == nil {
			logger.Infow("scheduler_reconcile_enqueued")
			return
		}
		logger.Warnw("scheduler_reconcile_enqueue_failed", "error", err)
	}
	summary, err := s.container.AffiliateLedgerService.ReconcileAll(s.ctx)
	if err != nil {
		logger.Errorw("scheduler_reconcile_failed", "error", err)
		return
	}
	logger.Infow("scheduler_reconcile_done", "checked", summary.Checked, "diverged", summary.Diverged)
}
