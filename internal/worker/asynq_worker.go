package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/garagebot/affiliate-ledger/internal/logger"
	"github.com/garagebot/affiliate-ledger/internal/provider"
	"github.com/garagebot/affiliate-ledger/internal/queue"
	"github.com/garagebot/affiliate-ledger/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskAffiliateEvent, c.handleAffiliateEvent)
	mux.HandleFunc(queue.TaskAffiliateReconcile, c.handleAffiliateReconcile)
}

// handleAffiliateEvent 入账失败返回错误交给 asynq 重试，载荷非法则不再重试
func (c *Consumer) handleAffiliateEvent(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.AffiliateEarningService == nil {
		logger.Warnw("worker_affiliate_event_skip_nil", "task_nil", task == nil)
		return nil
	}
	event, err := queue.ParseAffiliateEventTask(task)
	if err != nil {
		logger.Warnw("worker_affiliate_event_unmarshal_failed", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	result, err := c.AffiliateEarningService.HandleEvent(ctx, event)
	if err != nil {
		if errors.Is(err, service.ErrEventInvalid) {
			logger.Warnw("worker_affiliate_event_invalid", "event_key", event.Key(), "error", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		retried, _ := asynq.GetRetryCount(ctx)
		logger.Errorw("worker_affiliate_event_failed",
			"event_key", event.Key(),
			"event_type", event.Type,
			"retry", retried,
			"error", err,
		)
		return err
	}
	logger.Debugw("worker_affiliate_event_done", "event_key", result.EventKey, "outcome", result.Outcome)
	return nil
}

func (c *Consumer) handleAffiliateReconcile(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.AffiliateLedgerService == nil {
		logger.Warnw("worker_affiliate_reconcile_skip_nil", "task_nil", task == nil)
		return nil
	}
	var payload queue.AffiliateReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_affiliate_reconcile_unmarshal_failed", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if payload.AccountID == 0 {
		_, err := c.AffiliateLedgerService.ReconcileAll(ctx)
		return err
	}
	_, err := c.AffiliateLedgerService.Reconcile(ctx, payload.AccountID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrLedgerDivergence), errors.Is(err, service.ErrAffiliateNotEnrolled):
		// 差异已冻结并告警，重试没有意义
		return nil
	default:
		logger.Warnw("worker_affiliate_reconcile_failed", "account_id", payload.AccountID, "error", err)
		return err
	}
}
