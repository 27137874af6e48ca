package queue

import (
	"encoding/json"
	"fmt"

	"github.com/garagebot/affiliate-ledger/internal/constants"
	"github.com/garagebot/affiliate-ledger/internal/upstream"

	"github.com/hibiken/asynq"
)

const (
	// TaskAffiliateEvent 上游推广事件入账任务
	TaskAffiliateEvent = constants.TaskAffiliateEvent
	// TaskAffiliateReconcile 推广账本对账任务
	TaskAffiliateReconcile = constants.TaskAffiliateReconcile
)

// AffiliateReconcilePayload 对账任务载荷，AccountID 为 0 表示全量对账
type AffiliateReconcilePayload struct {
	AccountID uint `json:"account_id"`
}

// NewAffiliateEventTask 创建上游事件任务，载荷为归一化后的事件
func NewAffiliateEventTask(event upstream.Event) (*asynq.Task, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAffiliateEvent, body), nil
}

// ParseAffiliateEventTask 解析上游事件任务载荷
func ParseAffiliateEventTask(task *asynq.Task) (upstream.Event, error) {
	var event upstream.Event
	if task == nil {
		return event, fmt.Errorf("task is nil")
	}
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		return event, err
	}
	return event, nil
}

// NewAffiliateReconcileTask 创建对账任务
func NewAffiliateReconcileTask(payload AffiliateReconcilePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAffiliateReconcile, body), nil
}

// EventTaskID 入队去重 ID，与事件回执使用同一个键
func EventTaskID(event upstream.Event) string {
	return "affiliate-event:" + event.Key()
}
