package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garagebot/affiliate-ledger/internal/config"
	"github.com/garagebot/affiliate-ledger/internal/constants"
	"github.com/garagebot/affiliate-ledger/internal/upstream"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 默认队列名称
	DefaultQueue = constants.QueueDefault
	// CriticalQueue 入账事件队列
	CriticalQueue = constants.QueueCritical

	defaultMaxRetry = 10
	// 回执保留期内重复投递由 asynq 直接拒绝
	eventRetention = 72 * time.Hour
)

// ErrDisabled 队列未启用
var ErrDisabled = errors.New("queue disabled")

// Client 队列客户端封装
type Client struct {
	client   *asynq.Client
	enabled  bool
	maxRetry int
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{enabled: false}, nil
	}
	maxRetry := cfg.MaxRetry
	if maxRetry <= 0 {
		maxRetry = defaultMaxRetry
	}
	return &Client{
		client:   asynq.NewClient(buildRedisOpt(cfg)),
		enabled:  true,
		maxRetry: maxRetry,
	}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueAffiliateEvent 推送上游事件入账任务
// 返回 duplicate=true 表示同一事件已在队列中或保留期内处理过
func (c *Client) EnqueueAffiliateEvent(event upstream.Event) (duplicate bool, err error) {
	if !c.Enabled() {
		return false, ErrDisabled
	}
	task, err := NewAffiliateEventTask(event)
	if err != nil {
		return false, err
	}
	_, err = c.client.Enqueue(task,
		asynq.Queue(CriticalQueue),
		asynq.TaskID(EventTaskID(event)),
		asynq.MaxRetry(c.maxRetry),
		asynq.Retention(eventRetention),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return true, nil
	}
	return false, err
}

// EnqueueReconcile 推送对账任务
func (c *Client) EnqueueReconcile(payload AffiliateReconcilePayload) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	task, err := NewAffiliateReconcileTask(payload)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.Queue(DefaultQueue), asynq.MaxRetry(3)}
	if payload.AccountID == 0 {
		// 全量对账同一时刻只排一个
		opts = append(opts, asynq.Unique(time.Hour))
	}
	_, err = c.client.Enqueue(task, opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// BuildServerConfig 生成队列服务配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	opt := buildRedisOpt(cfg)
	concurrency := 10
	if cfg != nil && cfg.Concurrency > 0 {
		concurrency = cfg.Concurrency
	}
	queues := map[string]int{CriticalQueue: 6, DefaultQueue: 3}
	if cfg != nil && len(cfg.Queues) > 0 {
		queues = cfg.Queues
	}
	return opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
	}
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	host := "127.0.0.1"
	port := 6379
	password := ""
	db := 0
	if cfg != nil {
		if strings.TrimSpace(cfg.Host) != "" {
			host = strings.TrimSpace(cfg.Host)
		}
		if cfg.Port > 0 {
			port = cfg.Port
		}
		password = cfg.Password
		db = cfg.DB
	}
	return asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	}
}
