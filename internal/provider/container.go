package provider

import (
	"github.com/garagebot/affiliate-ledger/internal/authz"
	"github.com/garagebot/affiliate-ledger/internal/cache"
	"github.com/garagebot/affiliate-ledger/internal/config"
	"github.com/garagebot/affiliate-ledger/internal/logger"
	"github.com/garagebot/affiliate-ledger/internal/models"
	"github.com/garagebot/affiliate-ledger/internal/queue"
	"github.com/garagebot/affiliate-ledger/internal/repository"
	"github.com/garagebot/affiliate-ledger/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	AdminRepo         repository.AdminRepository
	AffiliateRepo     repository.AffiliateRepository
	AdminAuditLogRepo repository.AdminAuditLogRepository

	// Services
	AuthzService            *authz.Service
	AuthService             *service.AuthService
	AdminAuditService       *service.AdminAuditService
	AffiliateService        *service.AffiliateService
	AffiliateLedgerService  *service.AffiliateLedgerService
	AffiliateEarningService *service.AffiliateEarningService
	AffiliatePayoutService  *service.AffiliatePayoutService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) (*Container, error) {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 队列关闭时 webhook 走同步入账
	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
		queueClient = nil
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	if err := c.initServices(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) initRepositories() {
	db := models.DB
	c.AdminRepo = repository.NewAdminRepository(db)
	c.AffiliateRepo = repository.NewAffiliateRepository(db)
	c.AdminAuditLogRepo = repository.NewAdminAuditLogRepository(db)
}

func (c *Container) initServices() error {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		return err
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		return err
	}

	rules, err := service.NewAffiliateRules(c.Config.Affiliate)
	if err != nil {
		logger.Errorw("provider_affiliate_rules_invalid", "error", err)
		return err
	}
	logger.Infow("provider_affiliate_rules_loaded",
		"qualification_threshold", rules.QualificationThreshold.StringFixed(2),
		"payout_threshold", rules.PayoutThreshold.StringFixed(2),
		"commission_rate_percent", rules.CommissionRatePercent.String(),
		"crossing_purchase_policy", rules.CrossingPurchasePolicy,
		"referred_revenue_mode", rules.ReferredRevenueMode,
	)

	c.AuthService = service.NewAuthService(c.Config, c.AdminRepo)
	c.AdminAuditService = service.NewAdminAuditService(c.AdminAuditLogRepo)
	c.AffiliateLedgerService = service.NewAffiliateLedgerService(c.AffiliateRepo, rules)
	c.AffiliateService = service.NewAffiliateService(c.AffiliateRepo, c.AffiliateLedgerService, rules, c.Config.Affiliate)
	c.AffiliateEarningService = service.NewAffiliateEarningService(c.AffiliateRepo, rules, c.AffiliateLedgerService, c.AffiliateService)
	c.AffiliatePayoutService = service.NewAffiliatePayoutService(c.AffiliateRepo, rules, c.AffiliateLedgerService)
	return nil
}

// Close 释放外部连接
func (c *Container) Close() {
	if c == nil {
		return
	}
	if err := c.QueueClient.Close(); err != nil {
		logger.Warnw("provider_close_queue_client_failed", "error", err)
	}
	if err := cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}
