package router

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/garagebot/affiliate-ledger/internal/cache"
	"github.com/garagebot/affiliate-ledger/internal/config"
	adminhandlers "github.com/garagebot/affiliate-ledger/internal/http/handlers/admin"
	publichandlers "github.com/garagebot/affiliate-ledger/internal/http/handlers/public"
	"github.com/garagebot/affiliate-ledger/internal/logger"
	"github.com/garagebot/affiliate-ledger/internal/metrics"
	"github.com/garagebot/affiliate-ledger/internal/models"
	"github.com/garagebot/affiliate-ledger/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "gb"
	}
	redisClient := cache.Client()
	adminLoginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:admin_login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
		MessageKey:    "error.login_too_many",
	}
	payoutRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:payout_request", redisPrefix),
		WindowSeconds: cfg.Security.PayoutRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.PayoutRateLimit.MaxAttempts,
		MessageKey:    "error.rate_limited",
	}

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	if cfg.Metrics.Enabled {
		r.Use(metrics.GinMiddleware())
	}
	r.Use(CORSMiddleware(cfg.CORS))

	apiV1 := r.Group("/api/v1")
	{
		// 公开接口
		apiV1.GET("/affiliate/trustlayer/:code", publicHandler.GetTrustLayerHandoff)

		// 上游回调（签名校验，无 JWT）
		webhooks := apiV1.Group("/webhooks")
		{
			webhooks.POST("/affiliate", publicHandler.AffiliateWebhook)
			webhooks.POST("/stripe", publicHandler.StripeWebhook)
		}

		// 推广用户接口（主站用户 JWT）
		affiliate := apiV1.Group("/affiliate")
		affiliate.Use(UserJWTAuthMiddleware(cfg.UserJWT.SecretKey))
		{
			affiliate.GET("/me", publicHandler.GetAffiliateMe)
			affiliate.PATCH("/me", publicHandler.UpdateAffiliateMe)
			affiliate.POST("/enroll", publicHandler.EnrollAffiliate)
			affiliate.POST("/payout-request", RateLimitMiddleware(redisClient, payoutRule, KeyByUserID), publicHandler.RequestAffiliatePayout)
			affiliate.POST("/attribution", publicHandler.AttributeAffiliate)
		}

		// 管理员接口
		admin := apiV1.Group("/admin")
		{
			admin.POST("/login", RateLimitMiddleware(redisClient, adminLoginRule, KeyByIPAndJSONField("username")), adminHandler.AdminLogin)

			authorized := admin.Group("")
			authorized.Use(JWTAuthMiddleware(cfg.JWT.SecretKey, c.AdminRepo), AdminRBACMiddleware(c.AuthzService))
			{
				authorized.GET("/me", adminHandler.GetAdminMe)
				authorized.PUT("/password", adminHandler.UpdateAdminPassword)

				// 推广账户
				authorized.GET("/affiliates", adminHandler.ListAffiliates)
				authorized.POST("/affiliates/reconcile", adminHandler.ReconcileAllAffiliates)
				authorized.GET("/affiliates/:id", adminHandler.GetAffiliate)
				authorized.PATCH("/affiliates/:id/status", adminHandler.UpdateAffiliateStatus)
				authorized.POST("/affiliates/:id/reconcile", adminHandler.ReconcileAffiliate)
				authorized.POST("/affiliates/:id/resume-payouts", adminHandler.ResumeAffiliatePayouts)

				// 提现审核
				authorized.GET("/affiliate-payouts", adminHandler.ListAffiliatePayouts)
				authorized.POST("/affiliate-payouts/:id/approve", adminHandler.ApproveAffiliatePayout)
				authorized.POST("/affiliate-payouts/:id/paid", adminHandler.MarkAffiliatePayoutPaid)
				authorized.POST("/affiliate-payouts/:id/reject", adminHandler.RejectAffiliatePayout)

				// 收益流水
				authorized.GET("/affiliate-earnings", adminHandler.ListAffiliateEarnings)
				authorized.POST("/affiliate-earnings/:id/reverse", adminHandler.ReverseAffiliateEarning)

				// 权限与审计
				authorized.GET("/authz/roles", adminHandler.ListAuthzRoles)
				authorized.GET("/admins/:id/roles", adminHandler.GetAdminRoles)
				authorized.PUT("/admins/:id/roles", adminHandler.UpdateAdminRoles)
				authorized.GET("/audit-logs", adminHandler.ListAdminAuditLogs)
			}
		}
	}

	if cfg.Metrics.Enabled {
		path := strings.TrimSpace(cfg.Metrics.Path)
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, metrics.Handler())
	}

	r.GET("/healthz", func(ctx *gin.Context) {
		status := gin.H{"status": "ok", "database": "ok"}
		if err := pingDatabase(); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			ctx.JSON(http.StatusServiceUnavailable, status)
			return
		}
		ctx.JSON(http.StatusOK, status)
	})

	return r
}

func pingDatabase() error {
	if models.DB == nil {
		return fmt.Errorf("database not initialized")
	}
	sqlDB, err := models.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
