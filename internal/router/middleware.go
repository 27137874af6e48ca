package router

import (
	"net/http"
	"strings"
	"time"

	"github.com/garagebot/affiliate-ledger/internal/authz"
	"github.com/garagebot/affiliate-ledger/internal/cache"
	"github.com/garagebot/affiliate-ledger/internal/http/response"
	"github.com/garagebot/affiliate-ledger/internal/i18n"
	"github.com/garagebot/affiliate-ledger/internal/logger"
	"github.com/garagebot/affiliate-ledger/internal/repository"
	"github.com/garagebot/affiliate-ledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDKey           = "request_id"
	requestIDHeader        = "X-Request-ID"
	adminIDContextKey      = "admin_id"
	adminUsernameKey       = "admin_username"
	adminIsSuperContextKey = "admin_is_super"
	userIDContextKey       = "user_id"
	usernameContextKey     = "username"
)

// RequestIDMiddleware 请求 ID 中间件
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)
		c.Next()
	}
}

// 探活与指标抓取不记请求日志
var quietPaths = map[string]struct{}{
	"/healthz": {},
	"/metrics": {},
}

// LoggerMiddleware 结构化请求日志中间件，5xx 或 handler 记录的错误按 error 级别输出
func LoggerMiddleware(base *zap.Logger) gin.HandlerFunc {
	if base == nil {
		base = zap.L()
	}
	sugar := base.Sugar()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if _, quiet := quietPaths[c.Request.URL.Path]; quiet && c.Writer.Status() < http.StatusInternalServerError {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		fields := []interface{}{
			"request_id", getRequestID(c),
			"method", c.Request.Method,
			"route", route,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if adminID, ok := c.Get(adminIDContextKey); ok {
			fields = append(fields, "admin_id", adminID)
		}
		if userID, ok := c.Get(userIDContextKey); ok {
			fields = append(fields, "user_id", userID)
		}
		if len(c.Errors) > 0 || c.Writer.Status() >= http.StatusInternalServerError {
			sugar.Errorw("http_request", append(fields, "errors", c.Errors.String())...)
			return
		}
		sugar.Infow("http_request", fields...)
	}
}

func getRequestID(c *gin.Context) string {
	value, ok := c.Get(requestIDKey)
	if !ok {
		return ""
	}
	if requestID, ok := value.(string); ok {
		return requestID
	}
	return ""
}

func abortUnauthorized(c *gin.Context, key string) {
	response.Unauthorized(c, i18n.T(i18n.ResolveLocale(c), key))
	c.Abort()
}

// bearerToken 读取 Authorization: Bearer <token>，失败时已写入响应
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader == "" {
		abortUnauthorized(c, "error.auth_header_missing")
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		abortUnauthorized(c, "error.auth_header_invalid")
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func parseHS256(tokenString, secretKey string, claims jwt.Claims) bool {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secretKey), nil
	})
	return err == nil && token.Valid
}

// JWTAuthMiddleware 管理员 JWT 鉴权中间件
func JWTAuthMiddleware(secretKey string, adminRepo repository.AdminRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secretKey == "" {
			abortUnauthorized(c, "error.jwt_secret_missing")
			return
		}
		if adminRepo == nil {
			abortUnauthorized(c, "error.token_invalid")
			return
		}
		tokenString, ok := bearerToken(c)
		if !ok {
			return
		}
		claims := &service.JWTClaims{}
		if !parseHS256(tokenString, secretKey, claims) || claims.AdminID == 0 {
			abortUnauthorized(c, "error.token_invalid")
			return
		}

		if cached, hit, cacheErr := cache.GetAdminAuthState(c.Request.Context(), claims.AdminID); cacheErr == nil && hit && cached != nil {
			if tokenRevoked(claims, cached.TokenVersion, cached.TokenInvalidBefore) {
				abortUnauthorized(c, "error.token_revoked")
				return
			}
			setAdminContext(c, claims, cached.IsSuper)
			c.Next()
			return
		}

		admin, err := adminRepo.GetByID(claims.AdminID)
		if err != nil || admin == nil {
			abortUnauthorized(c, "error.token_invalid")
			return
		}
		state := cache.BuildAdminAuthState(admin)
		if tokenRevoked(claims, state.TokenVersion, state.TokenInvalidBefore) {
			abortUnauthorized(c, "error.token_revoked")
			return
		}
		if err := cache.SetAdminAuthState(c.Request.Context(), state); err != nil {
			logger.Debugw("admin_auth_state_cache_failed", "admin_id", admin.ID, "error", err)
		}

		setAdminContext(c, claims, admin.IsSuper)
		c.Next()
	}
}

func setAdminContext(c *gin.Context, claims *service.JWTClaims, isSuper bool) {
	c.Set(adminIDContextKey, claims.AdminID)
	c.Set(adminUsernameKey, claims.Username)
	c.Set(adminIsSuperContextKey, isSuper)
}

// AdminRBACMiddleware 管理端 RBAC 鉴权中间件
func AdminRBACMiddleware(authzService *authz.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authzService == nil {
			logger.Errorw("admin_rbac_service_unavailable")
			abortUnauthorized(c, "error.unauthorized")
			return
		}

		if isSuper, ok := c.Get(adminIsSuperContextKey); ok {
			if superValue, typeOK := isSuper.(bool); typeOK && superValue {
				c.Next()
				return
			}
		}

		var adminID uint
		if raw, exists := c.Get(adminIDContextKey); exists {
			adminID, _ = raw.(uint)
		}
		if adminID == 0 {
			abortUnauthorized(c, "error.unauthorized")
			return
		}

		resource := c.FullPath()
		if strings.TrimSpace(resource) == "" {
			resource = c.Request.URL.Path
		}

		allowed, err := authzService.EnforceAdmin(adminID, resource, c.Request.Method)
		if err != nil {
			logger.Errorw("admin_rbac_enforce_failed",
				"admin_id", adminID,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"error", err,
			)
			abortUnauthorized(c, "error.unauthorized")
			return
		}
		if !allowed {
			logger.Warnw("admin_rbac_permission_denied",
				"admin_id", adminID,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"resource", authz.NormalizeObject(resource),
			)
			response.Forbidden(c, i18n.T(i18n.ResolveLocale(c), "error.forbidden"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// UserJWTAuthMiddleware 校验 GarageBot 主站签发的用户 JWT，本服务不保存用户表
func UserJWTAuthMiddleware(secretKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secretKey == "" {
			abortUnauthorized(c, "error.jwt_secret_missing")
			return
		}
		tokenString, ok := bearerToken(c)
		if !ok {
			return
		}
		claims := &service.UserJWTClaims{}
		if !parseHS256(tokenString, secretKey, claims) || claims.UserID == 0 {
			abortUnauthorized(c, "error.token_invalid")
			return
		}
		c.Set(userIDContextKey, claims.UserID)
		c.Set(usernameContextKey, strings.TrimSpace(claims.Username))
		c.Next()
	}
}

// tokenRevoked 版本号不一致或签发时间早于失效时间点（Unix 秒，0 表示未设置）
func tokenRevoked(claims *service.JWTClaims, tokenVersion uint64, invalidBefore int64) bool {
	if claims.TokenVersion != tokenVersion {
		return true
	}
	if invalidBefore <= 0 {
		return false
	}
	if claims.IssuedAt == nil {
		return true
	}
	return claims.IssuedAt.Time.Unix() < invalidBefore
}
