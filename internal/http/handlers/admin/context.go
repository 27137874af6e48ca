package admin

import (
	"strconv"
	"strings"
	"time"

	handlershared "github.com/garagebot/affiliate-ledger/internal/http/handlers/shared"
	"github.com/garagebot/affiliate-ledger/internal/models"
	"github.com/garagebot/affiliate-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

func getAdminID(c *gin.Context) (uint, bool) {
	return handlershared.GetContextUintWithKeys(c, "admin_id", "error.admin_id_invalid", "error.admin_id_type_invalid")
}

func getAdminUsername(c *gin.Context) string {
	if value, ok := c.Get("admin_username"); ok {
		if username, ok := value.(string); ok {
			return username
		}
	}
	return ""
}

// recordAudit 记录当前管理员的后台操作
func (h *Handler) recordAudit(c *gin.Context, adminID uint, action, targetType string, targetID uint, detail models.JSON) {
	h.AdminAuditService.Record(service.AdminAuditRecordInput{
		OperatorAdminID:  adminID,
		OperatorUsername: getAdminUsername(c),
		Action:           action,
		TargetType:       targetType,
		TargetID:         targetID,
		RequestID:        handlershared.RequestID(c),
		Detail:           detail,
	})
}

// parseTimeQuery 解析 RFC3339 时间查询参数，空值返回 nil
func parseTimeQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// parseUintQuery 解析可选的正整数查询参数
func parseUintQuery(c *gin.Context, key string) (uint, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(value), nil
}
