package public

import (
	handlershared "github.com/garagebot/affiliate-ledger/internal/http/handlers/shared"
	"github.com/garagebot/affiliate-ledger/internal/provider"

	"github.com/gin-gonic/gin"
)

// Handler 车主侧联盟接口与上游 webhook 入口
type Handler struct {
	*provider.Container
}

// New 创建前台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

// getUserID 读取用户 JWT 中间件写入的 GarageBot 用户 ID，即联盟账号归属人
func getUserID(c *gin.Context) (uint, bool) {
	return handlershared.GetContextUintWithKeys(c, "user_id", "error.user_id_invalid", "error.user_id_type_invalid")
}
