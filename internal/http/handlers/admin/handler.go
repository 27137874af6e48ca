package admin

import "github.com/garagebot/affiliate-ledger/internal/provider"

// Handler 运营后台：联盟账号审核、提现审批、对账与角色管理
type Handler struct {
	*provider.Container
}

// New 创建后台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
