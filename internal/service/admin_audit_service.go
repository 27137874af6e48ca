package service

import (
	"strings"
	"time"

	"github.com/garagebot/affiliate-ledger/internal/logger"
	"github.com/garagebot/affiliate-ledger/internal/models"
	"github.com/garagebot/affiliate-ledger/internal/repository"
)

// AdminAuditRecordInput 审计记录输入
type AdminAuditRecordInput struct {
	OperatorAdminID  uint
	OperatorUsername string
	Action           string
	TargetType       string
	TargetID         uint
	RequestID        string
	Detail           models.JSON
}

// AdminAuditService 后台操作审计服务
type AdminAuditService struct {
	repo repository.AdminAuditLogRepository
}

// NewAdminAuditService 创建审计服务
func NewAdminAuditService(repo repository.AdminAuditLogRepository) *AdminAuditService {
	return &AdminAuditService{repo: repo}
}

// Record 记录审计日志，写入失败只记日志不影响主流程
func (s *AdminAuditService) Record(input AdminAuditRecordInput) {
	if s == nil || s.repo == nil {
		return
	}
	if input.OperatorAdminID == 0 || strings.TrimSpace(input.Action) == "" {
		return
	}
	item := &models.AdminAuditLog{
		OperatorAdminID:  input.OperatorAdminID,
		OperatorUsername: strings.TrimSpace(input.OperatorUsername),
		Action:           strings.TrimSpace(input.Action),
		TargetType:       strings.TrimSpace(input.TargetType),
		TargetID:         input.TargetID,
		RequestID:        strings.TrimSpace(input.RequestID),
		DetailJSON:       input.Detail,
		CreatedAt:        time.Now(),
	}
	if err := s.repo.Create(item); err != nil {
		logger.Warnw("admin_audit_record_failed",
			"operator_admin_id", input.OperatorAdminID,
			"action", input.Action,
			"target_id", input.TargetID,
			"error", err,
		)
	}
}

// List 管理端查询审计日志
func (s *AdminAuditService) List(filter repository.AdminAuditLogListFilter) ([]models.AdminAuditLog, int64, error) {
	if s == nil || s.repo == nil {
		return []models.AdminAuditLog{}, 0, nil
	}
	return s.repo.List(filter)
}
