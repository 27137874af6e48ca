package admin

import (
	"errors"
	"strings"

	"github.com/garagebot/affiliate-ledger/internal/authz"
	"github.com/garagebot/affiliate-ledger/internal/constants"
	handlershared "github.com/garagebot/affiliate-ledger/internal/http/handlers/shared"
	"github.com/garagebot/affiliate-ledger/internal/http/response"
	"github.com/garagebot/affiliate-ledger/internal/models"
	"github.com/garagebot/affiliate-ledger/internal/repository"

	"github.com/gin-gonic/gin"
)

type adminRolesPayload struct {
	Roles []string `json:"roles"`
}

// ListAuthzRoles 角色及其策略
func (h *Handler) ListAuthzRoles(c *gin.Context) {
	roles, err := h.AuthzService.ListRoles()
	if err != nil {
		respondError(c, response.CodeInternal, "error.fetch_failed", err)
		return
	}
	items := make([]gin.H, 0, len(roles))
	for _, role := range roles {
		policies, err := h.AuthzService.GetRolePolicies(role)
		if err != nil {
			respondError(c, response.CodeInternal, "error.fetch_failed", err)
			return
		}
		items = append(items, gin.H{"role": role, "policies": policies})
	}
	response.Success(c, items)
}

// GetAdminRoles 查询管理员角色
func (h *Handler) GetAdminRoles(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	roles, err := h.AuthzService.GetAdminRoles(id)
	if err != nil {
		respondError(c, response.CodeInternal, "error.fetch_failed", err)
		return
	}
	response.Success(c, gin.H{"admin_id": id, "roles": roles})
}

// UpdateAdminRoles 覆盖设置管理员角色，仅超级管理员可操作
func (h *Handler) UpdateAdminRoles(c *gin.Context) {
	operatorID, ok := getAdminID(c)
	if !ok {
		return
	}
	operator, err := h.AdminRepo.GetByID(operatorID)
	if err != nil {
		respondError(c, response.CodeInternal, "error.fetch_failed", err)
		return
	}
	if operator == nil || !operator.IsSuper {
		respondError(c, response.CodeForbidden, "error.forbidden", nil)
		return
	}

	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	target, err := h.AdminRepo.GetByID(id)
	if err != nil {
		respondError(c, response.CodeInternal, "error.fetch_failed", err)
		return
	}
	if target == nil {
		respondError(c, response.CodeNotFound, "error.not_found", nil)
		return
	}

	var req adminRolesPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	before, err := h.AuthzService.GetAdminRoles(id)
	if err != nil {
		respondError(c, response.CodeInternal, "error.fetch_failed", err)
		return
	}
	assigned, err := h.AuthzService.SetAdminRoles(id, req.Roles)
	if err != nil {
		if errors.Is(err, authz.ErrRoleUnknown) {
			respondError(c, response.CodeBadRequest, "error.role_invalid", nil)
			return
		}
		respondError(c, response.CodeInternal, "error.save_failed", err)
		return
	}
	h.recordAudit(c, operatorID, constants.AuditActionAdminRolesUpdate, constants.AuditTargetAdmin, id, models.JSON{
		"before": strings.Join(before, ","),
		"after":  strings.Join(assigned, ","),
	})
	response.Success(c, gin.H{"admin_id": id, "roles": assigned})
}

// ListAdminAuditLogs 后台操作审计日志
func (h *Handler) ListAdminAuditLogs(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	operatorID, err := parseUintQuery(c, "operator_admin_id")
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	targetID, err := parseUintQuery(c, "target_id")
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	createdFrom, err := parseTimeQuery(c, "created_from")
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	createdTo, err := parseTimeQuery(c, "created_to")
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	rows, total, err := h.AdminAuditService.List(repository.AdminAuditLogListFilter{
		Page:            page,
		PageSize:        pageSize,
		OperatorAdminID: operatorID,
		Action:          strings.TrimSpace(c.Query("action")),
		TargetType:      strings.TrimSpace(c.Query("target_type")),
		TargetID:        targetID,
		CreatedFrom:     createdFrom,
		CreatedTo:       createdTo,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}
