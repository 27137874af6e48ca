package admin

import (
	"errors"
	"strings"

	"github.com/garagebot/affiliate-ledger/internal/constants"
	handlershared "github.com/garagebot/affiliate-ledger/internal/http/handlers/shared"
	"github.com/garagebot/affiliate-ledger/internal/http/response"
	"github.com/garagebot/affiliate-ledger/internal/i18n"
	"github.com/garagebot/affiliate-ledger/internal/models"
	"github.com/garagebot/affiliate-ledger/internal/queue"
	"github.com/garagebot/affiliate-ledger/internal/repository"
	"github.com/garagebot/affiliate-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

// AffiliateStatusRequest 推广账户状态更新请求
type AffiliateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// PayoutPaidRequest 标记打款请求
type PayoutPaidRequest struct {
	ExternalRef string `json:"external_ref"`
}

// ReasonRequest 驳回/冲正原因
type ReasonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ListAffiliates 管理端推广账户列表
func (h *Handler) ListAffiliates(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	userID, err := parseUintQuery(c, "user_id")
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	rows, total, err := h.AffiliateService.ListAccounts(c.Request.Context(), repository.AffiliateAccountListFilter{
		Page:       page,
		PageSize:   pageSize,
		UserID:     userID,
		Code:       strings.TrimSpace(c.Query("code")),
		Status:     strings.TrimSpace(c.Query("status")),
		Keyword:    strings.TrimSpace(c.Query("keyword")),
		OnlyHalted: c.Query("halted") == "true",
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// GetAffiliate 管理端推广账户详情
func (h *Handler) GetAffiliate(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	detail, err := h.AffiliateService.GetAccountDetail(c.Request.Context(), id)
	if err != nil {
		respondAffiliateError(c, err, "error.fetch_failed")
		return
	}
	response.Success(c, detail)
}

// UpdateAffiliateStatus 停用/启用推广账户
func (h *Handler) UpdateAffiliateStatus(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	var req AffiliateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	account, err := h.AffiliateService.UpdateStatus(c.Request.Context(), adminID, id, req.Status)
	if err != nil {
		respondAffiliateError(c, err, "error.save_failed")
		return
	}
	h.recordAudit(c, adminID, constants.AuditActionAffiliateStatus, constants.AuditTargetAffiliateAccount, account.ID, models.JSON{
		"status": account.Status,
	})
	response.Success(c, account)
}

// ReconcileAffiliate 单账户对账，发现差异时返回 409 并附带报告
func (h *Handler) ReconcileAffiliate(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	report, err := h.AffiliateLedgerService.Reconcile(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrLedgerDivergence) && report != nil {
			requestLog(c).Warnw("admin_affiliate_reconcile_diverged", "account_id", id, "differences", report.Differences)
			response.ErrorWithData(c, response.CodeConflict, i18n.T(i18n.ResolveLocale(c), "error.ledger_divergence"), report)
			return
		}
		respondAffiliateError(c, err, "error.fetch_failed")
		return
	}
	response.SuccessWithMsg(c, i18n.T(i18n.ResolveLocale(c), "message.reconcile_clean"), report)
}

// ResumeAffiliatePayouts 复核后恢复提现
func (h *Handler) ResumeAffiliatePayouts(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	report, err := h.AffiliateLedgerService.ResumePayouts(c.Request.Context(), adminID, id)
	if err != nil {
		if errors.Is(err, service.ErrLedgerDivergence) && report != nil {
			response.ErrorWithData(c, response.CodeConflict, i18n.T(i18n.ResolveLocale(c), "error.ledger_divergence"), report)
			return
		}
		respondAffiliateError(c, err, "error.save_failed")
		return
	}
	h.recordAudit(c, adminID, constants.AuditActionPayoutsResume, constants.AuditTargetAffiliateAccount, id, nil)
	response.SuccessWithMsg(c, i18n.T(i18n.ResolveLocale(c), "message.payout_resumed"), report)
}

// ReconcileAllAffiliates 全量对账，队列可用时异步执行
func (h *Handler) ReconcileAllAffiliates(c *gin.Context) {
	if h.QueueClient.Enabled() {
		if err := h.QueueClient.EnqueueReconcile(queue.AffiliateReconcilePayload{}); err != nil {
			requestLog(c).Warnw("admin_affiliate_reconcile_enqueue_failed", "error", err)
		} else {
			response.Success(c, gin.H{"queued": true})
			return
		}
	}
	summary, err := h.AffiliateLedgerService.ReconcileAll(c.Request.Context())
	if err != nil {
		respondError(c, response.CodeInternal, "error.internal", err)
		return
	}
	response.Success(c, gin.H{"queued": false, "summary": summary})
}

// ListAffiliatePayouts 管理端提现列表
func (h *Handler) ListAffiliatePayouts(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	accountID, err := parseUintQuery(c, "affiliate_account_id")
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

	rows, total, err := h.AffiliatePayoutService.ListPayouts(c.Request.Context(), repository.AffiliatePayoutListFilter{
		Page:               page,
		PageSize:           pageSize,
		AffiliateAccountID: accountID,
		Status:             strings.TrimSpace(c.Query("status")),
		CreatedFrom:        createdFrom,
		CreatedTo:          createdTo,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// ApproveAffiliatePayout 审核通过
func (h *Handler) ApproveAffiliatePayout(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	payout, err := h.AffiliatePayoutService.ApprovePayout(c.Request.Context(), adminID, id)
	if err != nil {
		respondAffiliateError(c, err, "error.save_failed")
		return
	}
	h.recordAudit(c, adminID, constants.AuditActionPayoutApprove, constants.AuditTargetAffiliatePayout, payout.ID, models.JSON{
		"affiliate_account_id": payout.AffiliateAccountID,
		"amount":               payout.Amount.String(),
	})
	response.Success(c, payout)
}

// MarkAffiliatePayoutPaid 标记已打款
func (h *Handler) MarkAffiliatePayoutPaid(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	var req PayoutPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	payout, err := h.AffiliatePayoutService.MarkPayoutPaid(c.Request.Context(), adminID, id, req.ExternalRef)
	if err != nil {
		respondAffiliateError(c, err, "error.save_failed")
		return
	}
	h.recordAudit(c, adminID, constants.AuditActionPayoutPaid, constants.AuditTargetAffiliatePayout, payout.ID, models.JSON{
		"affiliate_account_id": payout.AffiliateAccountID,
		"amount":               payout.Amount.String(),
		"external_ref":         payout.ExternalRef,
	})
	response.Success(c, payout)
}

// RejectAffiliatePayout 驳回提现，冻结金额退回余额
func (h *Handler) RejectAffiliatePayout(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	var req ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	payout, err := h.AffiliatePayoutService.RejectPayout(c.Request.Context(), adminID, id, req.Reason)
	if err != nil {
		respondAffiliateError(c, err, "error.save_failed")
		return
	}
	h.recordAudit(c, adminID, constants.AuditActionPayoutReject, constants.AuditTargetAffiliatePayout, payout.ID, models.JSON{
		"affiliate_account_id": payout.AffiliateAccountID,
		"reason":               req.Reason,
	})
	response.Success(c, payout)
}

// ListAffiliateEarnings 管理端收益流水
func (h *Handler) ListAffiliateEarnings(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	accountID, err := parseUintQuery(c, "affiliate_account_id")
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	referralID, err := parseUintQuery(c, "affiliate_referral_id")
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

	rows, total, err := h.AffiliateEarningService.ListEarnings(c.Request.Context(), repository.AffiliateEarningListFilter{
		Page:                page,
		PageSize:            pageSize,
		AffiliateAccountID:  accountID,
		AffiliateReferralID: referralID,
		EarningType:         strings.TrimSpace(c.Query("earning_type")),
		CreatedFrom:         createdFrom,
		CreatedTo:           createdTo,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// ReverseAffiliateEarning 冲正一笔收益
func (h *Handler) ReverseAffiliateEarning(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	var req ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	reversal, err := h.AffiliateEarningService.ReverseEarning(c.Request.Context(), adminID, id, req.Reason)
	if err != nil {
		respondAffiliateError(c, err, "error.save_failed")
		return
	}
	h.recordAudit(c, adminID, constants.AuditActionEarningReverse, constants.AuditTargetAffiliateEarning, id, models.JSON{
		"reversal_id": reversal.ID,
		"amount":      reversal.Amount.String(),
		"reason":      req.Reason,
	})
	response.Success(c, reversal)
}
