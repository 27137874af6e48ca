package public

import (
	"errors"
	"strings"

	"github.com/garagebot/affiliate-ledger/internal/http/response"
	"github.com/garagebot/affiliate-ledger/internal/i18n"
	"github.com/garagebot/affiliate-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

// AffiliateEnrollRequest 加入推广计划请求
type AffiliateEnrollRequest struct {
	PaypalEmail string `json:"paypal_email"`
}

// AffiliateUpdateRequest 更新提现账户请求
type AffiliateUpdateRequest struct {
	PaypalEmail string `json:"paypal_email" binding:"required"`
}

// AffiliateAttributionRequest 自助绑定推荐人请求
type AffiliateAttributionRequest struct {
	Code string `json:"code" binding:"required"`
}

func getUsername(c *gin.Context) string {
	if value, ok := c.Get("username"); ok {
		if name, ok := value.(string); ok {
			return strings.TrimSpace(name)
		}
	}
	return ""
}

// GetAffiliateMe 推广看板
func (h *Handler) GetAffiliateMe(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	dashboard, err := h.AffiliateService.GetDashboard(c.Request.Context(), uid)
	if err != nil {
		respondAffiliateError(c, err, "error.fetch_failed")
		return
	}
	response.Success(c, dashboard)
}

// EnrollAffiliate 加入推广计划
func (h *Handler) EnrollAffiliate(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req AffiliateEnrollRequest
	// 允许空 body
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "error.bad_request", err)
			return
		}
	}
	account, err := h.AffiliateService.Enroll(c.Request.Context(), uid, getUsername(c), req.PaypalEmail)
	if err != nil {
		respondAffiliateError(c, err, "error.save_failed")
		return
	}
	locale := i18n.ResolveLocale(c)
	response.SuccessWithMsg(c, i18n.T(locale, "message.affiliate_enrolled"), gin.H{
		"account":   account,
		"share_url": h.AffiliateService.ShareURL(account.AffiliateCode),
	})
}

// UpdateAffiliateMe 更新 PayPal 提现邮箱
func (h *Handler) UpdateAffiliateMe(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req AffiliateUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	account, err := h.AffiliateService.UpdatePayoutDestination(c.Request.Context(), uid, req.PaypalEmail)
	if err != nil {
		respondAffiliateError(c, err, "error.save_failed")
		return
	}
	response.Success(c, account)
}

// RequestAffiliatePayout 申请提现，金额为全部可提现余额
func (h *Handler) RequestAffiliatePayout(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	payout, err := h.AffiliatePayoutService.RequestPayout(c.Request.Context(), uid)
	if err != nil {
		respondAffiliateError(c, err, "error.save_failed")
		return
	}
	locale := i18n.ResolveLocale(c)
	response.SuccessWithMsg(c, i18n.T(locale, "message.payout_requested"), payout)
}

// AttributeAffiliate 登录用户自助填写推荐码
func (h *Handler) AttributeAffiliate(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req AffiliateAttributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	referral, err := h.AffiliateService.RecordReferral(c.Request.Context(), req.Code, uid, getUsername(c))
	if err != nil {
		respondAffiliateError(c, err, "error.save_failed")
		return
	}
	response.Success(c, referral)
}

// GetTrustLayerHandoff 生态身份交接数据，公开接口
func (h *Handler) GetTrustLayerHandoff(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	envelope, err := h.AffiliateService.BuildTrustLayerHandoff(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, service.ErrUnknownAffiliateCode) {
			respondError(c, response.CodeNotFound, "error.affiliate_code_unknown", nil)
			return
		}
		respondAffiliateError(c, err, "error.fetch_failed")
		return
	}
	response.Success(c, envelope)
}
