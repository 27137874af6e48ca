package shared

import (
	"errors"

	"github.com/garagebot/affiliate-ledger/internal/http/response"
	"github.com/garagebot/affiliate-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

// MappedError 业务错误到接口错误码与文案 key 的映射
type MappedError struct {
	Target error
	Code   int
	Key    string
}

// RespondMappedError 按映射表返回错误，未命中时返回兜底错误并记录原始错误
func RespondMappedError(c *gin.Context, err error, rules []MappedError, fallbackCode int, fallbackKey string) {
	for _, rule := range rules {
		if errors.Is(err, rule.Target) {
			RespondError(c, rule.Code, rule.Key, nil)
			return
		}
	}
	RespondError(c, fallbackCode, fallbackKey, err)
}

// AffiliateErrorRules 推广账本通用错误映射
var AffiliateErrorRules = []MappedError{
	{Target: service.ErrNotFound, Code: response.CodeNotFound, Key: "error.not_found"},
	{Target: service.ErrDuplicateEnrollment, Code: response.CodeBadRequest, Key: "error.affiliate_already_enrolled"},
	{Target: service.ErrAffiliateNotEnrolled, Code: response.CodeNotFound, Key: "error.affiliate_not_enrolled"},
	{Target: service.ErrAffiliateSuspended, Code: response.CodeForbidden, Key: "error.affiliate_suspended"},
	{Target: service.ErrAffiliateStatusInvalid, Code: response.CodeBadRequest, Key: "error.affiliate_status_invalid"},
	{Target: service.ErrAffiliateCodeExhausted, Code: response.CodeInternal, Key: "error.affiliate_code_exhausted"},
	{Target: service.ErrUnknownAffiliateCode, Code: response.CodeBadRequest, Key: "error.affiliate_code_unknown"},
	{Target: service.ErrDuplicateReferral, Code: response.CodeBadRequest, Key: "error.referral_duplicate"},
	{Target: service.ErrSelfReferral, Code: response.CodeBadRequest, Key: "error.referral_self"},
	{Target: service.ErrInvalidEmail, Code: response.CodeBadRequest, Key: "error.email_invalid"},
	{Target: service.ErrInsufficientBalance, Code: response.CodeBadRequest, Key: "error.payout_insufficient_balance"},
	{Target: service.ErrMissingPayoutDestination, Code: response.CodeBadRequest, Key: "error.payout_destination_missing"},
	{Target: service.ErrPayoutAlreadyPending, Code: response.CodeBadRequest, Key: "error.payout_already_pending"},
	{Target: service.ErrPayoutNotFound, Code: response.CodeNotFound, Key: "error.payout_not_found"},
	{Target: service.ErrPayoutStatusInvalid, Code: response.CodeBadRequest, Key: "error.payout_status_invalid"},
	{Target: service.ErrEarningNotFound, Code: response.CodeNotFound, Key: "error.earning_not_found"},
	{Target: service.ErrEarningNotReversible, Code: response.CodeBadRequest, Key: "error.earning_not_reversible"},
	{Target: service.ErrLedgerDivergence, Code: response.CodeConflict, Key: "error.ledger_divergence"},
	{Target: service.ErrEventInvalid, Code: response.CodeBadRequest, Key: "error.webhook_payload_invalid"},
}

// RespondAffiliateError 推广账本错误统一出口
func RespondAffiliateError(c *gin.Context, err error, fallbackKey string) {
	RespondMappedError(c, err, AffiliateErrorRules, response.CodeInternal, fallbackKey)
}
