package repository

import "time"

// AffiliateAccountListFilter 查询推广账户列表的过滤条件
type AffiliateAccountListFilter struct {
	Page       int
	PageSize   int
	UserID     uint
	Code       string
	Status     string
	Keyword    string
	OnlyHalted bool
}

// AffiliateEarningListFilter 查询收益流水的过滤条件
type AffiliateEarningListFilter struct {
	Page                int
	PageSize            int
	AffiliateAccountID  uint
	AffiliateReferralID uint
	EarningType         string
	CreatedFrom         *time.Time
	CreatedTo           *time.Time
}

// AffiliatePayoutListFilter 查询提现申请的过滤条件
type AffiliatePayoutListFilter struct {
	Page               int
	PageSize           int
	AffiliateAccountID uint
	Status             string
	CreatedFrom        *time.Time
	CreatedTo          *time.Time
}

// AdminAuditLogListFilter 查询后台审计日志的过滤条件
type AdminAuditLogListFilter struct {
	Page            int
	PageSize        int
	OperatorAdminID uint
	Action          string
	TargetType      string
	TargetID        uint
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
}
