package constants

// 推广账户状态常量
const (
	AffiliateAccountStatusActive    = "active"
	AffiliateAccountStatusSuspended = "suspended"
)

// 推广收益类型常量
const (
	AffiliateEarningTypePurchaseCommission = "purchase_commission"
	AffiliateEarningTypeProBonus           = "pro_bonus"
	AffiliateEarningTypeProRecurring       = "pro_recurring"
)

// 提现状态常量
const (
	AffiliatePayoutStatusPending  = "pending"
	AffiliatePayoutStatusApproved = "approved"
	AffiliatePayoutStatusPaid     = "paid"
	AffiliatePayoutStatusRejected = "rejected"
)

// 推广规则默认值（美元）
const (
	QualificationThresholdUSD = "100.00"
	PayoutThresholdUSD        = "20.00"
	CommissionRatePercent     = "10"
	ProBonusUSD               = "5.00"
	ProRecurringUSD           = "2.00"
)

// 临界消费计佣策略
const (
	CrossingPurchaseInclude = "include"
	CrossingPurchaseExclude = "exclude"
	CrossingPurchaseProrate = "prorate"
)

// 推荐营收统计口径
const (
	ReferredRevenueModeAll       = "all"
	ReferredRevenueModeQualified = "qualified"
)

// 上游事件类型常量
const (
	UpstreamEventReferralCreated      = "referral.created"
	UpstreamEventPurchaseCompleted    = "purchase.completed"
	UpstreamEventSubscriptionStarted  = "subscription.started"
	UpstreamEventSubscriptionRenewed  = "subscription.renewed"
	UpstreamEventSubscriptionCanceled = "subscription.canceled"
)

// 上游事件来源
const (
	UpstreamSourceCore   = "core"
	UpstreamSourceStripe = "stripe"
)

// 事件回执处理结果
const (
	EventOutcomeApplied   = "applied"
	EventOutcomeIgnored   = "ignored"
	EventOutcomeDuplicate = "duplicate" // 重复投递，仅用于返回结果，不落库
)

// 幂等键前缀
const (
	IdempotencyPrefixPurchase     = "purchase"
	IdempotencyPrefixProBonus     = "pro_bonus"
	IdempotencyPrefixProRecurring = "pro_recurring"
	IdempotencyPrefixReversal     = "reversal"
)

// 队列与任务常量
const (
	QueueDefault            = "default"
	QueueCritical           = "critical"
	TaskAffiliateEvent      = "affiliate:event"
	TaskAffiliateReconcile  = "affiliate:reconcile"
	AffiliateCodePrefix     = "GB-"
	AffiliateCodeBodyLength = 6
)

// 后台审计动作
const (
	AuditActionAffiliateStatus  = "affiliate.status"
	AuditActionPayoutsResume    = "affiliate.resume_payouts"
	AuditActionPayoutApprove    = "payout.approve"
	AuditActionPayoutPaid       = "payout.paid"
	AuditActionPayoutReject     = "payout.reject"
	AuditActionEarningReverse   = "earning.reverse"
	AuditActionAdminRolesUpdate = "admin.roles"
	AuditTargetAffiliateAccount = "affiliate_account"
	AuditTargetAffiliatePayout  = "affiliate_payout"
	AuditTargetAffiliateEarning = "affiliate_earning"
	AuditTargetAdmin            = "admin"
)
