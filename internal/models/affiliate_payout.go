package models

import "time"

// AffiliatePayout 推广提现申请
// 金额在申请时确定且不可变，仅状态与时间字段流转
type AffiliatePayout struct {
	ID                 uint       `gorm:"primarykey" json:"id"`                                        // 主键
	AffiliateAccountID uint       `gorm:"not null;index" json:"affiliate_account_id"`                  // 推广账户ID
	Amount             Money      `gorm:"type:decimal(20,2);not null" json:"amount"`                   // 提现金额
	PaypalEmail        string     `gorm:"type:varchar(255);not null;default:''" json:"-"`              // 申请时收款邮箱快照
	Status             string     `gorm:"type:varchar(20);not null;index" json:"status"`               // 状态
	OpenAccountID      *uint      `gorm:"uniqueIndex" json:"-"`                                        // 未结提现占位（同一账户最多一条）
	RequestedAt        time.Time  `gorm:"not null;index" json:"requested_at"`                          // 申请时间
	ApprovedAt         *time.Time `json:"approved_at,omitempty"`                                       // 审核通过时间
	PaidAt             *time.Time `json:"paid_at,omitempty"`                                           // 打款时间
	RejectedAt         *time.Time `json:"rejected_at,omitempty"`                                       // 驳回时间
	RejectReason       string     `gorm:"type:varchar(255);not null;default:''" json:"reject_reason"`  // 驳回原因
	ExternalRef        string     `gorm:"type:varchar(128);not null;default:''" json:"external_ref"`   // 外部打款流水号
	ProcessedBy        *uint      `gorm:"index" json:"processed_by,omitempty"`                         // 处理管理员
	CreatedAt          time.Time  `gorm:"index" json:"created_at"`                                     // 创建时间
	UpdatedAt          time.Time  `gorm:"index" json:"updated_at"`                                     // 更新时间
}

// TableName 指定表名
func (AffiliatePayout) TableName() string {
	return "affiliate_payouts"
}
