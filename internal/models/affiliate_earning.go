package models

import "time"

// AffiliateEarning 推广收益流水（只追加，不修改不删除）
// 冲正以负数金额的新记录表示
type AffiliateEarning struct {
	ID                  uint      `gorm:"primarykey" json:"id"`                                                // 主键
	AffiliateAccountID  uint      `gorm:"not null;index" json:"affiliate_account_id"`                          // 推广账户ID
	AffiliateReferralID uint      `gorm:"not null;index" json:"affiliate_referral_id"`                         // 推荐关系ID
	EarningType         string    `gorm:"type:varchar(32);not null;index" json:"type"`                         // 收益类型
	Amount              Money     `gorm:"type:decimal(20,2);not null" json:"amount"`                           // 收益金额
	SourceAmount        Money     `gorm:"type:decimal(20,2);not null;default:0" json:"source_amount"`          // 计算基数
	Description         string    `gorm:"type:varchar(255);not null;default:''" json:"description"`            // 描述
	IdempotencyKey      string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"-"`                     // 幂等键
	ReversalOfID        *uint     `gorm:"index" json:"reversal_of_id,omitempty"`                               // 被冲正的收益ID
	SourceEventID       string    `gorm:"type:varchar(191);not null;default:''" json:"source_event_id"`        // 上游事件ID
	CreatedAt           time.Time `gorm:"index" json:"created_at"`                                             // 创建时间
}

// TableName 指定表名
func (AffiliateEarning) TableName() string {
	return "affiliate_earnings"
}
