package models

import "time"

// AffiliateReferral 推荐关系（被推荐用户唯一，先到先得）
// 是否达标由累计消费实时计算，不落库
type AffiliateReferral struct {
	ID                 uint       `gorm:"primarykey" json:"id"`                                        // 主键
	AffiliateAccountID uint       `gorm:"not null;index" json:"affiliate_account_id"`                  // 推广账户ID
	ReferredUserID     uint       `gorm:"not null;uniqueIndex" json:"referred_user_id"`                // 被推荐用户ID
	ReferredUsername   string     `gorm:"type:varchar(64);not null;default:''" json:"referred_username"` // 被推荐用户名
	ReferredAt         time.Time  `gorm:"not null;index" json:"referred_at"`                           // 推荐时间
	TotalPurchases     Money      `gorm:"type:decimal(20,2);not null;default:0" json:"total_purchases"` // 累计消费
	CommissionEarned   Money      `gorm:"type:decimal(20,2);not null;default:0" json:"commission_earned"` // 该推荐累计收益
	IsProMember        bool       `gorm:"not null;default:false" json:"is_pro_member"`                 // 是否 Pro 会员
	ProSince           *time.Time `json:"pro_since,omitempty"`                                         // 成为 Pro 时间
	ProEndedAt         *time.Time `json:"pro_ended_at,omitempty"`                                      // Pro 结束时间
	CreatedAt          time.Time  `gorm:"index" json:"created_at"`                                     // 创建时间
	UpdatedAt          time.Time  `gorm:"index" json:"updated_at"`                                     // 更新时间
}

// TableName 指定表名
func (AffiliateReferral) TableName() string {
	return "affiliate_referrals"
}
