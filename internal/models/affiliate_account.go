package models

import (
	"time"
)

// AffiliateAccount 推广账户（每个报名用户一条）
// 资金字段仅允许账本服务在事务内写入
type AffiliateAccount struct {
	ID                   uint       `gorm:"primarykey" json:"id"`                                               // 主键
	UserID               uint       `gorm:"not null;uniqueIndex" json:"user_id"`                                // 所属用户ID
	Username             string     `gorm:"type:varchar(64);not null;default:''" json:"username"`               // 用户名快照
	AffiliateCode        string     `gorm:"type:varchar(16);not null;uniqueIndex" json:"code"`                  // 推广码 GB-XXXXXX
	PaypalEmail          string     `gorm:"type:varchar(255);not null;default:''" json:"paypal_email"`          // PayPal 收款邮箱
	Status               string     `gorm:"type:varchar(20);not null;index" json:"status"`                      // 状态
	TotalEarnings        Money      `gorm:"type:decimal(20,2);not null;default:0" json:"total_earnings"`        // 累计收益
	AvailableBalance     Money      `gorm:"type:decimal(20,2);not null;default:0" json:"available_balance"`     // 可提现余额
	TotalReferredRevenue Money      `gorm:"type:decimal(20,2);not null;default:0" json:"total_referred_revenue"` // 推荐营收
	PayoutsHalted        bool       `gorm:"not null;default:false;index" json:"payouts_halted"`                 // 对账异常冻结提现
	HaltedReason         string     `gorm:"type:varchar(255);not null;default:''" json:"halted_reason"`         // 冻结原因
	HaltedAt             *time.Time `json:"halted_at,omitempty"`                                                // 冻结时间
	CreatedAt            time.Time  `gorm:"index" json:"created_at"`                                            // 创建时间
	UpdatedAt            time.Time  `gorm:"index" json:"updated_at"`                                            // 更新时间
}

// TableName 指定表名
func (AffiliateAccount) TableName() string {
	return "affiliate_accounts"
}
