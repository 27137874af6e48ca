package models

import "time"

// AffiliateEventReceipt 上游事件处理回执（按事件键去重）
type AffiliateEventReceipt struct {
	ID          uint      `gorm:"primarykey" json:"id"`                                   // 主键
	EventKey    string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"event_key"` // 事件键（来源:事件ID）
	EventType   string    `gorm:"type:varchar(64);not null;index" json:"event_type"`      // 事件类型
	Outcome     string    `gorm:"type:varchar(20);not null" json:"outcome"`               // 处理结果
	Detail      string    `gorm:"type:varchar(255);not null;default:''" json:"detail"`    // 说明
	ProcessedAt time.Time `gorm:"not null;index" json:"processed_at"`                     // 处理时间
}

// TableName 指定表名
func (AffiliateEventReceipt) TableName() string {
	return "affiliate_event_receipts"
}
