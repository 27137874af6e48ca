package models

import "time"

// Admin 后台运营账号，权限由 casbin 角色决定
type Admin struct {
	ID                 uint       `gorm:"primarykey" json:"id"`
	Username           string     `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash       string     `gorm:"not null" json:"-"`
	TokenVersion       uint64     `gorm:"not null;default:0" json:"-"` // 改密时自增
	TokenInvalidBefore *time.Time `gorm:"index" json:"-"`              // 早于此刻签发的 token 作废
	IsSuper            bool       `gorm:"not null;default:false;index" json:"is_super"`
	LastLoginAt        *time.Time `json:"last_login_at"`
	CreatedAt          time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (Admin) TableName() string {
	return "admins"
}
