package repository

import (
	"errors"
	"time"

	"github.com/garagebot/affiliate-ledger/internal/models"

	"gorm.io/gorm"
)

// AdminRepository 后台运营账号数据访问
type AdminRepository interface {
	GetByUsername(username string) (*models.Admin, error)
	GetByID(id uint) (*models.Admin, error)
	Create(admin *models.Admin) error
	TouchLastLogin(id uint, at time.Time) error
	RotateCredentials(id uint, passwordHash string, invalidBefore time.Time) error
}

// GormAdminRepository GORM 实现
type GormAdminRepository struct {
	db *gorm.DB
}

// NewAdminRepository 创建运营账号仓库
func NewAdminRepository(db *gorm.DB) *GormAdminRepository {
	return &GormAdminRepository{db: db}
}

// GetByUsername 不存在时返回 nil, nil
func (r *GormAdminRepository) GetByUsername(username string) (*models.Admin, error) {
	return r.first(r.db.Where("username = ?", username))
}

// GetByID 不存在时返回 nil, nil
func (r *GormAdminRepository) GetByID(id uint) (*models.Admin, error) {
	return r.first(r.db.Where("id = ?", id))
}

func (r *GormAdminRepository) first(query *gorm.DB) (*models.Admin, error) {
	var admin models.Admin
	if err := query.First(&admin).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &admin, nil
}

// Create 创建运营账号
func (r *GormAdminRepository) Create(admin *models.Admin) error {
	return r.db.Create(admin).Error
}

// TouchLastLogin 只写登录时间，不覆盖并发修改过的凭据字段
func (r *GormAdminRepository) TouchLastLogin(id uint, at time.Time) error {
	return r.updateColumns(id, map[string]interface{}{
		"last_login_at": at,
	})
}

// RotateCredentials 更换密码并在库内自增 token_version，使已签发 token 全部失效
func (r *GormAdminRepository) RotateCredentials(id uint, passwordHash string, invalidBefore time.Time) error {
	return r.updateColumns(id, map[string]interface{}{
		"password_hash":        passwordHash,
		"token_version":        gorm.Expr("token_version + 1"),
		"token_invalid_before": invalidBefore,
	})
}

func (r *GormAdminRepository) updateColumns(id uint, columns map[string]interface{}) error {
	columns["updated_at"] = time.Now()
	result := r.db.Model(&models.Admin{}).Where("id = ?", id).Updates(columns)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
