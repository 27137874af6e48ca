package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/garagebot/affiliate-ledger/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AffiliateRepository 推广账本数据访问接口
// 收益流水只提供写入与查询，不提供修改与删除
type AffiliateRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) AffiliateRepository

	GetAccountByID(id uint) (*models.AffiliateAccount, error)
	GetAccountByIDForUpdate(id uint) (*models.AffiliateAccount, error)
	GetAccountByUserID(userID uint) (*models.AffiliateAccount, error)
	GetAccountByUserIDForUpdate(userID uint) (*models.AffiliateAccount, error)
	GetAccountByCode(code string) (*models.AffiliateAccount, error)
	CreateAccount(account *models.AffiliateAccount) error
	UpdateAccountFields(id uint, updates map[string]interface{}) error
	ListAccounts(filter AffiliateAccountListFilter) ([]models.AffiliateAccount, int64, error)
	ListAccountIDsAfter(afterID uint, limit int) ([]uint, error)

	GetReferralByID(id uint) (*models.AffiliateReferral, error)
	GetReferralByIDForUpdate(id uint) (*models.AffiliateReferral, error)
	GetReferralByReferredUser(referredUserID uint) (*models.AffiliateReferral, error)
	GetReferralByReferredUserForUpdate(referredUserID uint) (*models.AffiliateReferral, error)
	CreateReferral(referral *models.AffiliateReferral) error
	UpdateReferralFields(id uint, updates map[string]interface{}) error
	ListReferralsByAccount(accountID uint) ([]models.AffiliateReferral, error)
	CountReferralsByAccount(accountID uint, minPurchases *decimal.Decimal) (int64, error)

	GetEarningByID(id uint) (*models.AffiliateEarning, error)
	GetEarningByIdempotencyKey(key string) (*models.AffiliateEarning, error)
	CreateEarning(earning *models.AffiliateEarning) error
	ListEarnings(filter AffiliateEarningListFilter) ([]models.AffiliateEarning, int64, error)
	SumEarningsByAccount(accountID uint) (decimal.Decimal, error)
	SumEarningsByReferral(accountID uint) (map[uint]decimal.Decimal, error)

	CreatePayout(payout *models.AffiliatePayout) error
	UpdatePayoutFields(id uint, updates map[string]interface{}) error
	GetPayoutByID(id uint) (*models.AffiliatePayout, error)
	GetPayoutByIDForUpdate(id uint) (*models.AffiliatePayout, error)
	GetOpenPayoutByAccount(accountID uint) (*models.AffiliatePayout, error)
	ListPayouts(filter AffiliatePayoutListFilter) ([]models.AffiliatePayout, int64, error)
	SumPayoutsByAccount(accountID uint, statuses []string) (decimal.Decimal, error)

	GetReceiptByEventKey(eventKey string) (*models.AffiliateEventReceipt, error)
	CreateReceipt(receipt *models.AffiliateEventReceipt) error
}

// GormAffiliateRepository GORM 推广账本仓储
type GormAffiliateRepository struct {
	db *gorm.DB
}

// NewAffiliateRepository 创建推广账本仓储
func NewAffiliateRepository(db *gorm.DB) *GormAffiliateRepository {
	return &GormAffiliateRepository{db: db}
}

// WithTx 绑定事务
func (r *GormAffiliateRepository) WithTx(tx *gorm.DB) AffiliateRepository {
	if tx == nil {
		return r
	}
	return &GormAffiliateRepository{db: tx}
}

// Transaction 执行事务
func (r *GormAffiliateRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

func (r *GormAffiliateRepository) locked() *gorm.DB {
	return r.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func firstOrNil[T any](query *gorm.DB, conds ...interface{}) (*T, error) {
	var row T
	if err := query.First(&row, conds...).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// GetAccountByID 按ID获取推广账户
func (r *GormAffiliateRepository) GetAccountByID(id uint) (*models.AffiliateAccount, error) {
	if id == 0 {
		return nil, nil
	}
	return firstOrNil[models.AffiliateAccount](r.db, id)
}

// GetAccountByIDForUpdate 按ID锁定推广账户
func (r *GormAffiliateRepository) GetAccountByIDForUpdate(id uint) (*models.AffiliateAccount, error) {
	if id == 0 {
		return nil, nil
	}
	return firstOrNil[models.AffiliateAccount](r.locked(), id)
}

// GetAccountByUserID 按用户ID获取推广账户
func (r *GormAffiliateRepository) GetAccountByUserID(userID uint) (*models.AffiliateAccount, error) {
	if userID == 0 {
		return nil, nil
	}
	return firstOrNil[models.AffiliateAccount](r.db.Where("user_id = ?", userID))
}

// GetAccountByUserIDForUpdate 按用户ID锁定推广账户
func (r *GormAffiliateRepository) GetAccountByUserIDForUpdate(userID uint) (*models.AffiliateAccount, error) {
	if userID == 0 {
		return nil, nil
	}
	return firstOrNil[models.AffiliateAccount](r.locked().Where("user_id = ?", userID))
}

// GetAccountByCode 按推广码获取推广账户
func (r *GormAffiliateRepository) GetAccountByCode(code string) (*models.AffiliateAccount, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return nil, nil
	}
	return firstOrNil[models.AffiliateAccount](r.db.Where("affiliate_code = ?", normalized))
}

// CreateAccount 创建推广账户
func (r *GormAffiliateRepository) CreateAccount(account *models.AffiliateAccount) error {
	return r.db.Create(account).Error
}

// UpdateAccountFields 更新推广账户字段
func (r *GormAffiliateRepository) UpdateAccountFields(id uint, updates map[string]interface{}) error {
	if id == 0 || len(updates) == 0 {
		return nil
	}
	return r.db.Model(&models.AffiliateAccount{}).Where("id = ?", id).Updates(updates).Error
}

// ListAccounts 查询推广账户列表
func (r *GormAffiliateRepository) ListAccounts(filter AffiliateAccountListFilter) ([]models.AffiliateAccount, int64, error) {
	query := r.db.Model(&models.AffiliateAccount{})
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if code := strings.TrimSpace(filter.Code); code != "" {
		query = query.Where("affiliate_code = ?", strings.ToUpper(code))
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if filter.OnlyHalted {
		query = query.Where("payouts_halted = ?", true)
	}
	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		condition, argCount := buildLikeCondition(r.db, []string{"username", "affiliate_code", "paypal_email"})
		query = query.Where("("+condition+")", repeatLikeArgs("%"+keyword+"%", argCount)...)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.AffiliateAccount
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListAccountIDsAfter 按ID游标分批获取账户ID
func (r *GormAffiliateRepository) ListAccountIDsAfter(afterID uint, limit int) ([]uint, error) {
	if limit <= 0 {
		limit = 100
	}
	ids := make([]uint, 0, limit)
	if err := r.db.Model(&models.AffiliateAccount{}).
		Where("id > ?", afterID).
		Order("id asc").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// GetReferralByID 按ID获取推荐关系
func (r *GormAffiliateRepository) GetReferralByID(id uint) (*models.AffiliateReferral, error) {
	if id == 0 {
		return nil, nil
	}
	return firstOrNil[models.AffiliateReferral](r.db, id)
}

// GetReferralByIDForUpdate 按ID锁定推荐关系
func (r *GormAffiliateRepository) GetReferralByIDForUpdate(id uint) (*models.AffiliateReferral, error) {
	if id == 0 {
		return nil, nil
	}
	return firstOrNil[models.AffiliateReferral](r.locked(), id)
}

// GetReferralByReferredUser 按被推荐用户获取推荐关系
func (r *GormAffiliateRepository) GetReferralByReferredUser(referredUserID uint) (*models.AffiliateReferral, error) {
	if referredUserID == 0 {
		return nil, nil
	}
	return firstOrNil[models.AffiliateReferral](r.db.Where("referred_user_id = ?", referredUserID))
}

// GetReferralByReferredUserForUpdate 按被推荐用户锁定推荐关系
func (r *GormAffiliateRepository) GetReferralByReferredUserForUpdate(referredUserID uint) (*models.AffiliateReferral, error) {
	if referredUserID == 0 {
		return nil, nil
	}
	return firstOrNil[models.AffiliateReferral](r.locked().Where("referred_user_id = ?", referredUserID))
}

// CreateReferral 创建推荐关系
func (r *GormAffiliateRepository) CreateReferral(referral *models.AffiliateReferral) error {
	return r.db.Create(referral).Error
}

// UpdateReferralFields 更新推荐关系字段
func (r *GormAffiliateRepository) UpdateReferralFields(id uint, updates map[string]interface{}) error {
	if id == 0 || len(updates) == 0 {
		return nil
	}
	return r.db.Model(&models.AffiliateReferral{}).Where("id = ?", id).Updates(updates).Error
}

// ListReferralsByAccount 查询账户下的推荐关系
func (r *GormAffiliateRepository) ListReferralsByAccount(accountID uint) ([]models.AffiliateReferral, error) {
	if accountID == 0 {
		return []models.AffiliateReferral{}, nil
	}
	var rows []models.AffiliateReferral
	if err := r.db.Where("affiliate_account_id = ?", accountID).
		Order("referred_at desc, id desc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CountReferralsByAccount 统计账户推荐数，minPurchases 非空时只统计累计消费达到该值的推荐
func (r *GormAffiliateRepository) CountReferralsByAccount(accountID uint, minPurchases *decimal.Decimal) (int64, error) {
	if accountID == 0 {
		return 0, nil
	}
	query := r.db.Model(&models.AffiliateReferral{}).Where("affiliate_account_id = ?", accountID)
	if minPurchases != nil {
		query = query.Where("total_purchases >= ?", minPurchases.StringFixed(2))
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// GetEarningByID 按ID获取收益流水
func (r *GormAffiliateRepository) GetEarningByID(id uint) (*models.AffiliateEarning, error) {
	if id == 0 {
		return nil, nil
	}
	return firstOrNil[models.AffiliateEarning](r.db, id)
}

// GetEarningByIdempotencyKey 按幂等键获取收益流水
func (r *GormAffiliateRepository) GetEarningByIdempotencyKey(key string) (*models.AffiliateEarning, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	return firstOrNil[models.AffiliateEarning](r.db.Where("idempotency_key = ?", key))
}

// CreateEarning 追加收益流水
func (r *GormAffiliateRepository) CreateEarning(earning *models.AffiliateEarning) error {
	return r.db.Create(earning).Error
}

// ListEarnings 查询收益流水
func (r *GormAffiliateRepository) ListEarnings(filter AffiliateEarningListFilter) ([]models.AffiliateEarning, int64, error) {
	query := r.db.Model(&models.AffiliateEarning{})
	if filter.AffiliateAccountID != 0 {
		query = query.Where("affiliate_account_id = ?", filter.AffiliateAccountID)
	}
	if filter.AffiliateReferralID != 0 {
		query = query.Where("affiliate_referral_id = ?", filter.AffiliateReferralID)
	}
	if earningType := strings.TrimSpace(filter.EarningType); earningType != "" {
		query = query.Where("earning_type = ?", earningType)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.AffiliateEarning
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// SumEarningsByAccount 汇总账户收益流水
func (r *GormAffiliateRepository) SumEarningsByAccount(accountID uint) (decimal.Decimal, error) {
	if accountID == 0 {
		return decimal.Zero, nil
	}
	var row struct {
		Total decimal.Decimal `gorm:"column:total"`
	}
	if err := r.db.Model(&models.AffiliateEarning{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("affiliate_account_id = ?", accountID).
		Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Total.Round(2), nil
}

// SumEarningsByReferral 按推荐关系汇总账户收益流水
func (r *GormAffiliateRepository) SumEarningsByReferral(accountID uint) (map[uint]decimal.Decimal, error) {
	result := make(map[uint]decimal.Decimal)
	if accountID == 0 {
		return result, nil
	}
	var rows []struct {
		AffiliateReferralID uint            `gorm:"column:affiliate_referral_id"`
		Total               decimal.Decimal `gorm:"column:total"`
	}
	if err := r.db.Model(&models.AffiliateEarning{}).
		Select("affiliate_referral_id, COALESCE(SUM(amount), 0) AS total").
		Where("affiliate_account_id = ?", accountID).
		Group("affiliate_referral_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.AffiliateReferralID] = row.Total.Round(2)
	}
	return result, nil
}

// CreatePayout 创建提现申请
func (r *GormAffiliateRepository) CreatePayout(payout *models.AffiliatePayout) error {
	return r.db.Create(payout).Error
}

// UpdatePayoutFields 更新提现申请状态字段（金额不可变）
func (r *GormAffiliateRepository) UpdatePayoutFields(id uint, updates map[string]interface{}) error {
	if id == 0 || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["amount"]; ok {
		return errors.New("affiliate payout amount is immutable")
	}
	return r.db.Model(&models.AffiliatePayout{}).Where("id = ?", id).Updates(updates).Error
}

// GetPayoutByID 按ID获取提现申请
func (r *GormAffiliateRepository) GetPayoutByID(id uint) (*models.AffiliatePayout, error) {
	if id == 0 {
		return nil, nil
	}
	return firstOrNil[models.AffiliatePayout](r.db, id)
}

// GetPayoutByIDForUpdate 按ID锁定提现申请
func (r *GormAffiliateRepository) GetPayoutByIDForUpdate(id uint) (*models.AffiliatePayout, error) {
	if id == 0 {
		return nil, nil
	}
	return firstOrNil[models.AffiliatePayout](r.locked(), id)
}

// GetOpenPayoutByAccount 获取账户未结提现
func (r *GormAffiliateRepository) GetOpenPayoutByAccount(accountID uint) (*models.AffiliatePayout, error) {
	if accountID == 0 {
		return nil, nil
	}
	return firstOrNil[models.AffiliatePayout](r.db.Where("open_account_id = ?", accountID))
}

// ListPayouts 查询提现申请列表
func (r *GormAffiliateRepository) ListPayouts(filter AffiliatePayoutListFilter) ([]models.AffiliatePayout, int64, error) {
	query := r.db.Model(&models.AffiliatePayout{})
	if filter.AffiliateAccountID != 0 {
		query = query.Where("affiliate_account_id = ?", filter.AffiliateAccountID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.AffiliatePayout
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// SumPayoutsByAccount 汇总指定状态的提现金额
func (r *GormAffiliateRepository) SumPayoutsByAccount(accountID uint, statuses []string) (decimal.Decimal, error) {
	if accountID == 0 || len(statuses) == 0 {
		return decimal.Zero, nil
	}
	var row struct {
		Total decimal.Decimal `gorm:"column:total"`
	}
	if err := r.db.Model(&models.AffiliatePayout{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("affiliate_account_id = ? AND status IN ?", accountID, statuses).
		Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Total.Round(2), nil
}

// GetReceiptByEventKey 按事件键获取处理回执
func (r *GormAffiliateRepository) GetReceiptByEventKey(eventKey string) (*models.AffiliateEventReceipt, error) {
	eventKey = strings.TrimSpace(eventKey)
	if eventKey == "" {
		return nil, nil
	}
	return firstOrNil[models.AffiliateEventReceipt](r.db.Where("event_key = ?", eventKey))
}

// CreateReceipt 写入事件处理回执
func (r *GormAffiliateRepository) CreateReceipt(receipt *models.AffiliateEventReceipt) error {
	if receipt.ProcessedAt.IsZero() {
		receipt.ProcessedAt = time.Now()
	}
	return r.db.Create(receipt).Error
}
