package repository

import (
	"context"
	"errors"

	"donatesystem/internal/model"
	"donatesystem/pkg/errs"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrDonatorNotFound = errs.NotFound("捐赠者不存在")

type DonatorRepository struct {
	db *gorm.DB
}

func NewDonatorRepository(db *gorm.DB) *DonatorRepository {
	return &DonatorRepository{db: db}
}

// GetByIdentity 按身份匹配键 (steamID, anonymous) 查找捐赠者
// steamID 为 nil 时匹配"未关联"捐赠者
func (r *DonatorRepository) GetByIdentity(ctx context.Context, steamID *string, anonymous bool) (*model.Donator, error) {
	query := r.db.WithContext(ctx).Where("anonymous = ?", anonymous)
	if steamID == nil {
		query = query.Where("steam_id IS NULL")
	} else {
		query = query.Where("steam_id = ?", *steamID)
	}

	var donator model.Donator
	err := query.First(&donator).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDonatorNotFound
		}
		return nil, err
	}
	return &donator, nil
}

// FindOrCreate 返回匹配身份的捐赠者，不存在则以零总额创建
// 调用方持有该身份的捐赠者锁，这里的"查-建"不会并发竞争；
// 保险起见创建失败时仍回查一次
func (r *DonatorRepository) FindOrCreate(ctx context.Context, steamID *string, anonymous bool) (*model.Donator, error) {
	donator, err := r.GetByIdentity(ctx, steamID, anonymous)
	if err == nil {
		return donator, nil
	}
	if !errors.Is(err, ErrDonatorNotFound) {
		return nil, err
	}

	newDonator := &model.Donator{
		SteamID:     steamID,
		Anonymous:   anonymous,
		TotalAmount: decimal.Zero,
	}
	if createErr := r.db.WithContext(ctx).Create(newDonator).Error; createErr != nil {
		return r.GetByIdentity(ctx, steamID, anonymous)
	}
	return newDonator, nil
}

// GetBySteamID 精确查找，不区分匿名标记
func (r *DonatorRepository) GetBySteamID(ctx context.Context, steamID string) (*model.Donator, error) {
	var donator model.Donator
	err := r.db.WithContext(ctx).Where("steam_id = ?", steamID).First(&donator).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("SteamID '%s' 不存在", steamID)
		}
		return nil, err
	}
	return &donator, nil
}

func (r *DonatorRepository) GetByID(ctx context.Context, id int64) (*model.Donator, error) {
	var donator model.Donator
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&donator).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDonatorNotFound
		}
		return nil, err
	}
	return &donator, nil
}

// GetByIDForUpdate 在事务内锁住捐赠者行
// SQLite 不支持 FOR UPDATE（测试环境），串行由外层捐赠者锁保证
func (r *DonatorRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Donator, error) {
	query := tx.WithContext(ctx)
	if tx.Dialector.Name() == "mysql" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var donator model.Donator
	err := query.Where("id = ?", id).First(&donator).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDonatorNotFound
		}
		return nil, err
	}
	return &donator, nil
}

// UpdateTotalAmount 写回重算后的累计金额，必须与触发它的台账变更同一事务
func (r *DonatorRepository) UpdateTotalAmount(ctx context.Context, tx *gorm.DB, id int64, total decimal.Decimal) error {
	result := tx.WithContext(ctx).
		Model(&model.Donator{}).
		Where("id = ?", id).
		Update("total_amount", total)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDonatorNotFound
	}
	return nil
}

// TopByTotalAmount 公开榜单：非匿名且已关联 SteamID 的捐赠者按总额倒序
func (r *DonatorRepository) TopByTotalAmount(ctx context.Context, limit int) ([]*model.Donator, error) {
	var donators []*model.Donator
	err := r.db.WithContext(ctx).
		Where("anonymous = ? AND steam_id IS NOT NULL", false).
		Order("total_amount DESC").
		Limit(limit).
		Find(&donators).Error
	return donators, err
}
