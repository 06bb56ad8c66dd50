package repository

import (
	"context"

	"donatesystem/internal/model"
	"donatesystem/pkg/errs"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrDonationNotFound  = errs.NotFound("捐赠记录不存在")
	ErrAmbiguousDonation = errs.Ambiguous("同一交易号命中多条捐赠记录")
)

type DonationRepository struct {
	db *gorm.DB
}

func NewDonationRepository(db *gorm.DB) *DonationRepository {
	return &DonationRepository{db: db}
}

func (r *DonationRepository) Create(ctx context.Context, tx *gorm.DB, donation *model.Donation) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(donation).Error
}

func (r *DonationRepository) Delete(ctx context.Context, tx *gorm.DB, donation *model.Donation) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).Delete(&model.Donation{}, donation.ID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDonationNotFound
	}
	return nil
}

// SumByDonator 精确重算名下捐赠总额
// 金额逐条取回后在 Go 侧用十进制累加，不依赖数据库 SUM 的浮点语义，
// 保证任意条数下求和零误差
func (r *DonationRepository) SumByDonator(ctx context.Context, tx *gorm.DB, donatorID int64) (decimal.Decimal, error) {
	if tx == nil {
		tx = r.db
	}

	var amounts []decimal.Decimal
	err := tx.WithContext(ctx).
		Model(&model.Donation{}).
		Where("donator_id = ?", donatorID).
		Pluck("amount", &amounts).Error
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, amount := range amounts {
		total = total.Add(amount)
	}
	return total, nil
}

// FindByPaypalID 按 PayPal 交易号查找全部匹配，按到账时间正序
// 交易号没有唯一约束，调用方自行决定多条匹配时的处理策略
func (r *DonationRepository) FindByPaypalID(ctx context.Context, paypalID string) ([]*model.Donation, error) {
	var donations []*model.Donation
	err := r.db.WithContext(ctx).
		Where("paypal_id = ?", paypalID).
		Order("paid_at ASC").
		Find(&donations).Error
	return donations, err
}

// FindUniqueByPaypalID 要求恰好一条匹配
// 零条 -> ErrDonationNotFound，多条 -> ErrAmbiguousDonation
func (r *DonationRepository) FindUniqueByPaypalID(ctx context.Context, paypalID string) (*model.Donation, error) {
	donations, err := r.FindByPaypalID(ctx, paypalID)
	if err != nil {
		return nil, err
	}
	switch len(donations) {
	case 0:
		return nil, ErrDonationNotFound
	case 1:
		return donations[0], nil
	default:
		return nil, ErrAmbiguousDonation
	}
}

// ListByDonator 某捐赠者的全部捐赠，新的在前
func (r *DonationRepository) ListByDonator(ctx context.Context, donatorID int64) ([]*model.Donation, error) {
	var donations []*model.Donation
	err := r.db.WithContext(ctx).
		Where("donator_id = ?", donatorID).
		Order("paid_at DESC").
		Find(&donations).Error
	return donations, err
}

// RecentPublic 最近公开捐赠：只取非匿名且已关联 SteamID 的捐赠者，新的在前
func (r *DonationRepository) RecentPublic(ctx context.Context, limit int) ([]*model.Donation, error) {
	var donations []*model.Donation
	err := r.db.WithContext(ctx).
		Joins("JOIN donator ON donator.id = donation.donator_id").
		Where("donator.anonymous = ? AND donator.steam_id IS NOT NULL", false).
		Order("donation.paid_at DESC").
		Limit(limit).
		Preload("Donator").
		Find(&donations).Error
	return donations, err
}
