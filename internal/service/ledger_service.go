package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"donatesystem/internal/config"
	"donatesystem/internal/model"
	"donatesystem/internal/repository"
	"donatesystem/pkg/errs"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerService 捐赠台账
//
// 核心不变量：任何台账变更提交之后，Donator.TotalAmount 恒等于
// 名下全部捐赠金额的精确十进制之和，任何读者都不会看到
// "明细已变、总额未变"的中间态。
//
// 【关键点】记账/销账都走同一套事务骨架：
// 1. 锁捐赠者行（MySQL 下 FOR UPDATE）
// 2. 变更明细
// 3. 在同一事务内重算总额并写回
// 4. 发件箱消息与变更同事务提交
// 同一捐赠者的并发变更由调用方持有的捐赠者锁串行化
type LedgerService struct {
	db           *gorm.DB
	cfg          *config.Config
	donatorRepo  *repository.DonatorRepository
	donationRepo *repository.DonationRepository
	outboxRepo   *repository.OutboxRepository
}

func NewLedgerService(db *gorm.DB, cfg *config.Config) *LedgerService {
	return &LedgerService{
		db:           db,
		cfg:          cfg,
		donatorRepo:  repository.NewDonatorRepository(db),
		donationRepo: repository.NewDonationRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
	}
}

// FindOrCreateDonator 按身份 (steamID, anonymous) 找到或创建捐赠者
func (s *LedgerService) FindOrCreateDonator(ctx context.Context, steamID *string, anonymous bool) (*model.Donator, error) {
	return s.donatorRepo.FindOrCreate(ctx, steamID, anonymous)
}

// FindDonatorBySteamID 精确查找，不存在返回 NotFound
func (s *LedgerService) FindDonatorBySteamID(ctx context.Context, steamID string) (*model.Donator, error) {
	return s.donatorRepo.GetBySteamID(ctx, steamID)
}

// AddDonation 记一笔捐赠并重算归属捐赠者的总额
// 插入与总额写回在同一事务内提交，对外不可见中间态
func (s *LedgerService) AddDonation(ctx context.Context, donator *model.Donator, amount decimal.Decimal, paypalID string) (*model.Donation, error) {
	donation := &model.Donation{
		DonatorID: donator.ID,
		Amount:    amount,
		PaypalID:  paypalID,
		PaidAt:    time.Now(),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		owner, err := s.donatorRepo.GetByIDForUpdate(ctx, tx, donator.ID)
		if err != nil {
			return fmt.Errorf("锁定捐赠者失败: %w", err)
		}

		if err := s.donationRepo.Create(ctx, tx, donation); err != nil {
			return fmt.Errorf("写入捐赠记录失败: %w", err)
		}

		total, err := s.recalculateTotal(ctx, tx, owner.ID)
		if err != nil {
			return err
		}

		if err := s.enqueueOutbox(ctx, tx, s.cfg.Kafka.Topic.DonationRecorded, donation, owner, total); err != nil {
			return err
		}

		donator.TotalAmount = total
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Ledger] 记账成功: donatorID=%d, paypalID=%s, amount=%s, total=%s",
		donator.ID, paypalID, amount.String(), donator.TotalAmount.String())
	return donation, nil
}

// RemoveDonation 销掉一笔捐赠（退款/冲正）并重算原归属者的总额
// 归属者不存在说明台账已经坏了，按完整性错误上抛，绝不静默吞掉
func (s *LedgerService) RemoveDonation(ctx context.Context, donation *model.Donation) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		owner, err := s.donatorRepo.GetByIDForUpdate(ctx, tx, donation.DonatorID)
		if err != nil {
			if errors.Is(err, repository.ErrDonatorNotFound) {
				return errs.Integrity("捐赠记录 %d 的归属捐赠者 %d 不存在", donation.ID, donation.DonatorID)
			}
			return fmt.Errorf("锁定捐赠者失败: %w", err)
		}

		if err := s.donationRepo.Delete(ctx, tx, donation); err != nil {
			return fmt.Errorf("删除捐赠记录失败: %w", err)
		}

		total, err := s.recalculateTotal(ctx, tx, owner.ID)
		if err != nil {
			return err
		}

		return s.enqueueOutbox(ctx, tx, s.cfg.Kafka.Topic.DonationRemoved, donation, owner, total)
	})
	if err != nil {
		return err
	}

	log.Printf("[Ledger] 销账成功: donationID=%d, paypalID=%s, amount=%s",
		donation.ID, donation.PaypalID, donation.Amount.String())
	return nil
}

// recalculateTotal 精确求和后写回总额，必须在变更事务内调用
func (s *LedgerService) recalculateTotal(ctx context.Context, tx *gorm.DB, donatorID int64) (decimal.Decimal, error) {
	total, err := s.donationRepo.SumByDonator(ctx, tx, donatorID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("重算捐赠总额失败: %w", err)
	}
	if err := s.donatorRepo.UpdateTotalAmount(ctx, tx, donatorID, total); err != nil {
		return decimal.Zero, fmt.Errorf("写回捐赠总额失败: %w", err)
	}
	return total, nil
}

func (s *LedgerService) enqueueOutbox(ctx context.Context, tx *gorm.DB, topic string, donation *model.Donation, owner *model.Donator, total decimal.Decimal) error {
	if topic == "" {
		return nil
	}

	steamID := ""
	if owner.SteamID != nil {
		steamID = *owner.SteamID
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"paypal_id":    donation.PaypalID,
		"donator_id":   owner.ID,
		"steam_id":     steamID,
		"anonymous":    owner.Anonymous,
		"amount":       donation.Amount.String(),
		"total_amount": total.String(),
		"paid_at":      donation.PaidAt.Format(time.RFC3339),
	})

	msg := &model.OutboxMessage{
		MessageKey: donation.PaypalID,
		Topic:      topic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入发件箱失败: %w", err)
	}
	return nil
}
