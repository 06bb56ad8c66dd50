package service

import (
	"context"
	"testing"

	"donatesystem/internal/model"
	"donatesystem/pkg/errs"

	"github.com/shopspring/decimal"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("非法金额 %q: %v", s, err)
	}
	return d
}

// reloadDonator 从库里重读捐赠者，模拟变更提交后的任意读者
func reloadDonator(t *testing.T, ledger *LedgerService, id int64) *model.Donator {
	t.Helper()
	var donator model.Donator
	if err := ledger.db.First(&donator, id).Error; err != nil {
		t.Fatalf("重读捐赠者失败: %v", err)
	}
	return &donator
}

func TestAddDonationRecalculatesTotal(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedgerService(newTestDB(t), newTestConfig())

	donator, err := ledger.FindOrCreateDonator(ctx, strPtr("76561197960310133"), false)
	if err != nil {
		t.Fatalf("创建捐赠者失败: %v", err)
	}
	if !donator.TotalAmount.IsZero() {
		t.Fatalf("新建捐赠者总额 = %s, 期望 0", donator.TotalAmount)
	}

	// 三笔刻意选会暴露浮点误差的金额
	for i, amount := range []string{"0.10", "0.20", "0.30"} {
		if _, err := ledger.AddDonation(ctx, donator, mustDecimal(t, amount), "TXN"+string(rune('A'+i))); err != nil {
			t.Fatalf("记账失败: %v", err)
		}
	}

	reloaded := reloadDonator(t, ledger, donator.ID)
	if want := mustDecimal(t, "0.60"); !reloaded.TotalAmount.Equal(want) {
		t.Fatalf("总额 = %s, 期望 %s", reloaded.TotalAmount, want)
	}
}

// 任意记账/销账序列之后，总额都必须精确等于当前明细之和
func TestAddRemoveSequenceKeepsInvariant(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedgerService(newTestDB(t), newTestConfig())

	donator, err := ledger.FindOrCreateDonator(ctx, strPtr("76561197960310133"), false)
	if err != nil {
		t.Fatalf("创建捐赠者失败: %v", err)
	}

	assertInvariant := func() {
		t.Helper()
		total, err := ledger.donationRepo.SumByDonator(ctx, nil, donator.ID)
		if err != nil {
			t.Fatalf("求和失败: %v", err)
		}
		reloaded := reloadDonator(t, ledger, donator.ID)
		if !reloaded.TotalAmount.Equal(total) {
			t.Fatalf("不变量被破坏: 总额=%s, 明细和=%s", reloaded.TotalAmount, total)
		}
	}

	var donations []*model.Donation
	for i, amount := range []string{"5.00", "12.34", "0.01", "99.99"} {
		d, err := ledger.AddDonation(ctx, donator, mustDecimal(t, amount), "SEQ"+string(rune('A'+i)))
		if err != nil {
			t.Fatalf("记账失败: %v", err)
		}
		donations = append(donations, d)
		assertInvariant()
	}

	for _, d := range []*model.Donation{donations[1], donations[3], donations[0]} {
		if err := ledger.RemoveDonation(ctx, d); err != nil {
			t.Fatalf("销账失败: %v", err)
		}
		assertInvariant()
	}

	reloaded := reloadDonator(t, ledger, donator.ID)
	if want := mustDecimal(t, "0.01"); !reloaded.TotalAmount.Equal(want) {
		t.Fatalf("总额 = %s, 期望 %s", reloaded.TotalAmount, want)
	}
}

func TestRemoveDonationExcludesFromList(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedgerService(newTestDB(t), newTestConfig())

	donator, _ := ledger.FindOrCreateDonator(ctx, strPtr("76561197960310133"), false)
	kept, err := ledger.AddDonation(ctx, donator, mustDecimal(t, "10.00"), "KEEP")
	if err != nil {
		t.Fatalf("记账失败: %v", err)
	}
	removed, err := ledger.AddDonation(ctx, donator, mustDecimal(t, "7.50"), "DROP")
	if err != nil {
		t.Fatalf("记账失败: %v", err)
	}

	before := reloadDonator(t, ledger, donator.ID).TotalAmount

	if err := ledger.RemoveDonation(ctx, removed); err != nil {
		t.Fatalf("销账失败: %v", err)
	}

	list, err := ledger.donationRepo.ListByDonator(ctx, donator.ID)
	if err != nil {
		t.Fatalf("查明细失败: %v", err)
	}
	for _, d := range list {
		if d.ID == removed.ID {
			t.Fatal("已销账的捐赠仍出现在明细里")
		}
	}
	if len(list) != 1 || list[0].ID != kept.ID {
		t.Fatalf("明细 = %d 条, 期望只剩 KEEP", len(list))
	}

	after := reloadDonator(t, ledger, donator.ID).TotalAmount
	if !before.Sub(after).Equal(removed.Amount) {
		t.Fatalf("总额减少 %s, 期望 %s", before.Sub(after), removed.Amount)
	}
}

// 同一交易号重复入账会产生两条记录、总额翻倍：
// 这是沿用的台账契约（去重依赖 PayPal 侧 txn_id 唯一），不要悄悄"修复"
func TestDuplicateTxnIDCreatesTwoEntries(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedgerService(newTestDB(t), newTestConfig())

	donator, _ := ledger.FindOrCreateDonator(ctx, strPtr("76561197960310133"), false)
	amount := mustDecimal(t, "25.00")

	for i := 0; i < 2; i++ {
		if _, err := ledger.AddDonation(ctx, donator, amount, "DUPLICATE"); err != nil {
			t.Fatalf("第 %d 次记账失败: %v", i+1, err)
		}
	}

	matches, err := ledger.donationRepo.FindByPaypalID(ctx, "DUPLICATE")
	if err != nil {
		t.Fatalf("查交易号失败: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("匹配 %d 条, 期望 2", len(matches))
	}

	reloaded := reloadDonator(t, ledger, donator.ID)
	if want := mustDecimal(t, "50.00"); !reloaded.TotalAmount.Equal(want) {
		t.Fatalf("总额 = %s, 期望 %s", reloaded.TotalAmount, want)
	}
}

func TestRemoveDonationMissingOwnerIsIntegrityError(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ledger := NewLedgerService(db, newTestConfig())

	donator, _ := ledger.FindOrCreateDonator(ctx, strPtr("76561197960310133"), false)
	donation, err := ledger.AddDonation(ctx, donator, mustDecimal(t, "10.00"), "ORPHAN")
	if err != nil {
		t.Fatalf("记账失败: %v", err)
	}

	// 直接删掉归属者，制造台账损坏现场
	if err := db.Delete(&model.Donator{}, donator.ID).Error; err != nil {
		t.Fatalf("删除捐赠者失败: %v", err)
	}

	err = ledger.RemoveDonation(ctx, donation)
	if err == nil {
		t.Fatal("期望完整性错误, 实际成功")
	}
	if errs.CodeOf(err) != errs.CodeIntegrity {
		t.Fatalf("错误码 = %d, 期望 %d", errs.CodeOf(err), errs.CodeIntegrity)
	}
}

func TestAddDonationWritesOutbox(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ledger := NewLedgerService(db, newTestConfig())

	donator, _ := ledger.FindOrCreateDonator(ctx, strPtr("76561197960310133"), false)
	if _, err := ledger.AddDonation(ctx, donator, mustDecimal(t, "10.00"), "OUTBOX"); err != nil {
		t.Fatalf("记账失败: %v", err)
	}

	var messages []model.OutboxMessage
	if err := db.Find(&messages).Error; err != nil {
		t.Fatalf("查发件箱失败: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("发件箱 %d 条, 期望 1", len(messages))
	}
	if messages[0].Topic != "donation_recorded" || messages[0].MessageKey != "OUTBOX" {
		t.Fatalf("发件箱内容不符: %+v", messages[0])
	}
	if messages[0].Status != model.OutboxStatusPending {
		t.Fatalf("状态 = %s, 期望 PENDING", messages[0].Status)
	}
}

func TestFindOrCreateDonatorMatchesOnIdentity(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedgerService(newTestDB(t), newTestConfig())

	first, err := ledger.FindOrCreateDonator(ctx, strPtr("76561197960310133"), false)
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	again, err := ledger.FindOrCreateDonator(ctx, strPtr("76561197960310133"), false)
	if err != nil {
		t.Fatalf("查找失败: %v", err)
	}
	if first.ID != again.ID {
		t.Fatal("相同身份应命中同一捐赠者")
	}

	// 匿名标记是身份的一部分，不同标记是不同捐赠者
	anonymous, err := ledger.FindOrCreateDonator(ctx, strPtr("76561197960310133"), true)
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	if anonymous.ID == first.ID {
		t.Fatal("匿名标记不同应创建新捐赠者")
	}

	// 未关联身份（steamID 为空）也有自己的捐赠者
	unlinked, err := ledger.FindOrCreateDonator(ctx, nil, true)
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	if unlinked.SteamID != nil {
		t.Fatal("未关联捐赠者的 SteamID 应为空")
	}
}
