package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"donatesystem/internal/config"
	"donatesystem/internal/infrastructure/lock"
	"donatesystem/internal/infrastructure/paypal"
	"donatesystem/internal/model"
	"donatesystem/internal/repository"
	"donatesystem/pkg/errs"
	"donatesystem/pkg/idgen"
	"donatesystem/pkg/steamid"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 已知的 PayPal payment_status（统一小写比较）
const (
	statusCompleted        = "completed"
	statusRefunded         = "refunded"
	statusReversed         = "reversed"
	statusCanceledReversal = "canceled_reversal"
)

// WebhookService IPN 处理管线：先校验，后入账
//
// 处理顺序是硬约束：回传校验、SteamID 解析这些网络调用全部完成后
// 才允许碰台账，事务里绝不做网络 IO。
//
// 每条通知（包括识别不了的）都会落一条审计记录。
// 本层所有错误只记日志和审计，不会反映到 IPN 的 HTTP 响应上。
type WebhookService struct {
	db           *gorm.DB
	cfg          *config.Config
	verifier     *paypal.Verifier
	lockers      lock.Factory
	ledger       *LedgerService
	donatorRepo  *repository.DonatorRepository
	donationRepo *repository.DonationRepository
	webhookRepo  *repository.WebhookEventRepository

	// 显式的状态分发表，未知状态一律走 IGNORED 分支
	handlers map[string]func(ctx context.Context, values url.Values) error
}

func NewWebhookService(db *gorm.DB, cfg *config.Config, verifier *paypal.Verifier, lockers lock.Factory) *WebhookService {
	s := &WebhookService{
		db:           db,
		cfg:          cfg,
		verifier:     verifier,
		lockers:      lockers,
		ledger:       NewLedgerService(db, cfg),
		donatorRepo:  repository.NewDonatorRepository(db),
		donationRepo: repository.NewDonationRepository(db),
		webhookRepo:  repository.NewWebhookEventRepository(db),
	}
	s.handlers = map[string]func(ctx context.Context, values url.Values) error{
		statusCompleted:        s.handleCompleted,
		statusRefunded:         s.handleRefunded,
		statusReversed:         s.handleReversed,
		statusCanceledReversal: s.handleCanceledReversal,
	}
	return s
}

// ProcessNotification 处理一条入站 IPN 通知
// 返回错误仅供调用方打日志；IPN 端点无论如何都回空 200
func (s *WebhookService) ProcessNotification(ctx context.Context, rawBody []byte) error {
	values, err := url.ParseQuery(string(rawBody))
	if err != nil {
		s.audit(ctx, rawBody, "", model.WebhookResultFailed, err)
		return fmt.Errorf("解析 IPN 报文失败: %w", err)
	}

	status := strings.ToLower(values.Get("payment_status"))

	// 任何台账动作之前先回传校验
	if err := s.verifier.Verify(ctx, rawBody); err != nil {
		s.audit(ctx, rawBody, status, model.WebhookResultFailed, err)
		return err
	}

	handler, ok := s.handlers[status]
	if !ok {
		log.Printf("[Webhook] 未知的 payment_status: %s", status)
		s.audit(ctx, rawBody, status, model.WebhookResultIgnored, nil)
		return nil
	}

	if err := handler(ctx, values); err != nil {
		s.audit(ctx, rawBody, status, model.WebhookResultFailed, err)
		return err
	}

	s.audit(ctx, rawBody, status, model.WebhookResultProcessed, nil)
	return nil
}

// handleCompleted 完成的付款 -> 记一笔捐赠
// 幂等性由 PayPal 的 txn_id 唯一性保证；同一 txn_id 重复投递会记两笔，
// 这是沿用的台账契约（见 model.Donation 的说明）
func (s *WebhookService) handleCompleted(ctx context.Context, values url.Values) error {
	txnID := values.Get("txn_id")
	if txnID == "" {
		return errs.New(errs.CodeUnknown, "completed 事件缺少 txn_id")
	}

	// 优先用结算金额，没有则退回总额
	amountText := values.Get("settle_amount")
	if amountText == "" {
		amountText = values.Get("mc_gross")
	}
	amount, err := decimal.NewFromString(amountText)
	if err != nil {
		return errs.Wrap(errs.CodeUnknown, err, "无法解析金额 '%s'", amountText)
	}

	custom, err := parseCustomPayload(values.Get("custom"))
	if err != nil {
		return err
	}

	// SteamID 归一化失败时整个事件作废，不允许留下半截状态
	var steamID *string
	if custom.SteamID != "" {
		id64, err := steamid.ToSteam64(custom.SteamID)
		if err != nil {
			return errs.Wrap(errs.CodeIdentity, err, "SteamID 解析失败, 放弃入账: txnID=%s", txnID)
		}
		text := strconv.FormatUint(id64, 10)
		steamID = &text
	}

	// 网络调用到此全部结束，拿捐赠者锁做短事务
	locker := s.lockers.DonatorLock(lock.DonatorKey(steamID, custom.Anonymous))
	if err := locker.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return fmt.Errorf("获取捐赠者锁失败: %w", err)
	}
	defer locker.Unlock(ctx)

	donator, err := s.ledger.FindOrCreateDonator(ctx, steamID, custom.Anonymous)
	if err != nil {
		return fmt.Errorf("定位捐赠者失败: %w", err)
	}

	_, err = s.ledger.AddDonation(ctx, donator, amount, txnID)
	return err
}

// handleRefunded 退款 -> 按原始交易号（parent_txn_id）销账
//
// 交易号没有唯一约束，这里把全部匹配查出来显式处理：
// 零条是可接受的无操作（可能退的是建档之前的捐赠），多条打告警日志
// 后销最早的一条。冲正走的是严格路径，见 handleReversed
func (s *WebhookService) handleRefunded(ctx context.Context, values url.Values) error {
	parentTxnID := values.Get("parent_txn_id")
	donations, err := s.donationRepo.FindByPaypalID(ctx, parentTxnID)
	if err != nil {
		return fmt.Errorf("查找退款目标失败: %w", err)
	}

	if len(donations) == 0 {
		log.Printf("[Webhook] 退款无匹配捐赠记录, 忽略: parentTxnID=%s", parentTxnID)
		return nil
	}
	if len(donations) > 1 {
		log.Printf("[Webhook] 退款命中 %d 条捐赠记录, 销最早一条: parentTxnID=%s", len(donations), parentTxnID)
	}

	return s.removeWithLock(ctx, donations[0])
}

// handleReversed 冲正 -> 要求恰好一条匹配，零条/多条都是错误
func (s *WebhookService) handleReversed(ctx context.Context, values url.Values) error {
	parentTxnID := values.Get("parent_txn_id")
	donation, err := s.donationRepo.FindUniqueByPaypalID(ctx, parentTxnID)
	if err != nil {
		return fmt.Errorf("查找冲正目标失败: %w", err)
	}

	return s.removeWithLock(ctx, donation)
}

// handleCanceledReversal 冲正撤销：只审计，不动台账
func (s *WebhookService) handleCanceledReversal(ctx context.Context, values url.Values) error {
	log.Printf("[Webhook] 冲正已撤销: parentTxnID=%s", values.Get("parent_txn_id"))
	return nil
}

// removeWithLock 在归属捐赠者的锁保护下销账
func (s *WebhookService) removeWithLock(ctx context.Context, donation *model.Donation) error {
	owner, err := s.donatorRepo.GetByID(ctx, donation.DonatorID)
	if err != nil {
		if errors.Is(err, repository.ErrDonatorNotFound) {
			return errs.Integrity("捐赠记录 %d 的归属捐赠者 %d 不存在", donation.ID, donation.DonatorID)
		}
		return err
	}

	locker := s.lockers.DonatorLock(lock.DonatorKey(owner.SteamID, owner.Anonymous))
	if err := locker.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return fmt.Errorf("获取捐赠者锁失败: %w", err)
	}
	defer locker.Unlock(ctx)

	return s.ledger.RemoveDonation(ctx, donation)
}

// customPayload 捐赠页塞进 PayPal custom 字段的业务负载（base64 JSON）
type customPayload struct {
	Anonymous bool   `json:"anonymous"`
	SteamID   string `json:"steamid"`
}

func parseCustomPayload(raw string) (*customPayload, error) {
	if raw == "" {
		return &customPayload{}, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, errs.Wrap(errs.CodeUnknown, err, "custom 字段不是合法的 base64")
	}

	payload := &customPayload{}
	if err := json.Unmarshal(decoded, payload); err != nil {
		return nil, errs.Wrap(errs.CodeUnknown, err, "custom 字段不是合法的 JSON")
	}
	return payload, nil
}

// audit 落审计记录，失败只打日志（审计不能反过来阻断主流程）
func (s *WebhookService) audit(ctx context.Context, rawBody []byte, status string, result string, procErr error) {
	event := &model.WebhookEvent{
		EventNo:       idgen.GenerateEventNo(),
		TxnID:         auditTxnID(rawBody),
		PaymentStatus: status,
		Payload:       string(rawBody),
		Result:        result,
	}
	if procErr != nil {
		event.Error = truncate(procErr.Error(), 512)
	}

	if err := s.webhookRepo.Create(ctx, event); err != nil {
		log.Printf("[Webhook] 写审计记录失败: eventNo=%s, err=%v", event.EventNo, err)
	}
}

func auditTxnID(rawBody []byte) string {
	values, err := url.ParseQuery(string(rawBody))
	if err != nil {
		return ""
	}
	return values.Get("txn_id")
}

// truncate 按字节上限截断，回退到字符边界，不能截出半个汉字
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
