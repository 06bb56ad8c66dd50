package repository

import (
	"context"

	"donatesystem/internal/model"

	"gorm.io/gorm"
)

type WebhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Create 落一条 IPN 审计记录
// 刻意不放进台账事务：处理失败时审计行也必须留下来
func (r *WebhookEventRepository) Create(ctx context.Context, event *model.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *WebhookEventRepository) GetByEventNo(ctx context.Context, eventNo string) (*model.WebhookEvent, error) {
	var event model.WebhookEvent
	err := r.db.WithContext(ctx).Where("event_no = ?", eventNo).First(&event).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *WebhookEventRepository) ListByTxnID(ctx context.Context, txnID string) ([]*model.WebhookEvent, error) {
	var events []*model.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("txn_id = ?", txnID).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}
