package model

import (
	"time"
)

const (
	WebhookResultProcessed = "PROCESSED"
	WebhookResultIgnored   = "IGNORED"
	WebhookResultFailed    = "FAILED"
)

// WebhookEvent IPN 事件审计表
// 每个入站通知落一条记录（含 canceled_reversal 和无法识别的状态），
// 保存原始报文便于事后对账和排查
type WebhookEvent struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventNo       string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"event_no"`
	TxnID         string    `gorm:"type:varchar(64);index" json:"txn_id"`
	PaymentStatus string    `gorm:"type:varchar(32);index;not null" json:"payment_status"`
	Payload       string    `gorm:"type:text;not null" json:"payload"` // 原始 form 报文
	Result        string    `gorm:"type:varchar(20);index;not null" json:"result"`
	Error         string    `gorm:"type:varchar(512)" json:"error"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_event"
}
