package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Donation 捐赠记录表
// 每条记录对应一笔已完成的 PayPal 交易，归属唯一一个捐赠者
//
// 【注意】PaypalID 只加普通索引，不加唯一约束：
// 退款/冲正按 parent_txn_id 反查时依赖"至多一条"的假设，
// 但 PayPal 重复投递同一 txn_id 会产生两条记录、金额翻倍。
// 这是沿用至今的台账语义，已有测试固定该行为，收紧前先对账
type Donation struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	DonatorID int64           `gorm:"index;not null" json:"donator_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	PaypalID  string          `gorm:"type:varchar(64);index;not null" json:"paypal_id"` // PayPal 交易号（txn_id）
	PaidAt    time.Time       `gorm:"index;not null" json:"paid_at"`                    // 到账时间，按时间倒序查询
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`

	Donator *Donator `gorm:"foreignKey:DonatorID" json:"-"`
}

func (Donation) TableName() string {
	return "donation"
}
