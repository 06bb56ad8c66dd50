package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Donator 捐赠者表
// 以 64 位 SteamID 标识捐赠者，是整个捐赠台账的核心数据
//
// SteamID 允许为空：PayPal 事件里没有带 steamid 的捐赠统一挂在
// "未关联" 捐赠者下，后续无法在公开榜单中展示
type Donator struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	SteamID     *string         `gorm:"type:varchar(32);index:idx_donator_identity" json:"steam_id"` // 64位 SteamID（十进制文本），NULL 表示未关联
	Anonymous   bool            `gorm:"not null;default:false;index:idx_donator_identity" json:"anonymous"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"total_amount"` // 累计捐赠金额，始终等于名下捐赠之和
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Donator) TableName() string {
	return "donator"
}
