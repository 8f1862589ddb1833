package model

import (
	"time"
)

// UserWallet 用户积分钱包表（双账户模型）
//
// 永久积分：注册赠送、邀请奖励、退款 —— 永不过期
// 订阅积分：月付套餐发放 —— 按订阅周期重置（重置由订阅模块负责）
//
// 【不变式】两个余额字段任何时刻都 >= 0，
// 所有变动必须经由 CreditService 在行锁事务内完成
type UserWallet struct {
	ID                    int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID                int64      `gorm:"uniqueIndex;not null" json:"user_id"`                // 用户ID，一人一个钱包
	PermanentBalance      int64      `gorm:"not null;default:0" json:"permanent_balance"`        // 永久积分余额
	SubscriptionBalance   int64      `gorm:"not null;default:0" json:"subscription_balance"`     // 订阅积分余额
	SubscriptionExpiresAt *time.Time `gorm:"" json:"subscription_expires_at"`                    // 订阅积分过期时间（仅用于展示）
	CreatedAt             time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserWallet) TableName() string {
	return "user_wallets"
}

// TotalBalance 总余额 = 永久 + 订阅
func (w UserWallet) TotalBalance() int64 {
	return w.PermanentBalance + w.SubscriptionBalance
}
