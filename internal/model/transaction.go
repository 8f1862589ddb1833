package model

import (
	"time"
)

// ============================================================================
// 交易类型常量
// ============================================================================

const (
	TransactionTypeSignupBonus         = "SIGNUP_BONUS"          // 注册赠送
	TransactionTypeUsageAnimation      = "USAGE_ANIMATION"       // 生成动画消耗
	TransactionTypeRefund              = "REFUND"                // 生成失败退款
	TransactionTypeInviteRewardInviter = "INVITE_REWARD_INVITER" // 邀请人奖励
	TransactionTypeInviteRewardInvitee = "INVITE_REWARD_INVITEE" // 被邀请人奖励
)

// 资金来源常量（本次变动动用了哪个账户）
const (
	BalanceSourcePermanent    = "PERMANENT"    // 仅永久积分
	BalanceSourceSubscription = "SUBSCRIPTION" // 仅订阅积分
	BalanceSourceMixed        = "MIXED"        // 订阅 + 永久
)

// ============================================================================
// 积分流水实体
// ============================================================================

// CreditTransaction 积分流水表
// 记录每一笔积分变动，是对账和审计的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 每笔流水与余额变动在同一事务内写入 —— 要么都有，要么都没有
// 3. 记录变动后的双账户快照 —— 无需回放即可对账
type CreditTransaction struct {
	ID                   int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo        string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"` // 流水号（全局唯一）
	UserID               int64     `gorm:"index;not null" json:"user_id"`                               // 用户ID
	Amount               int64     `gorm:"not null" json:"amount"`                                      // 变动金额（正数获取，负数消耗）
	Type                 string    `gorm:"type:varchar(50);index;not null" json:"type"`                 // 交易类型
	BalanceSource        string    `gorm:"type:varchar(20);not null" json:"balance_source"`             // 资金来源：PERMANENT/SUBSCRIPTION/MIXED
	SnapshotPermanent    int64     `gorm:"not null" json:"snapshot_permanent"`                          // 变动后永久积分快照
	SnapshotSubscription int64     `gorm:"not null" json:"snapshot_subscription"`                       // 变动后订阅积分快照
	Description          string    `gorm:"type:varchar(256)" json:"description"`                        // 备注
	CreatedAt            time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (CreditTransaction) TableName() string {
	return "credit_transactions"
}

// SnapshotTotal 快照总余额
func (t CreditTransaction) SnapshotTotal() int64 {
	return t.SnapshotPermanent + t.SnapshotSubscription
}
