package model

import (
	"time"
)

// 邀请状态常量
//
// 状态流转（只允许单向，COMPLETED/IGNORED 为终态）：
//
//	PENDING   注册成功但未验证邮箱
//	COMPLETED 验证邮箱，邀请人奖励已发放
//	IGNORED   验证邮箱，但邀请人当日已达上限，不发奖励
const (
	InvitationStatusPending   = "PENDING"
	InvitationStatusCompleted = "COMPLETED"
	InvitationStatusIgnored   = "IGNORED"
)

// Invitation 邀请记录表
// 注册时由注册流程创建，邮箱验证时由奖励流程推进状态
//
// 防刷机制：一个用户只能被邀请一次（invitee_id 唯一），
// 邀请人每日获奖上限由 InvitationService 按 UTC 自然日统计
type Invitation struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	InviterID   int64      `gorm:"index:idx_invitation_inviter_status;not null" json:"inviter_id"` // 邀请人ID
	InviteeID   int64      `gorm:"uniqueIndex;not null" json:"invitee_id"`                         // 被邀请人ID
	Status      string     `gorm:"type:varchar(20);index:idx_invitation_inviter_status;not null;default:PENDING" json:"status"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"` // 注册时间
	CompletedAt *time.Time `gorm:"index" json:"completed_at"`              // 邮箱验证时间
}

func (Invitation) TableName() string {
	return "invitations"
}
