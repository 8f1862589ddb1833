package repository

import (
	"context"
	"errors"
	"time"

	"creditsystem/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InvitationRepository struct {
	db *gorm.DB
}

func NewInvitationRepository(db *gorm.DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// Create 注册时落一条 PENDING 邀请记录
// invitee_id 唯一索引保证一个用户只能被邀请一次
func (r *InvitationRepository) Create(ctx context.Context, invitation *model.Invitation) error {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "invitee_id"}},
			DoNothing: true,
		}).
		Create(invitation)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvitationExists
	}
	return nil
}

// GetPendingByInviteeID 查找被邀请人的待处理邀请
// 没有记录返回 nil（已处理过或根本没被邀请，都是正常情况）
func (r *InvitationRepository) GetPendingByInviteeID(ctx context.Context, tx *gorm.DB, inviteeID int64) (*model.Invitation, error) {
	if tx == nil {
		tx = r.db
	}
	var invitation model.Invitation
	err := tx.WithContext(ctx).
		Where("invitee_id = ? AND status = ?", inviteeID, model.InvitationStatusPending).
		First(&invitation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invitation, nil
}

// CountCompletedSince 统计邀请人自某时刻起已发奖的邀请数（每日上限用）
func (r *InvitationRepository) CountCompletedSince(ctx context.Context, tx *gorm.DB, inviterID int64, since time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).
		Model(&model.Invitation{}).
		Where("inviter_id = ? AND status = ? AND completed_at >= ?",
			inviterID, model.InvitationStatusCompleted, since).
		Count(&count).Error
	return count, err
}

// MarkProcessed 推进邀请状态 PENDING -> COMPLETED/IGNORED
// 带前置状态条件更新，重复处理时影响行数为 0，返回冲突错误
func (r *InvitationRepository) MarkProcessed(ctx context.Context, tx *gorm.DB, id int64, toStatus string, completedAt time.Time) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Invitation{}).
		Where("id = ? AND status = ?", id, model.InvitationStatusPending).
		Updates(map[string]interface{}{
			"status":       toStatus,
			"completed_at": completedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvitationConflict
	}
	return nil
}

// CountByInviter 邀请人名下各状态数量（推荐统计页）
func (r *InvitationRepository) CountByInviter(ctx context.Context, inviterID int64) (total, completed, ignored int64, err error) {
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&model.Invitation{}).Where("inviter_id = ?", inviterID)
	}
	if err = base().Count(&total).Error; err != nil {
		return
	}
	if err = base().Where("status = ?", model.InvitationStatusCompleted).Count(&completed).Error; err != nil {
		return
	}
	err = base().Where("status = ?", model.InvitationStatusIgnored).Count(&ignored).Error
	return
}
