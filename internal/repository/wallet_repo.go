package repository

import (
	"context"
	"errors"

	"creditsystem/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrWalletNotFound     = errors.New("钱包不存在")
	ErrInvitationExists   = errors.New("该用户已有邀请记录")
	ErrInvitationConflict = errors.New("邀请状态已变更")
)

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) GetByUserID(ctx context.Context, userID int64) (*model.UserWallet, error) {
	var wallet model.UserWallet
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// GetByUserIDForUpdate 加行锁读取钱包
//
// 【关键点】SELECT ... FOR UPDATE 把同一用户的并发扣款串行化：
// 锁在事务提交时才释放，后来者读到的一定是前者提交后的余额
func (r *WalletRepository) GetByUserIDForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.UserWallet, error) {
	if tx == nil {
		tx = r.db
	}
	var wallet model.UserWallet
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// Create 创建钱包
// user_id 上有唯一索引，并发创建时用 ON CONFLICT DO NOTHING 吞掉冲突，
// 返回值告知本次插入是否真的建了行（决定要不要记注册赠送流水）
func (r *WalletRepository) Create(ctx context.Context, tx *gorm.DB, wallet *model.UserWallet) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(wallet)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdateBalances 回写双账户余额
// 只允许在持有行锁的事务内调用，余额由服务层算好后整体覆盖
func (r *WalletRepository) UpdateBalances(ctx context.Context, tx *gorm.DB, userID, permanent, subscription int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.UserWallet{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"permanent_balance":    permanent,
			"subscription_balance": subscription,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}
