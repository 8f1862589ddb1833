package repository

import (
	"context"
	"time"

	"creditsystem/internal/model"

	"gorm.io/gorm"
)

// 服务层依赖下面这组接口而不是具体仓储，
// 单元测试可以用内存实现替换，不需要起 MySQL

type WalletStore interface {
	GetByUserID(ctx context.Context, userID int64) (*model.UserWallet, error)
	GetByUserIDForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.UserWallet, error)
	Create(ctx context.Context, tx *gorm.DB, wallet *model.UserWallet) (bool, error)
	UpdateBalances(ctx context.Context, tx *gorm.DB, userID, permanent, subscription int64) error
}

type TransactionStore interface {
	Create(ctx context.Context, tx *gorm.DB, trans *model.CreditTransaction) error
	ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.CreditTransaction, int64, error)
	GetByTransactionNo(ctx context.Context, transactionNo string) (*model.CreditTransaction, error)
}

type InvitationStore interface {
	Create(ctx context.Context, invitation *model.Invitation) error
	GetPendingByInviteeID(ctx context.Context, tx *gorm.DB, inviteeID int64) (*model.Invitation, error)
	CountCompletedSince(ctx context.Context, tx *gorm.DB, inviterID int64, since time.Time) (int64, error)
	MarkProcessed(ctx context.Context, tx *gorm.DB, id int64, toStatus string, completedAt time.Time) error
	CountByInviter(ctx context.Context, inviterID int64) (total, completed, ignored int64, err error)
}

type OutboxStore interface {
	Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	IncrementRetryCount(ctx context.Context, id int64) error
	MarkAsFailed(ctx context.Context, id int64) error
}

// TxManager 事务边界
// 回调内的所有写操作在同一个数据库事务中提交或回滚
type TxManager interface {
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type GormTxManager struct {
	db *gorm.DB
}

func NewGormTxManager(db *gorm.DB) *GormTxManager {
	return &GormTxManager{db: db}
}

func (m *GormTxManager) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return m.db.WithContext(ctx).Transaction(fn)
}

// 编译期校验具体仓储实现了对应接口
var (
	_ WalletStore      = (*WalletRepository)(nil)
	_ TransactionStore = (*TransactionRepository)(nil)
	_ InvitationStore  = (*InvitationRepository)(nil)
	_ OutboxStore      = (*OutboxRepository)(nil)
	_ TxManager        = (*GormTxManager)(nil)
)
