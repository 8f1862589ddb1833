package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"creditsystem/internal/config"
	"creditsystem/internal/model"
	"creditsystem/internal/repository"
	"creditsystem/pkg/idgen"

	"gorm.io/gorm"
)

// InsufficientCreditsError 积分不足
// 业务规则错误，不重试，由调用方决定是否放弃上层操作
type InsufficientCreditsError struct {
	Required     int64 `json:"required"`     // 本次需要
	Available    int64 `json:"available"`    // 当前总余额
	Permanent    int64 `json:"permanent"`    // 永久积分余额
	Subscription int64 `json:"subscription"` // 订阅积分余额
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("积分不足: 需要 %d, 可用 %d", e.Required, e.Available)
}

// BalanceDetail 双账户余额明细
type BalanceDetail struct {
	Permanent    int64 `json:"permanent"`
	Subscription int64 `json:"subscription"`
	Total        int64 `json:"total"`
}

// ConsumeResult 扣款结果
type ConsumeResult struct {
	TransactionNo string        `json:"transaction_no"`
	Deducted      BalanceDetail `json:"deducted"`       // 各账户实际扣除数
	BalanceSource string        `json:"balance_source"` // PERMANENT/SUBSCRIPTION/MIXED
	Remaining     BalanceDetail `json:"remaining"`      // 扣除后余额
}

// AddResult 加款结果
type AddResult struct {
	TransactionNo string        `json:"transaction_no"`
	Added         int64         `json:"added"`
	Remaining     BalanceDetail `json:"remaining"`
}

// BalanceView 余额视图（只读，不加锁）
type BalanceView struct {
	PermanentBalance      int64      `json:"permanent_balance"`
	SubscriptionBalance   int64      `json:"subscription_balance"`
	TotalBalance          int64      `json:"total_balance"`
	CanGenerate           int64      `json:"can_generate"` // 还能生成多少次动画
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at"`
}

// TransactionPage 流水分页
type TransactionPage struct {
	Transactions []*model.CreditTransaction `json:"transactions"`
	Total        int64                      `json:"total"`
	Page         int                        `json:"page"`
	PageSize     int                        `json:"page_size"`
}

// CreditService 积分服务（双账户钱包 + 流水）
//
// 所有余额变动走同一条路径：行锁读钱包 -> 改余额 -> 写流水 -> 写事件，
// 四步在一个数据库事务内提交，任何一步失败整体回滚
type CreditService struct {
	tx           repository.TxManager
	wallets      repository.WalletStore
	transactions repository.TransactionStore
	outbox       repository.OutboxStore
	cfg          *config.Config
}

func NewCreditService(db *gorm.DB, cfg *config.Config) *CreditService {
	return &CreditService{
		tx:           repository.NewGormTxManager(db),
		wallets:      repository.NewWalletRepository(db),
		transactions: repository.NewTransactionRepository(db),
		outbox:       repository.NewOutboxRepository(db),
		cfg:          cfg,
	}
}

// GetOrCreateWallet 获取用户钱包，没有则创建（注册赠送永久积分）
// 钱包行与注册赠送流水在同一事务内写入
func (s *CreditService) GetOrCreateWallet(ctx context.Context, userID int64) (*model.UserWallet, error) {
	wallet, err := s.wallets.GetByUserID(ctx, userID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, repository.ErrWalletNotFound) {
		return nil, err
	}

	err = s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		w, _, createErr := s.createWalletTx(ctx, tx, userID)
		if createErr != nil {
			return createErr
		}
		wallet = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

// createWalletTx 在事务内创建钱包
//
// user_id 唯一索引 + ON CONFLICT DO NOTHING 处理并发创建：
// 只有真正插入成功的一方记注册赠送流水，输掉竞争的一方重新读取，
// 保证注册奖励不会发两次
func (s *CreditService) createWalletTx(ctx context.Context, tx *gorm.DB, userID int64) (*model.UserWallet, bool, error) {
	wallet := &model.UserWallet{
		UserID:              userID,
		PermanentBalance:    s.cfg.Credit.SignupBonus,
		SubscriptionBalance: 0,
	}

	created, err := s.wallets.Create(ctx, tx, wallet)
	if err != nil {
		return nil, false, fmt.Errorf("创建钱包失败: %w", err)
	}

	if !created {
		// 并发创建被抢先，加锁读已有的行
		existing, err := s.wallets.GetByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	trans := &model.CreditTransaction{
		TransactionNo:        idgen.GenerateTransactionNo(),
		UserID:               userID,
		Amount:               s.cfg.Credit.SignupBonus,
		Type:                 model.TransactionTypeSignupBonus,
		BalanceSource:        model.BalanceSourcePermanent,
		SnapshotPermanent:    wallet.PermanentBalance,
		SnapshotSubscription: wallet.SubscriptionBalance,
		Description:          "注册赠送积分",
	}
	if err := s.transactions.Create(ctx, tx, trans); err != nil {
		return nil, false, fmt.Errorf("记录流水失败: %w", err)
	}
	if err := s.writeCreditEvent(ctx, tx, trans); err != nil {
		return nil, false, err
	}

	return wallet, true, nil
}

// Consume 扣除用户积分（优先扣订阅积分）
//
// 【并发安全】行锁在事务提交前不释放，同一用户的并发扣款被串行化，
// 两个请求不可能基于同一份余额都扣成功
func (s *CreditService) Consume(ctx context.Context, userID, amount int64, description string) (*ConsumeResult, error) {
	if amount <= 0 {
		return nil, errors.New("消耗积分数量必须大于0")
	}

	var result *ConsumeResult
	err := s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		// 1. 加行锁读钱包，没有则现场创建（含注册赠送）
		wallet, err := s.wallets.GetByUserIDForUpdate(ctx, tx, userID)
		if errors.Is(err, repository.ErrWalletNotFound) {
			wallet, _, err = s.createWalletTx(ctx, tx, userID)
		}
		if err != nil {
			return err
		}

		// 2. 检查总余额，不足直接失败，不产生任何变动
		total := wallet.TotalBalance()
		if total < amount {
			return &InsufficientCreditsError{
				Required:     amount,
				Available:    total,
				Permanent:    wallet.PermanentBalance,
				Subscription: wallet.SubscriptionBalance,
			}
		}

		// 3. 订阅积分到期作废，先扣订阅，不够的部分再扣永久
		deductSubscription := wallet.SubscriptionBalance
		if deductSubscription > amount {
			deductSubscription = amount
		}
		deductPermanent := amount - deductSubscription

		wallet.SubscriptionBalance -= deductSubscription
		wallet.PermanentBalance -= deductPermanent

		var balanceSource string
		switch {
		case deductSubscription > 0 && deductPermanent > 0:
			balanceSource = model.BalanceSourceMixed
		case deductSubscription > 0:
			balanceSource = model.BalanceSourceSubscription
		default:
			balanceSource = model.BalanceSourcePermanent
		}

		if err := s.wallets.UpdateBalances(ctx, tx, userID, wallet.PermanentBalance, wallet.SubscriptionBalance); err != nil {
			return fmt.Errorf("扣款失败: %w", err)
		}

		// 4. 流水与余额变更同事务落库
		trans := &model.CreditTransaction{
			TransactionNo:        idgen.GenerateTransactionNo(),
			UserID:               userID,
			Amount:               -amount,
			Type:                 model.TransactionTypeUsageAnimation,
			BalanceSource:        balanceSource,
			SnapshotPermanent:    wallet.PermanentBalance,
			SnapshotSubscription: wallet.SubscriptionBalance,
			Description:          description,
		}
		if err := s.transactions.Create(ctx, tx, trans); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}
		if err := s.writeCreditEvent(ctx, tx, trans); err != nil {
			return err
		}

		result = &ConsumeResult{
			TransactionNo: trans.TransactionNo,
			Deducted: BalanceDetail{
				Permanent:    deductPermanent,
				Subscription: deductSubscription,
				Total:        amount,
			},
			BalanceSource: balanceSource,
			Remaining: BalanceDetail{
				Permanent:    wallet.PermanentBalance,
				Subscription: wallet.SubscriptionBalance,
				Total:        wallet.TotalBalance(),
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AddCredits 增加用户积分（退款、邀请奖励等）
// 加款一律进永久账户：退的钱和奖励不应该过期
func (s *CreditService) AddCredits(ctx context.Context, userID, amount int64, transactionType, description string) (*AddResult, error) {
	if amount <= 0 {
		return nil, errors.New("增加积分数量必须大于0")
	}

	var result *AddResult
	err := s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.addCreditsTx(ctx, tx, userID, amount, transactionType, description)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// addCreditsTx 事务内加款，邀请奖励流程复用（与状态推进共事务）
func (s *CreditService) addCreditsTx(ctx context.Context, tx *gorm.DB, userID, amount int64, transactionType, description string) (*AddResult, error) {
	wallet, err := s.wallets.GetByUserIDForUpdate(ctx, tx, userID)
	if errors.Is(err, repository.ErrWalletNotFound) {
		wallet, _, err = s.createWalletTx(ctx, tx, userID)
	}
	if err != nil {
		return nil, err
	}

	wallet.PermanentBalance += amount

	if err := s.wallets.UpdateBalances(ctx, tx, userID, wallet.PermanentBalance, wallet.SubscriptionBalance); err != nil {
		return nil, fmt.Errorf("加款失败: %w", err)
	}

	trans := &model.CreditTransaction{
		TransactionNo:        idgen.GenerateTransactionNo(),
		UserID:               userID,
		Amount:               amount,
		Type:                 transactionType,
		BalanceSource:        model.BalanceSourcePermanent,
		SnapshotPermanent:    wallet.PermanentBalance,
		SnapshotSubscription: wallet.SubscriptionBalance,
		Description:          description,
	}
	if err := s.transactions.Create(ctx, tx, trans); err != nil {
		return nil, fmt.Errorf("记录流水失败: %w", err)
	}
	if err := s.writeCreditEvent(ctx, tx, trans); err != nil {
		return nil, err
	}

	return &AddResult{
		TransactionNo: trans.TransactionNo,
		Added:         amount,
		Remaining: BalanceDetail{
			Permanent:    wallet.PermanentBalance,
			Subscription: wallet.SubscriptionBalance,
			Total:        wallet.TotalBalance(),
		},
	}, nil
}

// GetBalance 查询余额（时点读，不加锁）
func (s *CreditService) GetBalance(ctx context.Context, userID int64) (*BalanceView, error) {
	wallet, err := s.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	total := wallet.TotalBalance()
	return &BalanceView{
		PermanentBalance:      wallet.PermanentBalance,
		SubscriptionBalance:   wallet.SubscriptionBalance,
		TotalBalance:          total,
		CanGenerate:           total / s.cfg.Credit.AnimationCost,
		SubscriptionExpiresAt: wallet.SubscriptionExpiresAt,
	}, nil
}

// GetTransactions 分页查询积分流水（按时间倒序）
func (s *CreditService) GetTransactions(ctx context.Context, userID int64, page, pageSize int) (*TransactionPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	transactions, total, err := s.transactions.ListByUserID(ctx, userID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("查询流水失败: %w", err)
	}

	return &TransactionPage{
		Transactions: transactions,
		Total:        total,
		Page:         page,
		PageSize:     pageSize,
	}, nil
}

// GetTransaction 按流水号查询单条流水（客服对账用），不存在返回 nil
func (s *CreditService) GetTransaction(ctx context.Context, transactionNo string) (*model.CreditTransaction, error) {
	trans, err := s.transactions.GetByTransactionNo(ctx, transactionNo)
	if err != nil {
		return nil, fmt.Errorf("查询流水失败: %w", err)
	}
	return trans, nil
}

// writeCreditEvent 积分变动事件入本地消息表，随事务一起提交
func (s *CreditService) writeCreditEvent(ctx context.Context, tx *gorm.DB, trans *model.CreditTransaction) error {
	payload := map[string]interface{}{
		"transaction_no":        trans.TransactionNo,
		"user_id":               trans.UserID,
		"amount":                trans.Amount,
		"type":                  trans.Type,
		"balance_source":        trans.BalanceSource,
		"snapshot_permanent":    trans.SnapshotPermanent,
		"snapshot_subscription": trans.SnapshotSubscription,
		"occurred_at":           time.Now().Format(time.RFC3339),
	}
	payloadBytes, _ := json.Marshal(payload)

	msg := &model.OutboxMessage{
		MessageKey: trans.TransactionNo,
		Topic:      s.cfg.Kafka.Topic.CreditEvents,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outbox.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}
