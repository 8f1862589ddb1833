package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"creditsystem/internal/config"
	"creditsystem/internal/model"
	"creditsystem/internal/repository"

	"gorm.io/gorm"
)

// fakeTx 占位事务句柄
// 各 fake 方法用 tx 是否为 nil 区分"事务内调用"（全局锁已持有）
// 和"事务外调用"（需要自己加锁）
var fakeTx = &gorm.DB{}

// fakeStore 内存版存储状态
//
// 并发模型：Transaction 持有全局互斥锁直到回调返回，
// 对应真实实现里"行锁到事务提交才释放"的串行化效果；
// 回调出错时恢复快照，模拟事务回滚
type fakeStore struct {
	mu           sync.Mutex
	wallets      map[int64]model.UserWallet
	transactions []model.CreditTransaction
	invitations  []model.Invitation
	outbox       []model.OutboxMessage
	nextID       int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{wallets: make(map[int64]model.UserWallet)}
}

func (f *fakeStore) lockIfOutsideTx(tx *gorm.DB) func() {
	if tx == nil {
		f.mu.Lock()
		return f.mu.Unlock
	}
	return func() {}
}

func (f *fakeStore) genID() int64 {
	f.nextID++
	return f.nextID
}

type storeSnapshot struct {
	wallets      map[int64]model.UserWallet
	transactions []model.CreditTransaction
	invitations  []model.Invitation
	outbox       []model.OutboxMessage
	nextID       int64
}

func (f *fakeStore) snapshot() storeSnapshot {
	wallets := make(map[int64]model.UserWallet, len(f.wallets))
	for k, v := range f.wallets {
		wallets[k] = v
	}
	return storeSnapshot{
		wallets:      wallets,
		transactions: append([]model.CreditTransaction(nil), f.transactions...),
		invitations:  append([]model.Invitation(nil), f.invitations...),
		outbox:       append([]model.OutboxMessage(nil), f.outbox...),
		nextID:       f.nextID,
	}
}

func (f *fakeStore) restore(s storeSnapshot) {
	f.wallets = s.wallets
	f.transactions = s.transactions
	f.invitations = s.invitations
	f.outbox = s.outbox
	f.nextID = s.nextID
}

// Transaction 实现 repository.TxManager
func (f *fakeStore) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := f.snapshot()
	if err := fn(fakeTx); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

// ---- repository.WalletStore ----

type fakeWallets struct{ *fakeStore }

func (f fakeWallets) GetByUserID(ctx context.Context, userID int64) (*model.UserWallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.wallets[userID]
	if !ok {
		return nil, repository.ErrWalletNotFound
	}
	return &w, nil
}

func (f fakeWallets) GetByUserIDForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.UserWallet, error) {
	defer f.lockIfOutsideTx(tx)()
	w, ok := f.wallets[userID]
	if !ok {
		return nil, repository.ErrWalletNotFound
	}
	return &w, nil
}

func (f fakeWallets) Create(ctx context.Context, tx *gorm.DB, wallet *model.UserWallet) (bool, error) {
	defer f.lockIfOutsideTx(tx)()
	if _, ok := f.wallets[wallet.UserID]; ok {
		return false, nil
	}
	wallet.ID = f.genID()
	wallet.CreatedAt = time.Now()
	wallet.UpdatedAt = wallet.CreatedAt
	f.wallets[wallet.UserID] = *wallet
	return true, nil
}

func (f fakeWallets) UpdateBalances(ctx context.Context, tx *gorm.DB, userID, permanent, subscription int64) error {
	defer f.lockIfOutsideTx(tx)()
	w, ok := f.wallets[userID]
	if !ok {
		return repository.ErrWalletNotFound
	}
	w.PermanentBalance = permanent
	w.SubscriptionBalance = subscription
	w.UpdatedAt = time.Now()
	f.wallets[userID] = w
	return nil
}

// ---- repository.TransactionStore ----

type fakeTransactions struct{ *fakeStore }

func (f fakeTransactions) Create(ctx context.Context, tx *gorm.DB, trans *model.CreditTransaction) error {
	defer f.lockIfOutsideTx(tx)()
	trans.ID = f.genID()
	trans.CreatedAt = time.Now()
	f.transactions = append(f.transactions, *trans)
	return nil
}

func (f fakeTransactions) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.CreditTransaction, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []model.CreditTransaction
	for _, t := range f.transactions {
		if t.UserID == userID {
			matched = append(matched, t)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}

	result := make([]*model.CreditTransaction, 0, end-start)
	for i := start; i < end; i++ {
		t := matched[i]
		result = append(result, &t)
	}
	return result, total, nil
}

func (f fakeTransactions) GetByTransactionNo(ctx context.Context, transactionNo string) (*model.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.transactions {
		if t.TransactionNo == transactionNo {
			found := t
			return &found, nil
		}
	}
	return nil, nil
}

// ---- repository.InvitationStore ----

type fakeInvitations struct{ *fakeStore }

func (f fakeInvitations) Create(ctx context.Context, invitation *model.Invitation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invitations {
		if inv.InviteeID == invitation.InviteeID {
			return repository.ErrInvitationExists
		}
	}
	invitation.ID = f.genID()
	invitation.CreatedAt = time.Now()
	f.invitations = append(f.invitations, *invitation)
	return nil
}

func (f fakeInvitations) GetPendingByInviteeID(ctx context.Context, tx *gorm.DB, inviteeID int64) (*model.Invitation, error) {
	defer f.lockIfOutsideTx(tx)()
	for _, inv := range f.invitations {
		if inv.InviteeID == inviteeID && inv.Status == model.InvitationStatusPending {
			found := inv
			return &found, nil
		}
	}
	return nil, nil
}

func (f fakeInvitations) CountCompletedSince(ctx context.Context, tx *gorm.DB, inviterID int64, since time.Time) (int64, error) {
	defer f.lockIfOutsideTx(tx)()
	var count int64
	for _, inv := range f.invitations {
		if inv.InviterID == inviterID &&
			inv.Status == model.InvitationStatusCompleted &&
			inv.CompletedAt != nil && !inv.CompletedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f fakeInvitations) MarkProcessed(ctx context.Context, tx *gorm.DB, id int64, toStatus string, completedAt time.Time) error {
	defer f.lockIfOutsideTx(tx)()
	for i := range f.invitations {
		if f.invitations[i].ID == id && f.invitations[i].Status == model.InvitationStatusPending {
			f.invitations[i].Status = toStatus
			t := completedAt
			f.invitations[i].CompletedAt = &t
			return nil
		}
	}
	return repository.ErrInvitationConflict
}

func (f fakeInvitations) CountByInviter(ctx context.Context, inviterID int64) (total, completed, ignored int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invitations {
		if inv.InviterID != inviterID {
			continue
		}
		total++
		switch inv.Status {
		case model.InvitationStatusCompleted:
			completed++
		case model.InvitationStatusIgnored:
			ignored++
		}
	}
	return
}

// ---- repository.OutboxStore ----

type fakeOutbox struct{ *fakeStore }

func (f fakeOutbox) Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error {
	defer f.lockIfOutsideTx(tx)()
	msg.ID = f.genID()
	msg.CreatedAt = time.Now()
	f.outbox = append(f.outbox, *msg)
	return nil
}

func (f fakeOutbox) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*model.OutboxMessage
	for _, msg := range f.outbox {
		if msg.Status == model.OutboxStatusPending {
			m := msg
			result = append(result, &m)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (f fakeOutbox) UpdateStatus(ctx context.Context, id int64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.outbox {
		if f.outbox[i].ID == id {
			f.outbox[i].Status = status
			return nil
		}
	}
	return nil
}

func (f fakeOutbox) IncrementRetryCount(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.outbox {
		if f.outbox[i].ID == id {
			f.outbox[i].RetryCount++
			return nil
		}
	}
	return nil
}

func (f fakeOutbox) MarkAsFailed(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.outbox {
		if f.outbox[i].ID == id {
			f.outbox[i].Status = model.OutboxStatusFailed
			f.outbox[i].RetryCount++
			return nil
		}
	}
	return nil
}

// 编译期校验 fake 覆盖了全部接口
var (
	_ repository.TxManager        = (*fakeStore)(nil)
	_ repository.WalletStore      = fakeWallets{}
	_ repository.TransactionStore = fakeTransactions{}
	_ repository.InvitationStore  = fakeInvitations{}
	_ repository.OutboxStore      = fakeOutbox{}
)

// ---- 测试辅助 ----

func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{CreditEvents: "credit_events"},
		},
		Credit: config.CreditConfig{
			SignupBonus:         500,
			AnimationCost:       100,
			InviteRewardInviter: 500,
			InviteRewardInvitee: 100,
			DailyInviteCap:      5,
			MaxRetryCount:       5,
		},
	}
}

func newTestCreditService(f *fakeStore, cfg *config.Config) *CreditService {
	return &CreditService{
		tx:           f,
		wallets:      fakeWallets{f},
		transactions: fakeTransactions{f},
		outbox:       fakeOutbox{f},
		cfg:          cfg,
	}
}

type noopLock struct{}

func (noopLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	return nil
}

func (noopLock) Unlock(ctx context.Context) error { return nil }

func newTestInvitationService(f *fakeStore, credit *CreditService, cfg *config.Config) *InvitationService {
	return &InvitationService{
		tx:          f,
		invitations: fakeInvitations{f},
		credit:      credit,
		newLock:     func(inviterID int64) InviteLocker { return noopLock{} },
		cfg:         cfg,
	}
}

// seedWallet 直接落一个钱包行，绕开注册赠送逻辑
func (f *fakeStore) seedWallet(userID, permanent, subscription int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wallets[userID] = model.UserWallet{
		ID:                  f.genID(),
		UserID:              userID,
		PermanentBalance:    permanent,
		SubscriptionBalance: subscription,
		CreatedAt:           time.Now(),
		UpdatedAt:           time.Now(),
	}
}

// seedInvitation 直接落一条邀请记录
func (f *fakeStore) seedInvitation(inviterID, inviteeID int64, status string, completedAt *time.Time) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv := model.Invitation{
		ID:          f.genID(),
		InviterID:   inviterID,
		InviteeID:   inviteeID,
		Status:      status,
		CreatedAt:   time.Now(),
		CompletedAt: completedAt,
	}
	f.invitations = append(f.invitations, inv)
	return inv.ID
}

func (f *fakeStore) transactionsFor(userID int64) []model.CreditTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []model.CreditTransaction
	for _, t := range f.transactions {
		if t.UserID == userID {
			result = append(result, t)
		}
	}
	return result
}

func (f *fakeStore) walletOf(userID int64) model.UserWallet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wallets[userID]
}

func (f *fakeStore) invitationByID(id int64) model.Invitation {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invitations {
		if inv.ID == id {
			return inv
		}
	}
	return model.Invitation{}
}
