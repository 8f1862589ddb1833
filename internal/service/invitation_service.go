package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"creditsystem/internal/config"
	"creditsystem/internal/infrastructure/lock"
	"creditsystem/internal/model"
	"creditsystem/internal/repository"
	"creditsystem/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// 奖励处理结果状态
const (
	RewardStatusSuccess      = "success"
	RewardStatusNoInvitation = "no_invitation"
)

// RewardResult 邀请奖励发放结果
type RewardResult struct {
	Status          string `json:"status"`
	InviteeReward   int64  `json:"invitee_reward"`   // 被邀请人获得积分
	InviterRewarded bool   `json:"inviter_rewarded"` // 邀请人是否获奖（每日上限内）
	InviterReward   int64  `json:"inviter_reward"`   // 邀请人获得积分（未获奖为0）
}

// InviteStats 邀请统计（推荐有礼页面）
type InviteStats struct {
	TotalInvited   int64 `json:"total_invited"`
	Completed      int64 `json:"completed"`
	Ignored        int64 `json:"ignored"`
	CompletedToday int64 `json:"completed_today"`
	RemainingToday int64 `json:"remaining_today"` // 今日还能获奖几次
}

// InviteLocker 邀请奖励锁
// 生产环境是 Redis 分布式锁，测试用内存实现替换
type InviteLocker interface {
	Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error
	Unlock(ctx context.Context) error
}

// InviteLockFactory 按邀请人创建锁
type InviteLockFactory func(inviterID int64) InviteLocker

// InvitationService 邀请奖励服务
//
// 邮箱验证触发 ProcessInvitationReward：
// 被邀请人奖励无条件发放，邀请人奖励受每日上限约束。
// 上限判断（查当日数 + 写状态）与钱包行锁不在一个锁域里，
// 所以按邀请人维度加分布式锁，把同一邀请人的处理串行化
type InvitationService struct {
	tx          repository.TxManager
	invitations repository.InvitationStore
	credit      *CreditService
	newLock     InviteLockFactory
	cfg         *config.Config
}

func NewInvitationService(db *gorm.DB, rdb *redis.Client, credit *CreditService, cfg *config.Config) *InvitationService {
	return &InvitationService{
		tx:          repository.NewGormTxManager(db),
		invitations: repository.NewInvitationRepository(db),
		credit:      credit,
		newLock: func(inviterID int64) InviteLocker {
			return lock.NewInviteLock(rdb, inviterID, idgen.GenerateInviteTicket())
		},
		cfg: cfg,
	}
}

// CreateInvitation 注册时登记邀请关系（状态 PENDING）
// 一个用户只能被邀请一次，重复登记返回 ErrInvitationExists
func (s *InvitationService) CreateInvitation(ctx context.Context, inviterID, inviteeID int64) (*model.Invitation, error) {
	if inviterID == inviteeID {
		return nil, errors.New("不能邀请自己")
	}

	invitation := &model.Invitation{
		InviterID: inviterID,
		InviteeID: inviteeID,
		Status:    model.InvitationStatusPending,
	}
	if err := s.invitations.Create(ctx, invitation); err != nil {
		return nil, err
	}
	return invitation, nil
}

// ProcessInvitationReward 处理邀请奖励（邮箱验证触发）
//
// 幂等性：首次处理后状态不再是 PENDING，重复调用查不到待处理记录，
// 返回 no_invitation 空操作
func (s *InvitationService) ProcessInvitationReward(ctx context.Context, inviteeID int64) (*RewardResult, error) {
	// 1. 先无锁查一次，绝大多数请求（没被邀请/已处理）在这里就返回了
	invitation, err := s.invitations.GetPendingByInviteeID(ctx, nil, inviteeID)
	if err != nil {
		return nil, fmt.Errorf("查询邀请记录失败: %w", err)
	}
	if invitation == nil {
		return &RewardResult{Status: RewardStatusNoInvitation}, nil
	}

	// 2. 按邀请人加分布式锁
	// 同一邀请人名下多个被邀请人同时验证时，上限统计必须串行，
	// 否则临界点上两个请求都读到 4，上限 5 会被突破
	inviteLock := s.newLock(invitation.InviterID)
	if err := inviteLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer inviteLock.Unlock(ctx)

	var result *RewardResult
	err = s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		// 拿到锁后重查，挡掉并发的重复验证请求
		invitation, err = s.invitations.GetPendingByInviteeID(ctx, tx, inviteeID)
		if err != nil {
			return fmt.Errorf("查询邀请记录失败: %w", err)
		}
		if invitation == nil {
			result = &RewardResult{Status: RewardStatusNoInvitation}
			return nil
		}

		// 3. 被邀请人奖励无条件发放（验证邮箱是真实动作，与上限无关）
		inviteeReward := s.cfg.Credit.InviteRewardInvitee
		if _, err := s.credit.addCreditsTx(ctx, tx, inviteeID, inviteeReward,
			model.TransactionTypeInviteRewardInvitee, "被邀请人奖励"); err != nil {
			return fmt.Errorf("发放被邀请人奖励失败: %w", err)
		}

		// 4. 统计邀请人今日已获奖次数（UTC 自然日窗口）
		todayStart := time.Now().UTC().Truncate(24 * time.Hour)
		todayCount, err := s.invitations.CountCompletedSince(ctx, tx, invitation.InviterID, todayStart)
		if err != nil {
			return fmt.Errorf("统计邀请数失败: %w", err)
		}

		// 5. 上限内发邀请人奖励并置 COMPLETED，否则置 IGNORED 不发
		inviterRewarded := false
		toStatus := model.InvitationStatusIgnored
		if todayCount < int64(s.cfg.Credit.DailyInviteCap) {
			if _, err := s.credit.addCreditsTx(ctx, tx, invitation.InviterID, s.cfg.Credit.InviteRewardInviter,
				model.TransactionTypeInviteRewardInviter,
				fmt.Sprintf("邀请用户 ID: %d", inviteeID)); err != nil {
				return fmt.Errorf("发放邀请人奖励失败: %w", err)
			}
			toStatus = model.InvitationStatusCompleted
			inviterRewarded = true
		}

		// 6. 状态推进与发奖同事务提交
		if err := s.invitations.MarkProcessed(ctx, tx, invitation.ID, toStatus, time.Now().UTC()); err != nil {
			return fmt.Errorf("更新邀请状态失败: %w", err)
		}

		inviterReward := int64(0)
		if inviterRewarded {
			inviterReward = s.cfg.Credit.InviteRewardInviter
		}
		result = &RewardResult{
			Status:          RewardStatusSuccess,
			InviteeReward:   inviteeReward,
			InviterRewarded: inviterRewarded,
			InviterReward:   inviterReward,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetInviteStats 邀请统计
func (s *InvitationService) GetInviteStats(ctx context.Context, inviterID int64) (*InviteStats, error) {
	total, completed, ignored, err := s.invitations.CountByInviter(ctx, inviterID)
	if err != nil {
		return nil, fmt.Errorf("统计邀请记录失败: %w", err)
	}

	todayStart := time.Now().UTC().Truncate(24 * time.Hour)
	completedToday, err := s.invitations.CountCompletedSince(ctx, nil, inviterID, todayStart)
	if err != nil {
		return nil, fmt.Errorf("统计邀请记录失败: %w", err)
	}

	remaining := int64(s.cfg.Credit.DailyInviteCap) - completedToday
	if remaining < 0 {
		remaining = 0
	}

	return &InviteStats{
		TotalInvited:   total,
		Completed:      completed,
		Ignored:        ignored,
		CompletedToday: completedToday,
		RemainingToday: remaining,
	}, nil
}
