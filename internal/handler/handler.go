package handler

import (
	"errors"
	"strconv"

	"creditsystem/internal/config"
	"creditsystem/internal/model"
	"creditsystem/internal/repository"
	"creditsystem/internal/service"
	"creditsystem/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	creditService     *service.CreditService
	invitationService *service.InvitationService
	cfg               *config.Config
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	creditService := service.NewCreditService(db, cfg)
	return &Handler{
		creditService:     creditService,
		invitationService: service.NewInvitationService(db, rdb, creditService, cfg),
		cfg:               cfg,
	}
}

func parseUserID(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "user_id 参数错误")
		return 0, false
	}
	return userID, true
}

// ============================================================
// 积分相关接口
// ============================================================

// GetBalance 查询用户积分余额
// GET /api/v1/credits/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	balance, err := h.creditService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, balance)
}

// ListTransactions 分页查询积分流水
// GET /api/v1/credits/transactions?user_id=xxx&page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	pageResult, err := h.creditService.GetTransactions(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, pageResult)
}

// GetTransaction 按流水号查询单条流水
// GET /api/v1/credits/transactions/:transaction_no
func (h *Handler) GetTransaction(c *gin.Context) {
	transactionNo := c.Param("transaction_no")
	if transactionNo == "" {
		response.ParamError(c, "transaction_no 参数错误")
		return
	}

	trans, err := h.creditService.GetTransaction(c.Request.Context(), transactionNo)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	if trans == nil {
		response.Error(c, response.CodeNotFound, "流水不存在")
		return
	}

	response.Success(c, trans)
}

// ConsumeRequest 扣款请求
// amount 不传时按单次动画生成成本计费
type ConsumeRequest struct {
	UserID      int64  `json:"user_id" binding:"required"`
	Amount      int64  `json:"amount" binding:"omitempty,gt=0"`
	Description string `json:"description"`
}

// Consume 生成前预扣积分
// POST /api/v1/credits/consume
func (h *Handler) Consume(c *gin.Context) {
	var req ConsumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if req.Amount == 0 {
		req.Amount = h.cfg.Credit.AnimationCost
	}
	if req.Description == "" {
		req.Description = "生成动画讲解"
	}

	result, err := h.creditService.Consume(c.Request.Context(), req.UserID, req.Amount, req.Description)
	if err != nil {
		var insufficientErr *service.InsufficientCreditsError
		if errors.As(err, &insufficientErr) {
			response.PaymentRequired(c, gin.H{
				"error":        "insufficient_credits",
				"required":     insufficientErr.Required,
				"available":    insufficientErr.Available,
				"permanent":    insufficientErr.Permanent,
				"subscription": insufficientErr.Subscription,
			})
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, result)
}

// RefundRequest 退款请求（生成失败时由任务侧调用）
type RefundRequest struct {
	UserID      int64  `json:"user_id" binding:"required"`
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	Description string `json:"description"`
}

// Refund 生成失败退还积分
// POST /api/v1/credits/refund
//
// 【注意】每次调用独立加一笔流水，一次失败只能退一次，
// 重复调用会重复退款，幂等由调用方保证
func (h *Handler) Refund(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if req.Description == "" {
		req.Description = "动画生成失败，退还积分"
	}

	result, err := h.creditService.AddCredits(c.Request.Context(), req.UserID, req.Amount,
		model.TransactionTypeRefund, req.Description)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, result)
}

// ============================================================
// 邀请相关接口
// ============================================================

// CreateInvitationRequest 登记邀请关系请求（注册流程调用）
type CreateInvitationRequest struct {
	InviterID int64 `json:"inviter_id" binding:"required"`
	InviteeID int64 `json:"invitee_id" binding:"required"`
}

// CreateInvitation 注册时登记邀请关系
// POST /api/v1/invitations
func (h *Handler) CreateInvitation(c *gin.Context) {
	var req CreateInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	invitation, err := h.invitationService.CreateInvitation(c.Request.Context(), req.InviterID, req.InviteeID)
	if err != nil {
		if errors.Is(err, repository.ErrInvitationExists) {
			response.BusinessError(c, response.CodeInvitationExists, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, invitation)
}

// ProcessRewardRequest 邀请奖励发放请求（邮箱验证流程调用）
type ProcessRewardRequest struct {
	InviteeID int64 `json:"invitee_id" binding:"required"`
}

// ProcessInvitationReward 邮箱验证后发放邀请奖励
// POST /api/v1/invitations/reward
func (h *Handler) ProcessInvitationReward(c *gin.Context) {
	var req ProcessRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.invitationService.ProcessInvitationReward(c.Request.Context(), req.InviteeID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, result)
}

// GetInviteStats 邀请统计
// GET /api/v1/invitations/stats?user_id=xxx
func (h *Handler) GetInviteStats(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	stats, err := h.invitationService.GetInviteStats(c.Request.Context(), userID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, stats)
}
