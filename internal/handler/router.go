package handler

import (
	"creditsystem/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 积分相关
		credits := api.Group("/credits")
		{
			credits.GET("/balance", h.GetBalance)
			credits.GET("/transactions", h.ListTransactions)
			credits.GET("/transactions/:transaction_no", h.GetTransaction)
			credits.POST("/consume", h.Consume)
			credits.POST("/refund", h.Refund)
		}

		// 邀请相关
		invitations := api.Group("/invitations")
		{
			invitations.POST("", h.CreateInvitation)
			invitations.POST("/reward", h.ProcessInvitationReward)
			invitations.GET("/stats", h.GetInviteStats)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
