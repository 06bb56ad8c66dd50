package handler

import (
	"path/filepath"

	"donatesystem/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(db, rdb, cfg)

	// PayPal IPN 回调（表单编码，永远回空 200）
	r.POST("/paypal/ipn", h.PayPalIPN)

	// 只读 API
	api := r.Group("/api/v1")
	{
		donations := api.Group("/donations")
		{
			donations.GET("/recent", h.RecentDonations)
			donations.GET("/top", h.TopDonators)
			donations.GET("/steamid/:steamid", h.DonatorDetail)
		}

		api.POST("/servers", h.ServerStatuses)
	}

	// 捐赠页静态资源
	if cfg.Server.StaticDir != "" {
		r.Static("/static", cfg.Server.StaticDir)
		r.StaticFile("/", filepath.Join(cfg.Server.StaticDir, "html", "index.html"))
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
