package handler

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"donatesystem/internal/config"
	"donatesystem/internal/infrastructure/gameserver"
	"donatesystem/internal/infrastructure/lock"
	"donatesystem/internal/infrastructure/paypal"
	"donatesystem/internal/infrastructure/steam"
	"donatesystem/internal/service"
	"donatesystem/pkg/errs"
	"donatesystem/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	cfg            *config.Config
	webhookService *service.WebhookService
	queryService   *service.QueryService
}

// NewHandler 创建处理器实例
// 所有外部协作方（校验器、Steam、游戏服务器查询、锁）在这里装配后注入
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	verifier := paypal.NewVerifier(&cfg.PayPal)
	steamClient := steam.NewClient(&cfg.Steam, rdb)
	querier := gameserver.NewUDPQuerier(time.Duration(cfg.GameServer.QueryTimeoutMs) * time.Millisecond)
	lockers := lock.NewRedisFactory(rdb)

	return &Handler{
		cfg:            cfg,
		webhookService: service.NewWebhookService(db, cfg, verifier, lockers),
		queryService:   service.NewQueryService(db, cfg, steamClient, querier),
	}
}

// ============================================================
// PayPal IPN 回调
// ============================================================

// PayPalIPN 接收 PayPal IPN 通知
// POST /paypal/ipn
//
// 无论内部处理成败都回空 200：PayPal 只关心"收到了"，
// 非 200 会触发它的重投递风暴。处理失败只记日志和审计
func (h *Handler) PayPalIPN(c *gin.Context) {
	rawBody, err := c.GetRawData()
	if err != nil {
		log.Printf("[IPN] 读取报文失败: %v", err)
		c.Status(http.StatusOK)
		return
	}

	log.Printf("[IPN] 收到回调: %d 字节", len(rawBody))

	if err := h.webhookService.ProcessNotification(c.Request.Context(), rawBody); err != nil {
		log.Printf("[IPN] 处理失败: %v", err)
	}

	c.Status(http.StatusOK)
}

// ============================================================
// 只读 API
// ============================================================

// RecentDonations 最近公开捐赠
// GET /api/v1/donations/recent?limit=5
func (h *Handler) RecentDonations(c *gin.Context) {
	result, err := h.queryService.RecentDonations(c.Request.Context(), h.limitParam(c))
	response.Write(c, result, err)
}

// TopDonators 捐赠榜
// GET /api/v1/donations/top?limit=5
func (h *Handler) TopDonators(c *gin.Context) {
	result, err := h.queryService.TopDonators(c.Request.Context(), h.limitParam(c))
	response.Write(c, result, err)
}

// DonatorDetail 单个捐赠者的全部捐赠
// GET /api/v1/donations/steamid/:steamid
func (h *Handler) DonatorDetail(c *gin.Context) {
	steamID := c.Param("steamid")
	if len(steamID) <= 1 {
		response.Write(c, nil, errs.New(errs.CodeUnknown, "缺少 SteamID"))
		return
	}

	result, err := h.queryService.DonatorDetail(c.Request.Context(), steamID)
	response.Write(c, result, err)
}

// ServerStatuses 游戏服务器实时状态
// POST /api/v1/servers，body 为服务器列表；空列表时查配置里的默认服务器
func (h *Handler) ServerStatuses(c *gin.Context) {
	var servers []config.GameServer
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&servers); err != nil {
			response.Write(c, nil, errs.Wrap(errs.CodeUnknown, err, "解析服务器列表失败"))
			return
		}
	}
	if len(servers) == 0 {
		servers = h.cfg.Servers
	}

	response.Write(c, h.queryService.ServerStatuses(c.Request.Context(), servers), nil)
}

func (h *Handler) limitParam(c *gin.Context) int {
	fallback := h.cfg.Business.DefaultQueryLimit
	if fallback <= 0 {
		fallback = 5
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(fallback)))
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
