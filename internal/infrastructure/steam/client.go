package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"donatesystem/internal/config"
	"donatesystem/pkg/errs"

	"github.com/go-redis/redis/v8"
)

const defaultBaseURL = "http://api.steampowered.com"

// PlayerSummary Steam 个人资料摘要
type PlayerSummary struct {
	SteamID     string `json:"steamid"`
	PersonaName string `json:"personaname"`
	ProfileURL  string `json:"profileurl"`
	Avatar      string `json:"avatar"`
	AvatarFull  string `json:"avatarfull"`
}

// Client Steam Web API 客户端
// 资料查询按批次进行（一次请求带全部 SteamID），结果在 Redis 里缓存一段
// 时间，避免榜单页每次刷新都打一遍 Steam
type Client struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client

	cache    *redis.Client // 可为 nil（测试或未部署 Redis 时直连）
	cacheTTL time.Duration
}

func NewClient(cfg *config.SteamConfig, cache *redis.Client) *Client {
	timeout := time.Duration(cfg.RequestTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ttl := time.Duration(cfg.ProfileCacheSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Client{
		APIKey:     cfg.APIKey,
		BaseURL:    defaultBaseURL,
		HTTPClient: &http.Client{Timeout: timeout},
		cache:      cache,
		cacheTTL:   ttl,
	}
}

// GetPlayerSummaries 批量查询 Steam 资料
// 返回 steamID -> 资料 的映射；Steam 没有返回的 ID 会从结果里缺席并打日志，
// 不会让整批查询失败（个别注销/封禁账号不应拖垮公开捐赠榜）
func (c *Client) GetPlayerSummaries(ctx context.Context, steamIDs []string) (map[string]PlayerSummary, error) {
	result := make(map[string]PlayerSummary, len(steamIDs))
	if len(steamIDs) == 0 {
		return result, nil
	}

	missing := c.loadCached(ctx, steamIDs, result)
	if len(missing) == 0 {
		return result, nil
	}

	summaries, err := c.fetch(ctx, missing)
	if err != nil {
		return nil, err
	}

	for _, s := range summaries {
		result[s.SteamID] = s
		c.storeCached(ctx, s)
	}

	for _, id := range missing {
		if _, ok := result[id]; !ok {
			log.Printf("[Steam] 资料缺失: steamID=%s", id)
		}
	}

	return result, nil
}

func (c *Client) fetch(ctx context.Context, steamIDs []string) ([]PlayerSummary, error) {
	endpoint := fmt.Sprintf("%s/ISteamUser/GetPlayerSummaries/v0002/?%s",
		c.BaseURL,
		url.Values{
			"key":      {c.APIKey},
			"steamids": {strings.Join(steamIDs, ",")},
		}.Encode(),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.CodeUnknown, err, "请求 Steam 资料失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.CodeUnknown, "Steam 资料接口返回 %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Response struct {
			Players []PlayerSummary `json:"players"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errs.Wrap(errs.CodeUnknown, err, "解析 Steam 资料响应失败")
	}

	return parsed.Response.Players, nil
}

func (c *Client) cacheKey(steamID string) string {
	return "steam:profile:" + steamID
}

// loadCached 把缓存命中的资料填进 result，返回仍需远程查询的 ID
func (c *Client) loadCached(ctx context.Context, steamIDs []string, result map[string]PlayerSummary) []string {
	if c.cache == nil {
		return steamIDs
	}

	missing := make([]string, 0, len(steamIDs))
	for _, id := range steamIDs {
		raw, err := c.cache.Get(ctx, c.cacheKey(id)).Result()
		if err != nil {
			missing = append(missing, id)
			continue
		}
		var s PlayerSummary
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			missing = append(missing, id)
			continue
		}
		result[id] = s
	}
	return missing
}

func (c *Client) storeCached(ctx context.Context, s PlayerSummary) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, c.cacheKey(s.SteamID), raw, c.cacheTTL).Err(); err != nil {
		log.Printf("[Steam] 写资料缓存失败: steamID=%s, err=%v", s.SteamID, err)
	}
}
