package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"donatesystem/internal/config"
	"donatesystem/internal/infrastructure/gameserver"
	"donatesystem/internal/infrastructure/steam"
	"donatesystem/internal/repository"

	"gorm.io/gorm"
)

// QueryService 只读聚合层：台账查询 + Steam 资料 / 游戏服务器实时数据拼装
type QueryService struct {
	db           *gorm.DB
	cfg          *config.Config
	donatorRepo  *repository.DonatorRepository
	donationRepo *repository.DonationRepository
	steamClient  *steam.Client
	querier      gameserver.Querier
}

func NewQueryService(db *gorm.DB, cfg *config.Config, steamClient *steam.Client, querier gameserver.Querier) *QueryService {
	return &QueryService{
		db:           db,
		cfg:          cfg,
		donatorRepo:  repository.NewDonatorRepository(db),
		donationRepo: repository.NewDonationRepository(db),
		steamClient:  steamClient,
		querier:      querier,
	}
}

// RecentDonation 最近捐赠条目（台账 + Steam 资料）
type RecentDonation struct {
	SteamID     string `json:"steamid"`
	PersonaName string `json:"personaname,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	Amount      string `json:"amount"`
	Date        int64  `json:"date"`
}

// RecentDonations 最近 limit 笔公开捐赠，新的在前
// Steam 资料按去重后的 SteamID 集合一次批量查询
func (s *QueryService) RecentDonations(ctx context.Context, limit int) ([]*RecentDonation, error) {
	donations, err := s.donationRepo.RecentPublic(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("查询最近捐赠失败: %w", err)
	}

	steamIDs := make([]string, 0, len(donations))
	seen := make(map[string]bool)
	for _, d := range donations {
		if d.Donator == nil || d.Donator.SteamID == nil {
			continue
		}
		if id := *d.Donator.SteamID; !seen[id] {
			seen[id] = true
			steamIDs = append(steamIDs, id)
		}
	}

	summaries, err := s.steamClient.GetPlayerSummaries(ctx, steamIDs)
	if err != nil {
		return nil, err
	}

	result := make([]*RecentDonation, 0, len(donations))
	for _, d := range donations {
		entry := &RecentDonation{
			Amount: d.Amount.StringFixed(2),
			Date:   d.PaidAt.Unix(),
		}
		if d.Donator != nil && d.Donator.SteamID != nil {
			entry.SteamID = *d.Donator.SteamID
			if summary, ok := summaries[entry.SteamID]; ok {
				entry.PersonaName = summary.PersonaName
				entry.Avatar = summary.Avatar
			}
		}
		result = append(result, entry)
	}
	return result, nil
}

// DonationDetail 单个捐赠者详情里的一笔捐赠
type DonationDetail struct {
	Amount string `json:"amount"`
	Date   int64  `json:"date"`
}

// DonatorDetail 某 SteamID 的全部捐赠
// 捐赠者不存在返回 NotFound；存在但没有捐赠返回空列表，两者严格区分
func (s *QueryService) DonatorDetail(ctx context.Context, steamID string) ([]*DonationDetail, error) {
	donator, err := s.donatorRepo.GetBySteamID(ctx, steamID)
	if err != nil {
		return nil, err
	}

	donations, err := s.donationRepo.ListByDonator(ctx, donator.ID)
	if err != nil {
		return nil, fmt.Errorf("查询捐赠明细失败: %w", err)
	}

	details := make([]*DonationDetail, 0, len(donations))
	for _, d := range donations {
		details = append(details, &DonationDetail{
			Amount: d.Amount.StringFixed(2),
			Date:   d.PaidAt.Unix(),
		})
	}
	return details, nil
}

// TopDonator 捐赠榜条目
type TopDonator struct {
	SteamID     string `json:"steamid"`
	PersonaName string `json:"personaname,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	TotalAmount string `json:"amount"`
}

// TopDonators 总额最高的 limit 个公开捐赠者，按总额倒序
func (s *QueryService) TopDonators(ctx context.Context, limit int) ([]*TopDonator, error) {
	donators, err := s.donatorRepo.TopByTotalAmount(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("查询捐赠榜失败: %w", err)
	}

	steamIDs := make([]string, 0, len(donators))
	for _, d := range donators {
		if d.SteamID != nil {
			steamIDs = append(steamIDs, *d.SteamID)
		}
	}

	summaries, err := s.steamClient.GetPlayerSummaries(ctx, steamIDs)
	if err != nil {
		return nil, err
	}

	result := make([]*TopDonator, 0, len(donators))
	for _, d := range donators {
		entry := &TopDonator{TotalAmount: d.TotalAmount.StringFixed(2)}
		if d.SteamID != nil {
			entry.SteamID = *d.SteamID
			if summary, ok := summaries[entry.SteamID]; ok {
				entry.PersonaName = summary.PersonaName
				entry.Avatar = summary.Avatar
			}
		}
		result = append(result, entry)
	}
	return result, nil
}

// ServerStatus 单台游戏服务器的实时状态
type ServerStatus struct {
	ServerName  string `json:"server_name"`
	Map         string `json:"map,omitempty"`
	PlayerCount int    `json:"player_count,omitempty"`
	MaxPlayers  int    `json:"max_players,omitempty"`
	Online      bool   `json:"online"`
	Location    string `json:"location"`
}

// ServerStatuses 并发查询一批游戏服务器
//
// 每台服务器独立超时：查不通的标记 offline（用配置的名字和位置兜底），
// 绝不让一台挂掉的服务器拖垮整批。并发量由工作池上限约束，
// 调用方取消时放弃未完成的查询
func (s *QueryService) ServerStatuses(ctx context.Context, servers []config.GameServer) []*ServerStatus {
	poolSize := s.cfg.GameServer.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 8
	}
	timeout := time.Duration(s.cfg.GameServer.QueryTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 1500 * time.Millisecond
	}

	results := make([]*ServerStatus, len(servers))
	sem := make(chan struct{}, poolSize)
	var wg sync.WaitGroup

	for i, server := range servers {
		wg.Add(1)
		go func(i int, server config.GameServer) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = offlineStatus(server)
				return
			}

			queryCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			info, err := s.querier.QueryInfo(queryCtx, server.Address)
			if err != nil {
				results[i] = offlineStatus(server)
				return
			}
			results[i] = &ServerStatus{
				ServerName:  info.Name,
				Map:         info.Map,
				PlayerCount: info.Players,
				MaxPlayers:  info.MaxPlayers,
				Online:      true,
				Location:    server.Location,
			}
		}(i, server)
	}

	wg.Wait()
	return results
}

func offlineStatus(server config.GameServer) *ServerStatus {
	return &ServerStatus{
		ServerName: server.Name,
		Online:     false,
		Location:   server.Location,
	}
}
