package gameserver

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net"
	"time"
)

// ============================================================================
// Source 引擎 A2S_INFO 查询
// ============================================================================
//
// 单个 UDP 请求/响应即可拿到服务器名、地图和在线人数。
// 新版服务器会先回 S2C_CHALLENGE（0x41），带上 challenge 重发一次即可。
// ============================================================================

var ErrNoResponse = errors.New("游戏服务器无响应")

// ServerInfo A2S_INFO 响应里我们关心的字段
type ServerInfo struct {
	Name       string
	Map        string
	Players    int
	MaxPlayers int
}

// Querier 游戏服务器状态查询接口
type Querier interface {
	QueryInfo(ctx context.Context, addr string) (*ServerInfo, error)
}

// UDPQuerier 面向真实服务器的 Querier 实现
type UDPQuerier struct {
	Timeout time.Duration
}

func NewUDPQuerier(timeout time.Duration) *UDPQuerier {
	if timeout <= 0 {
		timeout = 1500 * time.Millisecond
	}
	return &UDPQuerier{Timeout: timeout}
}

var infoRequest = append([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x54}, []byte("Source Engine Query\x00")...)

// QueryInfo 查询单台服务器，超时或收不到合法响应时返回 ErrNoResponse
func (q *UDPQuerier) QueryInfo(ctx context.Context, addr string) (*ServerInfo, error) {
	deadline := time.Now().Add(q.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn, err := net.DialTimeout("udp", addr, q.Timeout)
	if err != nil {
		return nil, ErrNoResponse
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return nil, ErrNoResponse
	}

	payload, err := q.roundTrip(conn, infoRequest)
	if err != nil {
		return nil, ErrNoResponse
	}

	// 服务器要求 challenge 时带上 challenge 重发一次
	if len(payload) >= 5 && payload[0] == 0x41 {
		challenged := append(append([]byte{}, infoRequest...), payload[1:5]...)
		payload, err = q.roundTrip(conn, challenged)
		if err != nil {
			return nil, ErrNoResponse
		}
	}

	info, err := ParseInfoResponse(payload)
	if err != nil {
		return nil, ErrNoResponse
	}
	return info, nil
}

func (q *UDPQuerier) roundTrip(conn net.Conn, request []byte) ([]byte, error) {
	if _, err := conn.Write(request); err != nil {
		return nil, err
	}

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}

	// 去掉单包报文头 0xFFFFFFFF
	if n < 5 || binary.LittleEndian.Uint32(buf[:4]) != 0xFFFFFFFF {
		return nil, ErrNoResponse
	}
	return buf[4:n], nil
}

// ParseInfoResponse 解析 A2S_INFO 响应体（不含 0xFFFFFFFF 报文头）
func ParseInfoResponse(payload []byte) (*ServerInfo, error) {
	// 0x49 = A2S_INFO 响应，后跟 protocol 字节和四个 C 字符串
	if len(payload) < 2 || payload[0] != 0x49 {
		return nil, ErrNoResponse
	}

	r := bytes.NewBuffer(payload[2:])

	name, err := readCString(r)
	if err != nil {
		return nil, ErrNoResponse
	}
	mapName, err := readCString(r)
	if err != nil {
		return nil, ErrNoResponse
	}
	if _, err := readCString(r); err != nil { // folder
		return nil, ErrNoResponse
	}
	if _, err := readCString(r); err != nil { // game
		return nil, ErrNoResponse
	}

	// appid(2) + players(1) + max_players(1)
	rest := r.Bytes()
	if len(rest) < 4 {
		return nil, ErrNoResponse
	}

	return &ServerInfo{
		Name:       name,
		Map:        mapName,
		Players:    int(rest[2]),
		MaxPlayers: int(rest[3]),
	}, nil
}

func readCString(r *bytes.Buffer) (string, error) {
	s, err := r.ReadString(0)
	if err != nil {
		return "", err
	}
	return s[:len(s)-1], nil
}
