package gameserver

import (
	"context"
	"net"
	"testing"
	"time"
)

func buildInfoPayload(name, mapName string, players, maxPlayers byte) []byte {
	payload := []byte{0x49, 0x11}
	payload = append(payload, []byte(name+"\x00")...)
	payload = append(payload, []byte(mapName+"\x00")...)
	payload = append(payload, []byte("cstrike\x00")...)
	payload = append(payload, []byte("Counter-Strike\x00")...)
	payload = append(payload, 0xF0, 0x00) // appid
	payload = append(payload, players, maxPlayers)
	payload = append(payload, 0x00, 0x64, 0x6C, 0x00, 0x01) // bots/type/env/vis/vac
	return payload
}

func TestParseInfoResponse(t *testing.T) {
	info, err := ParseInfoResponse(buildInfoPayload("BDM #1 Dust2", "de_dust2", 12, 24))
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if info.Name != "BDM #1 Dust2" {
		t.Fatalf("Name = %q", info.Name)
	}
	if info.Map != "de_dust2" {
		t.Fatalf("Map = %q", info.Map)
	}
	if info.Players != 12 || info.MaxPlayers != 24 {
		t.Fatalf("人数 = %d/%d, 期望 12/24", info.Players, info.MaxPlayers)
	}
}

func TestParseInfoResponseGarbage(t *testing.T) {
	for _, payload := range [][]byte{nil, {0x49}, {0x41, 0x01, 0x02}, {0x49, 0x11, 'x'}} {
		if _, err := ParseInfoResponse(payload); err == nil {
			t.Fatalf("损坏报文 %v 期望解析失败", payload)
		}
	}
}

// 起一个只会按 A2S 协议应答的假服务器
func startFakeServer(t *testing.T, respond bool) string {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("监听 UDP 失败: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 4096)
		for {
			n, addr, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			if !respond || n < 5 {
				continue
			}
			resp := append([]byte{0xFF, 0xFF, 0xFF, 0xFF}, buildInfoPayload("BDM #1", "de_dust2", 7, 24)...)
			conn.WriteTo(resp, addr)
		}
	}()

	return conn.LocalAddr().String()
}

func TestQueryInfo(t *testing.T) {
	addr := startFakeServer(t, true)

	q := NewUDPQuerier(time.Second)
	info, err := q.QueryInfo(context.Background(), addr)
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if info.Name != "BDM #1" || info.Players != 7 {
		t.Fatalf("返回内容不符: %+v", info)
	}
}

func TestQueryInfoNoResponse(t *testing.T) {
	addr := startFakeServer(t, false)

	q := NewUDPQuerier(200 * time.Millisecond)
	start := time.Now()
	_, err := q.QueryInfo(context.Background(), addr)
	if err == nil {
		t.Fatal("期望超时错误")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("超时控制失效, 耗时 %v", elapsed)
	}
}
