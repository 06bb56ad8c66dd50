package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 按捐赠者维度的互斥锁
// ============================================================================
//
// PayPal 可能对同一个捐赠者连续投递多个事件（完成、退款、冲正），
// 台账要求同一捐赠者的记账/销账串行执行，否则会出现：
//
//   goroutine1: 插入捐赠A -> 求和=30 -> 写总额30
//   goroutine2: 插入捐赠B -> 求和=50 -> 写总额50
//   goroutine1 晚提交时把总额写回 30，台账与明细不一致
//
// 锁按捐赠者身份（SteamID + 匿名标记）加，不同捐赠者互不阻塞。
// 锁只包住短事务，校验、SteamID 解析等网络调用都在拿锁之前完成。
// ============================================================================

var ErrLockFailed = errors.New("获取捐赠者锁失败")

// Locker 单个捐赠者的互斥锁
type Locker interface {
	Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error
	Unlock(ctx context.Context) error
}

// Factory 按捐赠者身份派发锁
type Factory interface {
	DonatorLock(identity string) Locker
}

// DonatorKey 捐赠者身份 -> 锁 key
// 身份匹配键是 (steamID, anonymous)，两者共同决定落到哪个捐赠者
func DonatorKey(steamID *string, anonymous bool) string {
	id := ""
	if steamID != nil {
		id = *steamID
	}
	return fmt.Sprintf("%s:%t", id, anonymous)
}

// ----------------------------------------------------------------------------
// Redis 实现（多实例部署用）
// ----------------------------------------------------------------------------

type RedisFactory struct {
	client *redis.Client
}

func NewRedisFactory(client *redis.Client) *RedisFactory {
	return &RedisFactory{client: client}
}

func (f *RedisFactory) DonatorLock(identity string) Locker {
	return &redisLock{
		client:     f.client,
		key:        fmt.Sprintf("donator:lock:%s", identity),
		value:      fmt.Sprintf("%d", time.Now().UnixNano()),
		expiration: 30 * time.Second,
	}
}

type redisLock struct {
	client     *redis.Client
	key        string
	value      string // 锁持有者标识，释放时验证，防止误删别人的锁
	expiration time.Duration
}

// Lock 阻塞式获取锁（带重试）
// SET key value NX EX：NX 保证互斥，EX 防止持有者崩溃后死锁
func (l *redisLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
// Lua 脚本保证"校验持有者 + 删除"的原子性：
// 锁过期被别人抢走后，自己的 Unlock 不能删掉别人的锁
func (l *redisLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// ----------------------------------------------------------------------------
// 进程内实现（单实例部署和测试用）
// ----------------------------------------------------------------------------

type LocalFactory struct {
	mu    chan struct{} // 保护 locks 表
	locks map[string]chan struct{}
}

func NewLocalFactory() *LocalFactory {
	f := &LocalFactory{
		mu:    make(chan struct{}, 1),
		locks: make(map[string]chan struct{}),
	}
	f.mu <- struct{}{}
	return f
}

func (f *LocalFactory) DonatorLock(identity string) Locker {
	<-f.mu
	ch, ok := f.locks[identity]
	if !ok {
		ch = make(chan struct{}, 1)
		ch <- struct{}{}
		f.locks[identity] = ch
	}
	f.mu <- struct{}{}
	return &localLock{ch: ch}
}

type localLock struct {
	ch chan struct{}
}

func (l *localLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	select {
	case <-l.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *localLock) Unlock(ctx context.Context) error {
	select {
	case l.ch <- struct{}{}:
	default:
	}
	return nil
}
