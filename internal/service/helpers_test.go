package service

import (
	"fmt"
	"sync/atomic"
	"testing"

	"donatesystem/internal/config"
	"donatesystem/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBSeq int64

// newTestDB 每个测试一个独立的内存 SQLite 库
// 限制单连接：共享缓存的内存库在多连接下会互相锁表
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:ledger_test_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试库失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层 DB 失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(
		&model.Donator{},
		&model.Donation{},
		&model.WebhookEvent{},
		&model.OutboxMessage{},
	); err != nil {
		t.Fatalf("迁移测试库失败: %v", err)
	}

	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				DonationRecorded: "donation_recorded",
				DonationRemoved:  "donation_removed",
			},
		},
		GameServer: config.GameServerConfig{
			QueryTimeoutMs: 200,
			WorkerPoolSize: 4,
		},
		Business: config.BusinessConfig{
			MaxRetryCount:     5,
			DefaultQueryLimit: 5,
		},
	}
}

func strPtr(s string) *string {
	return &s
}
