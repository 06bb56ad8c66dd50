package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	MySQL      MySQLConfig      `mapstructure:"mysql"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	PayPal     PayPalConfig     `mapstructure:"paypal"`
	Steam      SteamConfig      `mapstructure:"steam"`
	GameServer GameServerConfig `mapstructure:"gameserver"`
	Business   BusinessConfig   `mapstructure:"business"`
	Servers    []GameServer     `mapstructure:"servers"`
}

type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	StaticDir string `mapstructure:"static_dir"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	DonationRecorded string `mapstructure:"donation_recorded"`
	DonationRemoved  string `mapstructure:"donation_removed"`
}

// PayPalConfig IPN 回传校验配置
// sandbox 开关在进程启动时固定，决定校验请求发往沙箱还是生产环境
type PayPalConfig struct {
	Sandbox              bool `mapstructure:"sandbox"`
	VerifyTimeoutSeconds int  `mapstructure:"verify_timeout_seconds"`
}

type SteamConfig struct {
	APIKey              string `mapstructure:"api_key"`
	ProfileCacheSeconds int    `mapstructure:"profile_cache_seconds"`
	RequestTimeoutMs    int    `mapstructure:"request_timeout_ms"`
}

type GameServerConfig struct {
	QueryTimeoutMs int `mapstructure:"query_timeout_ms"`
	WorkerPoolSize int `mapstructure:"worker_pool_size"`
}

// GameServer 展示在捐赠页上的游戏服务器
type GameServer struct {
	Name     string `mapstructure:"name" json:"name"`
	Address  string `mapstructure:"address" json:"address"`
	Location string `mapstructure:"location" json:"location"`
}

type BusinessConfig struct {
	MaxRetryCount     int `mapstructure:"max_retry_count"`
	DefaultQueryLimit int `mapstructure:"default_query_limit"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	return config
}
