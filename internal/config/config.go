package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	MySQL  MySQLConfig  `mapstructure:"mysql"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	Credit CreditConfig `mapstructure:"credit"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
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
	CreditEvents string `mapstructure:"credit_events"`
}

// CreditConfig 积分业务参数
// 统一从配置注入，服务内不放包级常量，方便测试时替换
type CreditConfig struct {
	SignupBonus         int64 `mapstructure:"signup_bonus"`          // 注册赠送永久积分
	AnimationCost       int64 `mapstructure:"animation_cost"`        // 每次生成动画消耗
	InviteRewardInviter int64 `mapstructure:"invite_reward_inviter"` // 邀请人奖励
	InviteRewardInvitee int64 `mapstructure:"invite_reward_invitee"` // 被邀请人奖励
	DailyInviteCap      int   `mapstructure:"daily_invite_cap"`      // 邀请人每日获奖上限
	MaxRetryCount       int   `mapstructure:"max_retry_count"`       // 消息投递最大重试次数
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
