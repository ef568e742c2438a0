package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig
	DB     DBConfig
	Redis  RedisConfig
	JWT    JWTConfig
	AI     AIConfig
	Debate DebateConfig
}

type ServerConfig struct {
	Address string
}

type DBConfig struct {
	Host     string
	User     string
	Password string
	Name     string
	Port     int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

// AIConfig AI 服務相關設置
// BaseURL 指向 OpenAI 相容的 chat completions 端點
type AIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	UserID  uint // AI 參與者在系統中的用戶 ID
	Timeout time.Duration
}

// DebateConfig 辯論流程的時間參數
type DebateConfig struct {
	TerminationWindow time.Duration // 提前結束協商的等待時間
	DisconnectGrace   time.Duration // 斷線寬限期
	AITurnPause       time.Duration // AI 發言後到換手之間的停頓
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./pkg/config")
	viper.AddConfigPath(".")

	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("debate.terminationwindow", time.Minute)
	viper.SetDefault("debate.disconnectgrace", 5*time.Second)
	viper.SetDefault("debate.aiturnpause", 3*time.Second)
	viper.SetDefault("ai.timeout", 30*time.Second)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
