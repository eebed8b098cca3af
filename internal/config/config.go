package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Storage   StorageConfig
	Redis     RedisConfig
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

// AnalysisConfig 差距分析管线的全部阈值和窗口
type AnalysisConfig struct {
	GapProbabilityThreshold float64 `mapstructure:"gap_probability_threshold"` // 超过该概率视为检出差距
	AnalysisWindowDays      int     `mapstructure:"analysis_window_days"`      // 模型路径回看窗口
	RuleWindowDays          int     `mapstructure:"rule_window_days"`          // 规则路径回看窗口
	MinRecentSubmissions    int     `mapstructure:"min_recent_submissions"`
	MinTotalSubmissions     int     `mapstructure:"min_total_submissions"`
	MinUniqueConcepts       int     `mapstructure:"min_unique_concepts"`
	MinTrainingRecords      int     `mapstructure:"min_training_records"` // 原始记录条数门槛
	MinTrainingSamples      int     `mapstructure:"min_training_samples"` // 可用特征样本门槛
	MinRetrainNewRecords    int     `mapstructure:"min_retrain_new_records"`
	RetrainIntervalHours    int     `mapstructure:"retrain_interval_hours"`
	QueuePollTimeoutSec     int     `mapstructure:"queue_poll_timeout_seconds"`
	HistoryCacheTTLSec      int     `mapstructure:"history_cache_ttl_seconds"`
	ModelPath               string  `mapstructure:"model_path"`
}

func (c *AnalysisConfig) RetrainInterval() time.Duration {
	return time.Duration(c.RetrainIntervalHours) * time.Hour
}

func (c *AnalysisConfig) QueuePollTimeout() time.Duration {
	return time.Duration(c.QueuePollTimeoutSec) * time.Second
}

func (c *AnalysisConfig) HistoryCacheTTL() time.Duration {
	return time.Duration(c.HistoryCacheTTLSec) * time.Second
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("GAP_ANALYTICS")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// Storage
	viper.BindEnv("storage.type", "STORAGE_TYPE")
	viper.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	// Analysis
	viper.BindEnv("analysis.model_path", "ANALYSIS_MODEL_PATH")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	applyAnalysisDefaults(&cfg.Analysis)

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func applyAnalysisDefaults(a *AnalysisConfig) {
	if a.GapProbabilityThreshold == 0 {
		a.GapProbabilityThreshold = 0.6
	}
	if a.AnalysisWindowDays == 0 {
		a.AnalysisWindowDays = 90
	}
	if a.RuleWindowDays == 0 {
		a.RuleWindowDays = 30
	}
	if a.MinRecentSubmissions == 0 {
		a.MinRecentSubmissions = 3
	}
	if a.MinTotalSubmissions == 0 {
		a.MinTotalSubmissions = 5
	}
	if a.MinUniqueConcepts == 0 {
		a.MinUniqueConcepts = 2
	}
	if a.MinTrainingRecords == 0 {
		a.MinTrainingRecords = 100
	}
	if a.MinTrainingSamples == 0 {
		a.MinTrainingSamples = 50
	}
	if a.MinRetrainNewRecords == 0 {
		a.MinRetrainNewRecords = 50
	}
	if a.RetrainIntervalHours == 0 {
		a.RetrainIntervalHours = 24
	}
	if a.QueuePollTimeoutSec == 0 {
		a.QueuePollTimeoutSec = 5
	}
	if a.HistoryCacheTTLSec == 0 {
		a.HistoryCacheTTLSec = 300
	}
	if a.ModelPath == "" {
		a.ModelPath = "models/gap_detection"
	}
}
