package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

var Cfg *Config

// Config 应用配置结构
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Log        LogConfig        `mapstructure:"log"`
	RocketMQ   RocketMQConfig   `mapstructure:"rocketmq"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Approval   ApprovalConfig   `mapstructure:"approval"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name         string        `mapstructure:"name"`
	Version      string        `mapstructure:"version"`
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	Charset         string        `mapstructure:"charset"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogMode         bool          `mapstructure:"log_mode"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// JWTConfig JWT 配置
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int    `mapstructure:"expire"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// RocketMQConfig RocketMQ 生产者配置
type RocketMQConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Endpoint      string   `mapstructure:"endpoint"`
	Port          int      `mapstructure:"port"`
	AccessKey     string   `mapstructure:"access_key"`
	AccessSecret  string   `mapstructure:"access_secret"`
	ProducerGroup string   `mapstructure:"producer_group"`
	Topics        []string `mapstructure:"topics"`
	LogLevel      string   `mapstructure:"log_level"`
}

// MonitoringConfig /metrics 端点访问控制
type MonitoringConfig struct {
	MetricsToken       string   `mapstructure:"metrics_token"`
	MetricsIPWhitelist []string `mapstructure:"metrics_ip_whitelist"`
}

// ApprovalConfig 审批编译期默认值，租户和全局审批配置都不存在时使用
// 金额均为十进制字符串
// 金额级别区间跟随解析后的限额
// MagnitudeLargeMax 仅在未配置硬上限时生效
type ApprovalConfig struct {
	LocalLimit                    string        `mapstructure:"local_limit"`
	GeneralCeiling                string        `mapstructure:"general_ceiling"`
	HardCeiling                   string        `mapstructure:"hard_ceiling"`
	RequireSecondLevel            bool          `mapstructure:"require_second_level"`
	NotifySupervisorOnRestricted  bool          `mapstructure:"notify_supervisor_on_restricted"`
	RestrictedRequesterCategories []string      `mapstructure:"restricted_requester_categories"`
	MagnitudeLargeMax             string        `mapstructure:"magnitude_large_max"`
	CacheTTL                      time.Duration `mapstructure:"cache_ttl"`
}

// LedgerConfig 账本配置
type LedgerConfig struct {
	// DistributionTolerance 收入分配时申报总额与各分配额之和
	// 允许的差额
	DistributionTolerance string `mapstructure:"distribution_tolerance"`
	// ReconcileInterval 后台对账周期，0 表示关闭
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
}

// Load 加载配置文件
// 如果 configPath 为空，则根据环境变量 APP_ENV 选择（dev, test, prod）
func Load(configPath string) error {
	if configPath == "" {
		env := os.Getenv("APP_ENV")
		if env == "" {
			env = "dev"
		}

		switch env {
		case "prod", "production":
			configPath = "config/config.prod.yaml"
		case "test", "testing":
			configPath = "config/config.test.yaml"
		case "dev", "development", "":
			configPath = "config/config.yaml"
		default:
			configPath = fmt.Sprintf("config/config.%s.yaml", env)
		}
	}

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configPath)

	setDefaults()

	// 支持 APP_ 前缀的环境变量覆盖配置
	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file [%s]: %w", configPath, err)
	}

	Cfg = &Config{}
	if err := viper.Unmarshal(Cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	return nil
}

// GetConfig 获取已加载的配置
// 未调用 Load 时（测试、工具）返回默认配置
func GetConfig() *Config {
	if Cfg == nil {
		Cfg = Default()
	}
	return Cfg
}

// Default 仅由编译期默认值构建配置
func Default() *Config {
	v := viper.New()
	applyDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

// setDefaults 在全局 viper 实例上设置默认值
func setDefaults() {
	applyDefaults(viper.GetViper())
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "church-treasury-core")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.mode", "release")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("rocketmq.topics", []string{"requisition-notify"})
	v.SetDefault("rocketmq.log_level", "WARN")

	v.SetDefault("approval.local_limit", "5000.00")
	v.SetDefault("approval.general_ceiling", "20000.00")
	v.SetDefault("approval.hard_ceiling", "")
	v.SetDefault("approval.require_second_level", true)
	v.SetDefault("approval.notify_supervisor_on_restricted", true)
	v.SetDefault("approval.restricted_requester_categories", []string{"pastor"})
	v.SetDefault("approval.magnitude_large_max", "50000.00")
	v.SetDefault("approval.cache_ttl", 10*time.Minute)

	v.SetDefault("ledger.distribution_tolerance", "0.01")
	v.SetDefault("ledger.reconcile_interval", time.Hour)
}

// GetDSN 获取 MySQL 连接串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.Charset)
}

// GetAddr 获取 Redis 地址
func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
