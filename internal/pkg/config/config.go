package config

import (
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database DatabaseConfig  `mapstructure:"database"`
	Redis    RedisConfig     `mapstructure:"redis"`
	JWT      JWTConfig       `mapstructure:"jwt"`
	App      AppConfig       `mapstructure:"app"`
	Push     PushConfig      `mapstructure:"push"`
	Alipay   AlipayConfig    `mapstructure:"alipay"`
	Wechat   WechatPayConfig `mapstructure:"wechat"`
	Kafka    KafkaConfig     `mapstructure:"kafka"`
	Trade    TradeConfig     `mapstructure:"trade"`
	Order    OrderConfig     `mapstructure:"order"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type AppConfig struct {
	Env   string `mapstructure:"env"`
	Debug bool   `mapstructure:"debug"`
}

type PushConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	AppKey          int64  `mapstructure:"app_key"`
	RegionID        string `mapstructure:"region_id"` // e.g., "cn-hangzhou"
}

type AlipayConfig struct {
	AppID        string `mapstructure:"app_id"`
	PrivateKey   string `mapstructure:"private_key"`   // 应用私钥
	PublicKey    string `mapstructure:"public_key"`    // 支付宝公钥 (不是应用公钥)
	NotifyURL    string `mapstructure:"notify_url"`    // 异步通知地址
	IsProduction bool   `mapstructure:"is_production"` // 是否生产环境
}

type WechatPayConfig struct {
	AppID                string `mapstructure:"app_id"`
	MchID                string `mapstructure:"mch_id"`
	MchCertificateSerial string `mapstructure:"mch_cert_serial"`
	MchPrivateKey        string `mapstructure:"mch_private_key"`
	APIv3Key             string `mapstructure:"apiv3_key"`
	NotifyURL            string `mapstructure:"notify_url"`
}

// KafkaConfig 支付结果推送消费配置
type KafkaConfig struct {
	Brokers          []string `mapstructure:"brokers"`
	TradeStatusTopic string   `mapstructure:"trade_status_topic"`
	GroupID          string   `mapstructure:"group_id"`
}

// TradeConfig 支付网关相关配置
type TradeConfig struct {
	ProductAppID       string        `mapstructure:"product_app_id"` // 本业务系统在支付服务中的标识
	AliEnterpriseID    int64         `mapstructure:"ali_enterprise_id"`
	WechatEnterpriseID int64         `mapstructure:"wechat_enterprise_id"`
	Timeout            time.Duration `mapstructure:"timeout"` // 单次网关调用超时
}

// OrderConfig 订单生命周期相关配置
type OrderConfig struct {
	PayTimeout       time.Duration `mapstructure:"pay_timeout"`  // 支付宽限期，超过后自动取消
	SnapshotTTL      time.Duration `mapstructure:"snapshot_ttl"` // 订单快照缓存过期时间
	ScanInterval     time.Duration `mapstructure:"scan_interval"`
	TimeoutBatchSize int           `mapstructure:"timeout_batch_size"`
	RefundBatchSize  int           `mapstructure:"refund_batch_size"`
	RefundWorkers    int           `mapstructure:"refund_workers"`
	RefundQueueSize  int           `mapstructure:"refund_queue_size"`
}

var GlobalConfig Config

// Validate 验证配置
func (c *Config) Validate() error {
	if c.JWT.Secret == "" || c.JWT.Secret == "your_super_secret_key" {
		return errors.New("please set a secure JWT secret in production")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT secret should be at least 32 characters")
	}

	// 数据库配置验证
	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return errors.New("database configuration is incomplete")
	}

	// Redis 配置验证
	if c.Redis.Addr == "" {
		return errors.New("redis address is required")
	}

	if c.Trade.ProductAppID == "" {
		return errors.New("trade.product_app_id is required")
	}

	if c.Order.PayTimeout <= 0 {
		return errors.New("order.pay_timeout must be positive")
	}
	if c.Order.TimeoutBatchSize <= 0 || c.Order.RefundBatchSize <= 0 {
		return errors.New("order batch sizes must be positive")
	}
	if c.Order.ScanInterval <= 0 {
		return errors.New("order.scan_interval must be positive")
	}

	return nil
}

// SetDefaults 注册默认配置
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.debug", true)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.trade_status_topic", "trade.update.status")
	v.SetDefault("kafka.group_id", "orders-manager")

	v.SetDefault("trade.product_app_id", "jzo2o.orders")
	v.SetDefault("trade.timeout", 5*time.Second)

	v.SetDefault("order.pay_timeout", 15*time.Minute)
	v.SetDefault("order.snapshot_ttl", 24*time.Hour)
	v.SetDefault("order.scan_interval", time.Minute)
	v.SetDefault("order.timeout_batch_size", 100)
	v.SetDefault("order.refund_batch_size", 100)
	v.SetDefault("order.refund_workers", 4)
	v.SetDefault("order.refund_queue_size", 256)
}

// LoadConfig 加载配置
func LoadConfig() {
	// 获取环境变量，默认为dev
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	// 根据环境选择配置文件
	configName := "config"
	if env != "dev" {
		configName = "config." + env
	}

	v := viper.GetViper()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Printf("Warning: Config file not found, using defaults or env vars: %v", err)
	}

	// 绑定环境变量，server.port -> SERVER_PORT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&GlobalConfig); err != nil {
		log.Fatalf("Unable to decode into struct: %v", err)
	}

	// 手动覆盖，以防 viper 无法正确解析复杂结构或环境变量
	if host := os.Getenv("DB_HOST"); host != "" {
		GlobalConfig.Database.Host = host
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		GlobalConfig.Redis.Addr = redisAddr
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		GlobalConfig.JWT.Secret = jwtSecret
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		GlobalConfig.Kafka.Brokers = strings.Split(brokers, ",")
	}

	// 验证配置
	if err := GlobalConfig.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	log.Printf("Configuration loaded and validated successfully. Environment: %s", GlobalConfig.App.Env)
}
