package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置（Broker 为空表示不启用 MQTT 摄入）
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      byte
}

// WindowConfig 统计窗口配置
type WindowConfig struct {
	Duration   time.Duration // 窗口时长
	MinSamples int           // 低于该样本数标记为低置信度
}

// Config 管线服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// 摄入配置（Redis Streams）
	Ingest struct {
		Stream        string // 读数流名称，如 "health:readings"
		ConsumerGroup string
		ConsumerName  string
		BatchSize     int64
	}

	// 评估管线配置
	Pipeline struct {
		EvalInterval    time.Duration  // 评估周期
		Workers         int            // 每周期并行评估的 worker 数
		Windows         []WindowConfig // 统计窗口（如 1h / 24h）
		TailSize        int            // 特征工程使用的原始读数尾部长度 K
		MinTrendSamples int            // 趋势拟合的最小样本数，不足则强制 stable
		HistoryMaxAge   time.Duration  // 内存历史保留时长
		HistoryMaxCount int            // 每个对象的历史读数上限
	}

	// 预测配置
	Forecast struct {
		HorizonSteps  int           // 预测点数，默认 24
		Spacing       time.Duration // 预测点间隔，默认 1h
		Confidence    float64       // 置信水平，只影响区间宽度
		MinSamples    int           // 趋势模型最小历史样本数
		Alpha         float64       // Holt 平滑系数（水平）
		Beta          float64       // Holt 平滑系数（趋势）
		Timeout       time.Duration // 单次预测计算超时
		CacheTTL      time.Duration // 预测结果缓存 TTL
		FallbackSigma float64       // 兜底模型保守标准差（正常范围占比）
	}

	// 报警配置
	Alerts struct {
		Cooldown time.Duration // 去重冷却时长
		// 风险分类阈值（risk_score < Elevated 为 normal，< Critical 为 elevated，否则 critical）
		ElevatedThreshold float64
		CriticalThreshold float64
	}

	// 展示缓存配置
	Cache struct {
		SummaryKeyPrefix string // 如 "health:subject:"
		SummarySuffix    string // 如 ":summary"
		AlertKeyPrefix   string
		AlertSuffix      string // 如 ":alerts"
		TTL              time.Duration
	}

	// 指标规则表文件路径（为空使用内置默认规则）
	RulesFile string
	Rules     []MetricRule

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（带默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "healthcare")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "healthcare-pipeline")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "health/vitals")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	cfg.Ingest.Stream = getEnv("INGEST_STREAM", "health:readings")
	cfg.Ingest.ConsumerGroup = getEnv("INGEST_GROUP", "health-pipeline")
	cfg.Ingest.ConsumerName = getEnv("INGEST_CONSUMER", "pipeline-1")
	cfg.Ingest.BatchSize = 64

	cfg.Pipeline.EvalInterval = getEnvDuration("EVAL_INTERVAL", 30*time.Second)
	cfg.Pipeline.Workers = getEnvInt("EVAL_WORKERS", 4)
	windows, err := parseWindows(getEnv("STAT_WINDOWS", "1h:5,24h:10"))
	if err != nil {
		return nil, fmt.Errorf("invalid STAT_WINDOWS: %w", err)
	}
	cfg.Pipeline.Windows = windows
	cfg.Pipeline.TailSize = getEnvInt("FEATURE_TAIL_SIZE", 10)
	cfg.Pipeline.MinTrendSamples = getEnvInt("MIN_TREND_SAMPLES", 3)
	cfg.Pipeline.HistoryMaxAge = getEnvDuration("HISTORY_MAX_AGE", 7*24*time.Hour)
	cfg.Pipeline.HistoryMaxCount = getEnvInt("HISTORY_MAX_COUNT", 5000)

	cfg.Forecast.HorizonSteps = getEnvInt("FORECAST_STEPS", 24)
	cfg.Forecast.Spacing = getEnvDuration("FORECAST_SPACING", time.Hour)
	cfg.Forecast.Confidence = getEnvFloat("FORECAST_CONFIDENCE", 0.95)
	cfg.Forecast.MinSamples = getEnvInt("FORECAST_MIN_SAMPLES", 10)
	cfg.Forecast.Alpha = getEnvFloat("FORECAST_ALPHA", 0.5)
	cfg.Forecast.Beta = getEnvFloat("FORECAST_BETA", 0.3)
	cfg.Forecast.Timeout = getEnvDuration("FORECAST_TIMEOUT", 5*time.Second)
	cfg.Forecast.CacheTTL = getEnvDuration("FORECAST_CACHE_TTL", time.Minute)
	cfg.Forecast.FallbackSigma = getEnvFloat("FORECAST_FALLBACK_SIGMA", 0.1)

	cfg.Alerts.Cooldown = getEnvDuration("ALERT_COOLDOWN", 10*time.Minute)
	cfg.Alerts.ElevatedThreshold = getEnvFloat("RISK_ELEVATED_THRESHOLD", 0.33)
	cfg.Alerts.CriticalThreshold = getEnvFloat("RISK_CRITICAL_THRESHOLD", 0.66)

	cfg.Cache.SummaryKeyPrefix = getEnv("CACHE_SUMMARY_PREFIX", "health:subject:")
	cfg.Cache.SummarySuffix = ":summary"
	cfg.Cache.AlertKeyPrefix = getEnv("CACHE_ALERT_PREFIX", "health:subject:")
	cfg.Cache.AlertSuffix = ":alerts"
	cfg.Cache.TTL = getEnvDuration("CACHE_TTL", 60*time.Second)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	// 加载指标规则表
	cfg.RulesFile = getEnv("METRIC_RULES_FILE", "")
	rules, err := LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load metric rules: %w", err)
	}
	cfg.Rules = rules

	return cfg, nil
}

// parseWindows 解析统计窗口配置，格式 "1h:5,24h:10"（时长:最小样本数）
func parseWindows(value string) ([]WindowConfig, error) {
	var out []WindowConfig
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) != 2 {
			return nil, fmt.Errorf("window %q: expected <duration>:<min_samples>", part)
		}
		d, err := time.ParseDuration(strings.TrimSpace(fields[0]))
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("window %q: invalid duration", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("window %q: invalid min samples", part)
		}
		out = append(out, WindowConfig{Duration: d, MinSamples: n})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no windows configured")
	}
	return out, nil
}

// RuleFor 按指标名查找规则（未配置的指标返回 false）
func (c *Config) RuleFor(metric string) (MetricRule, bool) {
	for _, r := range c.Rules {
		if r.Metric == metric {
			return r, true
		}
	}
	return MetricRule{}, false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
