package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		DisableCORS     bool          `yaml:"disable_cors"`
		SlowRequest     time.Duration `yaml:"slow_request"`
		RateLimit       struct {
			Capacity int     `yaml:"capacity"`
			Refill   float64 `yaml:"refill_per_sec"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
		// Topic receives aggregated warn/error logs when kafka is enabled.
		Topic         string        `yaml:"topic"`
		FlushInterval time.Duration `yaml:"flush_interval"`
	} `yaml:"log"`
	Cache struct {
		Backend string `yaml:"backend"` // redis, memory or layered
		Redis   struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			PoolSize int    `yaml:"pool_size"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			MaxSize         int           `yaml:"max_size"`
			CleanupInterval time.Duration `yaml:"cleanup_interval"`
			L1TTL           time.Duration `yaml:"l1_ttl"`
		} `yaml:"memory"`
		TTL struct {
			CurrentPrice     time.Duration `yaml:"current_price"`
			Historical       time.Duration `yaml:"historical"`
			HistoricalDates  time.Duration `yaml:"historical_dates"`
			Forecast         time.Duration `yaml:"forecast"`
			PeriodPrediction time.Duration `yaml:"period_prediction"`
			DatesPrediction  time.Duration `yaml:"dates_prediction"`
		} `yaml:"ttl"`
	} `yaml:"cache"`
	CoinGecko struct {
		BaseURLs   []string      `yaml:"base_urls"`
		APIKey     string        `yaml:"api_key"`
		Timeout    time.Duration `yaml:"timeout"`
		RatePerMin int           `yaml:"rate_per_min"`
		MaxRetries int           `yaml:"max_retries"`
		VsCurrency string        `yaml:"vs_currency"`
	} `yaml:"coingecko"`
	Forecast struct {
		DailyMultiplier  int           `yaml:"daily_multiplier"`
		HourlyMultiplier int           `yaml:"hourly_multiplier"`
		DatesMultiplier  int           `yaml:"dates_multiplier"`
		Workers          int           `yaml:"workers"`
		QueueSize        int           `yaml:"queue_size"`
		TrainTimeout     time.Duration `yaml:"train_timeout"`
		Seed             uint64        `yaml:"seed"`
		Arima            struct {
			Tiers []struct {
				MaxSteps int `yaml:"max_steps"`
				P        int `yaml:"p"`
				D        int `yaml:"d"`
				Q        int `yaml:"q"`
			} `yaml:"tiers"`
		} `yaml:"arima"`
		Augment struct {
			Threshold     int     `yaml:"threshold"`
			BaseDownProb  float64 `yaml:"base_down_prob"`
			TrendScale    float64 `yaml:"trend_scale"`
			NoiseScale    float64 `yaml:"noise_scale"`
			CycleAmp      float64 `yaml:"cycle_amp"`
			CyclePeriod   float64 `yaml:"cycle_period"`
			FloorFraction float64 `yaml:"floor_fraction"`
		} `yaml:"augment"`
		LSTM struct {
			Hidden            int        `yaml:"hidden"`
			Epochs            int        `yaml:"epochs"`
			BatchSize         int        `yaml:"batch_size"`
			LearningRate      float64    `yaml:"learning_rate"`
			PatternWeights    [4]float64 `yaml:"pattern_weights"`
			LongTermThreshold int        `yaml:"long_term_threshold"` // defaults to augment.threshold
		} `yaml:"lstm"`
	} `yaml:"forecast"`
	Stream struct {
		Coins    []string      `yaml:"coins"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"stream"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequestTopic string   `yaml:"request_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
		ConnectRetries   int           `yaml:"connect_retries"`
	} `yaml:"clickhouse"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML, fills defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.SetDefaults()

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides fields from COINCAST_* variables looked up with getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("COINCAST_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("COINCAST_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := getenv("COINCAST_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("COINCAST_CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := getenv("COINCAST_REDIS_HOST"); v != "" {
		c.Cache.Redis.Host = v
	}
	if v := getenv("COINCAST_REDIS_PASSWORD"); v != "" {
		c.Cache.Redis.Password = v
	}
	if v := getenv("COINCAST_COINGECKO_API_KEY"); v != "" {
		c.CoinGecko.APIKey = v
	}
	if v := getenv("COINCAST_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("COINCAST_CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := getenv("COINCAST_STREAM_COINS"); v != "" {
		c.Stream.Coins = strings.Split(v, ",")
	}
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	setDuration(&c.Server.SlowRequest, 5*time.Second)
	if c.Server.RateLimit.Capacity == 0 {
		c.Server.RateLimit.Capacity = 30
	}
	if c.Server.RateLimit.Refill == 0 {
		c.Server.RateLimit.Refill = 1
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Log.Topic == "" {
		c.Log.Topic = "coincast.logs"
	}
	if c.Log.FlushInterval == 0 {
		c.Log.FlushInterval = 30 * time.Second
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "redis"
	}
	if c.Cache.Redis.Host == "" {
		c.Cache.Redis.Host = "localhost"
	}
	if c.Cache.Redis.Port == 0 {
		c.Cache.Redis.Port = 6379
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "coincast"
	}
	if c.Cache.Memory.MaxSize == 0 {
		c.Cache.Memory.MaxSize = 1000
	}
	ttl := &c.Cache.TTL
	setDuration(&ttl.CurrentPrice, 5*time.Minute)
	setDuration(&ttl.Historical, time.Hour)
	setDuration(&ttl.HistoricalDates, time.Hour)
	setDuration(&ttl.Forecast, 30*time.Minute)
	setDuration(&ttl.PeriodPrediction, time.Hour)
	setDuration(&ttl.DatesPrediction, time.Hour)
	if len(c.CoinGecko.BaseURLs) == 0 {
		c.CoinGecko.BaseURLs = []string{"https://api.coingecko.com/api/v3", "https://pro-api.coingecko.com/api/v3"}
	}
	setDuration(&c.CoinGecko.Timeout, 30*time.Second)
	if c.CoinGecko.RatePerMin == 0 {
		c.CoinGecko.RatePerMin = 30
	}
	if c.CoinGecko.MaxRetries == 0 {
		c.CoinGecko.MaxRetries = 3
	}
	if c.CoinGecko.VsCurrency == "" {
		c.CoinGecko.VsCurrency = "usd"
	}
	if c.Forecast.DailyMultiplier == 0 {
		c.Forecast.DailyMultiplier = 3
	}
	if c.Forecast.HourlyMultiplier == 0 {
		c.Forecast.HourlyMultiplier = 7
	}
	if c.Forecast.DatesMultiplier == 0 {
		c.Forecast.DatesMultiplier = 3
	}
	setDuration(&c.Forecast.TrainTimeout, 2*time.Minute)
	if c.Forecast.QueueSize == 0 {
		c.Forecast.QueueSize = 64
	}
	if len(c.Stream.Coins) == 0 {
		c.Stream.Coins = []string{"bitcoin", "ethereum"}
	}
	setDuration(&c.Stream.Interval, 5*time.Second)
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "coincast.forecasts"
	}
	if c.Kafka.RequestTopic == "" {
		c.Kafka.RequestTopic = "coincast.forecast-requests"
	}
	if c.Kafka.Consumer.GroupID == "" {
		c.Kafka.Consumer.GroupID = "coincast"
	}
	if c.ClickHouse.Database == "" {
		c.ClickHouse.Database = "coincast"
	}
	if c.ClickHouse.ConnectRetries == 0 {
		c.ClickHouse.ConnectRetries = 3
	}
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d == 0 {
		*d = def
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Cache.Backend {
	case "redis", "memory", "layered":
	default:
		return fmt.Errorf("cache.backend must be 'redis', 'memory' or 'layered', got '%s'", c.Cache.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Forecast.TrainTimeout < 0 {
		return fmt.Errorf("forecast.train_timeout must not be negative")
	}
	prev := 0
	for i, t := range c.Forecast.Arima.Tiers {
		if t.MaxSteps <= prev {
			return fmt.Errorf("forecast.arima.tiers[%d].max_steps must be increasing", i)
		}
		prev = t.MaxSteps
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	return nil
}
