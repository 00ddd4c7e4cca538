package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string     `yaml:"environment" default:"development" validate:"required"`
	Log         Log        `yaml:"log"`
	Server      Server     `yaml:"server"`
	Metrics     Metrics    `yaml:"metrics"`
	Pipeline    Pipeline   `yaml:"pipeline"`
	Fetch       Fetch      `yaml:"fetch"`
	Families    []Family   `yaml:"families" validate:"dive"`
	ClickHouse  ClickHouse `yaml:"clickhouse"`
	Redis       Redis      `yaml:"redis"`
	Kafka       Kafka      `yaml:"kafka"`
	Schedule    Schedule   `yaml:"schedule"`
}

type Log struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout"`
}

type Server struct {
	Enabled         bool          `yaml:"enabled"`
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" default:"/metrics"`
}

// Pipeline holds the run-scoped constants shared by every family.
type Pipeline struct {
	Window      int     `yaml:"window" default:"60" validate:"gte=1"`
	NumFeatures int     `yaml:"num_features" default:"76" validate:"eq=76"`
	Workers     int     `yaml:"workers" default:"4" validate:"gte=1,lte=64"`
	OutputDir   string  `yaml:"output_dir" default:"assets/ml" validate:"required"`
	TestRatio   float64 `yaml:"test_ratio" default:"0.2" validate:"gt=0,lt=1"`
	SplitSeed   int64   `yaml:"split_seed" default:"42"`
	// Chronological keeps sample order when splitting instead of shuffling.
	Chronological bool `yaml:"chronological"`
	MinCandles    int  `yaml:"min_candles" validate:"gte=0"`
	// SkipWarmup starts windows after the scheme warm-up instead of on zero-filled rows.
	SkipWarmup bool `yaml:"skip_warmup"`
}

type Fetch struct {
	Source  string  `yaml:"source" default:"binance" validate:"oneof=binance clickhouse file"`
	Cache   bool    `yaml:"cache"`
	Binance Binance `yaml:"binance"`
	File    File    `yaml:"file"`
}

type Binance struct {
	BaseURL    string        `yaml:"base_url" default:"https://api.binance.com" validate:"url"`
	Limit      int           `yaml:"limit" default:"1000" validate:"gte=1,lte=1000"`
	Batches    int           `yaml:"batches" default:"5" validate:"gte=1"`
	Pause      time.Duration `yaml:"pause" default:"200ms"`
	Timeout    time.Duration `yaml:"timeout" default:"10s"`
	MaxRetries int           `yaml:"max_retries" default:"3" validate:"gte=1"`
	RateLimit  float64       `yaml:"rate_limit" default:"10" validate:"gt=0"`
	Burst      int           `yaml:"burst" default:"5" validate:"gte=1"`
}

type File struct {
	Dir string `yaml:"dir" default:"data/candles"`
}

// Family is one trained model family and the dataset it is built from.
type Family struct {
	Name        string   `yaml:"name" validate:"required"`
	Scheme      string   `yaml:"scheme" validate:"required"`
	Timeframe   string   `yaml:"timeframe" default:"5m" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	Candles     int      `yaml:"candles" default:"5000" validate:"gte=1"`
	Instruments []string `yaml:"instruments" validate:"min=1,dive,required"`
	Label       Label    `yaml:"label"`
	Calibration string   `yaml:"calibration"`
	Type        string   `yaml:"type"`
}

type Label struct {
	Kind      string  `yaml:"kind" default:"fixed" validate:"oneof=fixed percentile binary"`
	Horizon   int     `yaml:"horizon" default:"1" validate:"gte=1"`
	Threshold float64 `yaml:"threshold" default:"0.002" validate:"gte=0"`
}

type ClickHouse struct {
	// Enabled opens a client even when fetch.source is not clickhouse,
	// so sync and init-schema can write to it.
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"finfeat"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

type Redis struct {
	Enabled  bool          `yaml:"enabled"`
	Host     string        `yaml:"host" default:"localhost"`
	Port     int           `yaml:"port" default:"6379"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl" default:"10m"`
}

type Kafka struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic" default:"finfeat.datasets"`
	RequiredAcks int           `yaml:"required_acks" default:"-1"`
	Compression  string        `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	MaxAttempts  int           `yaml:"max_attempts" default:"3"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
}

type Schedule struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron" default:"0 3 * * *"`
}

var validate = validator.New()

// Load reads a YAML file, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) finish() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("config defaults: %w", err)
	}
	if len(c.Families) == 0 {
		c.Families = DefaultFamilies()
	}
	for i := range c.Families {
		if err := defaults.Set(&c.Families[i]); err != nil {
			return fmt.Errorf("config defaults: %w", err)
		}
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// LoadWithEnv loads an optional .env file, then the YAML config, then
// applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("FETCH_SOURCE"); v != "" {
		c.Fetch.Source = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		c.Pipeline.OutputDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate runs struct tags and the cross-field checks.
func (c *Config) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		errs = append(errs, err)
	}
	seen := make(map[string]struct{}, len(c.Families))
	for _, f := range c.Families {
		if _, dup := seen[f.Name]; dup {
			errs = append(errs, fmt.Errorf("families: duplicate name %q", f.Name))
		}
		seen[f.Name] = struct{}{}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers required when kafka.enabled"))
	}
	if c.Schedule.Enabled && !c.Server.Enabled {
		errs = append(errs, errors.New("schedule.enabled requires server.enabled"))
	}
	return errors.Join(errs...)
}

// UseClickHouse reports whether a ClickHouse client is needed.
func (c *Config) UseClickHouse() bool {
	return c.ClickHouse.Enabled || c.Fetch.Source == "clickhouse"
}

// Family returns the named family.
func (c *Config) Family(name string) (Family, bool) {
	for _, f := range c.Families {
		if f.Name == name {
			return f, true
		}
	}
	return Family{}, false
}

var (
	intradayCoins = []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT"}
	dailyCoins    = []string{
		"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT",
		"ADAUSDT", "DOGEUSDT", "AVAXUSDT", "DOTUSDT", "LINKUSDT",
	}
)

// DefaultFamilies are used when the config declares none.
func DefaultFamilies() []Family {
	return []Family{
		{
			Name: "short_5m", Scheme: "short_horizon", Timeframe: "5m", Candles: 5000, Type: "lstm",
			Instruments: append([]string(nil), intradayCoins...),
			Label:       Label{Kind: "fixed", Horizon: 1, Threshold: 0.002},
		},
		{
			Name: "general_15m", Scheme: "general", Timeframe: "15m", Candles: 3000, Type: "general",
			Instruments: append([]string(nil), dailyCoins...),
			Label:       Label{Kind: "percentile", Horizon: 3},
		},
		{
			Name: "general_1d", Scheme: "daily", Timeframe: "1d", Candles: 500, Type: "long_term",
			Instruments: append([]string(nil), dailyCoins...),
			Label:       Label{Kind: "binary", Horizon: 1},
			Calibration: "label_smoothing_0.1",
		},
		{
			Name: "general_7d", Scheme: "daily", Timeframe: "1d", Candles: 500, Type: "long_term",
			Instruments: append([]string(nil), dailyCoins...),
			Label:       Label{Kind: "binary", Horizon: 7},
			Calibration: "label_smoothing_0.1",
		},
		{
			Name: "pattern_5m", Scheme: "pattern", Timeframe: "5m", Candles: 5000, Type: "transformer",
			Instruments: append([]string(nil), intradayCoins...),
			Label:       Label{Kind: "fixed", Horizon: 10, Threshold: 0.005},
			Calibration: "label_smoothing_0.1",
		},
	}
}
