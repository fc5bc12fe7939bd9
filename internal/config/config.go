// Package config provides runtime configuration values for the service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/price-batch-service/internal/obs"
)

// DefaultSystemPrompt is used when a submission carries no instructions.
const DefaultSystemPrompt = `You are a price research assistant. Answer only with a JSON object with the keys ` +
	`highest_price, highest_price_product, highest_price_source, highest_price_url, ` +
	`lowest_price, lowest_price_product, lowest_price_source, lowest_price_url. ` +
	`Use null for anything you cannot find.`

// Configuration validation errors.
var (
	ErrInvalidRunners     = errors.New("BATCH_RUNNERS must be at least 1")
	ErrInvalidConcurrency = errors.New("ITEM_CONCURRENCY must be at least 1")
	ErrInvalidTimeout     = errors.New("LOOKUP_TIMEOUT_MS must be positive")
	ErrInvalidBus         = errors.New("BUS_BUFFER and BUS_BACKLOG must be positive")
	ErrMissingEndpoint    = errors.New("PRICE_API_URL is required")
)

// Config holds configuration knobs for the HTTP server, lookups and workers.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string

	PriceAPIURL        string
	PriceAPIKey        string
	Model              string
	Temperature        float64
	Currency           string
	SystemPrompt       string
	LookupTimeout      time.Duration
	LookupRPS          float64
	CacheDBPath        string
	CacheTTL           time.Duration
	BatchRunners       int
	ItemConcurrency    int
	BusBuffer          int
	BusBacklog         int
	SSEIdle            time.Duration
	ResultTTL          time.Duration
	SweepInterval      time.Duration
	OutputFilename     string
	UploadMaxBytes     int64
	QueueOutBuffer     int
	QueueHighWatermark int
}

// fileConfig mirrors Config in YAML form. Zero values leave defaults in place.
type fileConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	ShutdownTimeoutSec int    `yaml:"shutdown_timeout_sec"`
	LogLevel           string `yaml:"log_level"`
	PriceAPI           struct {
		URL         string  `yaml:"url"`
		Key         string  `yaml:"key"`
		Model       string  `yaml:"model"`
		Temperature float64 `yaml:"temperature"`
		Currency    string  `yaml:"currency"`
		TimeoutMs   int     `yaml:"timeout_ms"`
		RPS         float64 `yaml:"rps"`
	} `yaml:"price_api"`
	SystemPrompt string `yaml:"system_prompt"`
	Cache        struct {
		DBPath     string `yaml:"db_path"`
		TTLMinutes int    `yaml:"ttl_minutes"`
	} `yaml:"cache"`
	Batch struct {
		Runners         int `yaml:"runners"`
		ItemConcurrency int `yaml:"item_concurrency"`
		ResultTTLSec    int `yaml:"result_ttl_sec"`
		SweepIntervalMs int `yaml:"sweep_interval_ms"`
		HighWatermark   int `yaml:"high_watermark"`
	} `yaml:"batch"`
	Progress struct {
		Buffer    int `yaml:"buffer"`
		Backlog   int `yaml:"backlog"`
		SSEIdleMs int `yaml:"sse_idle_ms"`
	} `yaml:"progress"`
	OutputFilename string `yaml:"output_filename"`
	UploadMaxMB    int    `yaml:"upload_max_mb"`
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatenv(key string, def float64) float64 {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func durenvms(key string, def time.Duration) time.Duration {
	ms := atoienv(key, int(def/time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}

func durenvs(key string, def time.Duration) time.Duration {
	sec := atoienv(key, int(def/time.Second))
	return time.Duration(sec) * time.Second
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		HTTPAddr:           ":8080",
		ShutdownTimeout:    15 * time.Second,
		LogLevel:           "info",
		PriceAPIURL:        "https://api.perplexity.ai/chat/completions",
		PriceAPIKey:        "your_api_key_here",
		Model:              "sonar",
		Temperature:        0.7,
		Currency:           "Korean Won (KRW)",
		SystemPrompt:       DefaultSystemPrompt,
		LookupTimeout:      15 * time.Second,
		CacheTTL:           24 * time.Hour,
		BatchRunners:       1,
		ItemConcurrency:    1,
		BusBuffer:          64,
		BusBacklog:         64,
		SSEIdle:            15 * time.Second,
		ResultTTL:          30 * time.Minute,
		SweepInterval:      time.Minute,
		OutputFilename:     "price_results.xlsx",
		UploadMaxBytes:     32 << 20,
		QueueOutBuffer:     16,
		QueueHighWatermark: 100,
	}
}

// Load collects configuration from .env, an optional YAML file named by
// CONFIG_FILE, and the environment, in increasing precedence.
func Load() Config {
	_ = godotenv.Load(".env")
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			obs.Logger.Warn("config_file_ignored", "path", path, "error", err)
		}
	}
	cfg.applyEnv()
	return cfg
}

// ApplyFile overlays non-zero values from a YAML file.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	setStr(&c.HTTPAddr, fc.HTTPAddr)
	setDur(&c.ShutdownTimeout, fc.ShutdownTimeoutSec, time.Second)
	setStr(&c.LogLevel, fc.LogLevel)
	setStr(&c.PriceAPIURL, fc.PriceAPI.URL)
	setStr(&c.PriceAPIKey, fc.PriceAPI.Key)
	setStr(&c.Model, fc.PriceAPI.Model)
	if fc.PriceAPI.Temperature != 0 {
		c.Temperature = fc.PriceAPI.Temperature
	}
	setStr(&c.Currency, fc.PriceAPI.Currency)
	setDur(&c.LookupTimeout, fc.PriceAPI.TimeoutMs, time.Millisecond)
	if fc.PriceAPI.RPS != 0 {
		c.LookupRPS = fc.PriceAPI.RPS
	}
	setStr(&c.SystemPrompt, fc.SystemPrompt)
	setStr(&c.CacheDBPath, fc.Cache.DBPath)
	setDur(&c.CacheTTL, fc.Cache.TTLMinutes, time.Minute)
	setInt(&c.BatchRunners, fc.Batch.Runners)
	setInt(&c.ItemConcurrency, fc.Batch.ItemConcurrency)
	setDur(&c.ResultTTL, fc.Batch.ResultTTLSec, time.Second)
	setDur(&c.SweepInterval, fc.Batch.SweepIntervalMs, time.Millisecond)
	setInt(&c.QueueHighWatermark, fc.Batch.HighWatermark)
	setInt(&c.BusBuffer, fc.Progress.Buffer)
	setInt(&c.BusBacklog, fc.Progress.Backlog)
	setDur(&c.SSEIdle, fc.Progress.SSEIdleMs, time.Millisecond)
	setStr(&c.OutputFilename, fc.OutputFilename)
	if fc.UploadMaxMB > 0 {
		c.UploadMaxBytes = int64(fc.UploadMaxMB) << 20
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getenv("HTTP_ADDR", c.HTTPAddr)
	c.ShutdownTimeout = durenvs("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	c.PriceAPIURL = getenv("PRICE_API_URL", c.PriceAPIURL)
	c.PriceAPIKey = getenv("PERPLEXITY_API_KEY", c.PriceAPIKey)
	c.Model = getenv("PRICE_MODEL", c.Model)
	c.Temperature = floatenv("PRICE_TEMPERATURE", c.Temperature)
	c.Currency = getenv("PRICE_CURRENCY", c.Currency)
	c.SystemPrompt = getenv("SYSTEM_PROMPT", c.SystemPrompt)
	c.LookupTimeout = durenvms("LOOKUP_TIMEOUT_MS", c.LookupTimeout)
	c.LookupRPS = floatenv("LOOKUP_RPS", c.LookupRPS)
	c.CacheDBPath = getenv("CACHE_DB_PATH", c.CacheDBPath)
	c.CacheTTL = time.Duration(atoienv("CACHE_TTL_MINUTES", int(c.CacheTTL/time.Minute))) * time.Minute
	c.BatchRunners = atoienv("BATCH_RUNNERS", c.BatchRunners)
	c.ItemConcurrency = atoienv("ITEM_CONCURRENCY", c.ItemConcurrency)
	c.BusBuffer = atoienv("BUS_BUFFER", c.BusBuffer)
	c.BusBacklog = atoienv("BUS_BACKLOG", c.BusBacklog)
	c.SSEIdle = durenvms("SSE_IDLE_MS", c.SSEIdle)
	c.ResultTTL = durenvs("RESULT_TTL", c.ResultTTL)
	c.SweepInterval = durenvms("SWEEP_INTERVAL_MS", c.SweepInterval)
	c.OutputFilename = getenv("OUTPUT_FILENAME", c.OutputFilename)
	c.UploadMaxBytes = int64(atoienv("UPLOAD_MAX_MB", int(c.UploadMaxBytes>>20))) << 20
	c.QueueHighWatermark = atoienv("QUEUE_HIGH_WATERMARK", c.QueueHighWatermark)
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	if c.BatchRunners < 1 {
		return ErrInvalidRunners
	}
	if c.ItemConcurrency < 1 {
		return ErrInvalidConcurrency
	}
	if c.LookupTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.BusBuffer < 1 || c.BusBacklog < 1 {
		return ErrInvalidBus
	}
	if c.PriceAPIURL == "" {
		return ErrMissingEndpoint
	}
	return nil
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDur(dst *time.Duration, v int, unit time.Duration) {
	if v != 0 {
		*dst = time.Duration(v) * unit
	}
}
