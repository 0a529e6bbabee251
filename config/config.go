// Package config loads the signal engine configuration from environment
// variables (optionally seeded from a .env file) and an optional YAML
// watch-list file.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"supertrend-engine/internal/model"
	"supertrend-engine/internal/pipeline"
	"supertrend-engine/internal/strategy"
)

// Config holds all application configuration.
type Config struct {
	// Infrastructure
	RedisAddr     string // empty disables Redis
	RedisPassword string
	RedisDB       int
	SnapshotKey   string
	SQLitePath    string
	MetricsAddr   string
	APIAddr       string // empty disables the HTTP API
	ExportDir     string // empty disables the CSV archive

	// Tick feed
	FeedURL string

	// Watch-list
	WatchlistFile string
	Instruments   []model.Instrument
	Holidays      []string // extra YYYY-MM-DD market holidays

	// Pipeline
	Pipeline pipeline.Config

	// Evaluator
	DoubleBuyOpensTrade bool
	CrossingOnClose     bool

	// Checkpointing and warm-up
	SnapshotInterval time.Duration
	SeedCandles      int

	// Notification
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string

	LogLevel string
}

// watchlistFile is the YAML layout of WATCHLIST_FILE:
//
//	instruments:
//	  - {id: "26009", symbol: BANKNIFTY, exchange: NSE}
//	window_size: 210
//	supertrends: [{period: 21, multiplier: 3}, {period: 13, multiplier: 2}, {period: 8, multiplier: 1}]
//	rsi_periods: [13, 21, 34]
//	holidays: ["2026-03-03"]
//
// Indicator fields left out keep their environment values.
type watchlistFile struct {
	Instruments []model.Instrument `yaml:"instruments"`
	WindowSize  int                `yaml:"window_size"`
	SuperTrends []pipeline.STSpec  `yaml:"supertrends"`
	RSIPeriods  []int              `yaml:"rsi_periods"`
	Holidays    []string           `yaml:"holidays"`
}

// Load reads a .env file if present, then the environment, then the
// watch-list file named by WATCHLIST_FILE.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[config] .env not loaded: %v", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current environment.
func FromEnv() (*Config, error) {
	pc := pipeline.DefaultConfig()

	c := &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SnapshotKey:   getEnv("SNAPSHOT_KEY", "snapshot:sigengine"),
		SQLitePath:    getEnv("SQLITE_PATH", "data/sigengine.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		APIAddr:       getEnv("API_ADDR", ":8080"),
		ExportDir:     getEnv("EXPORT_DIR", ""),
		FeedURL:       getEnv("FEED_URL", "ws://localhost:9001/ws"),
		WatchlistFile: getEnv("WATCHLIST_FILE", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if c.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if pc.WindowSize, err = getInt("WINDOW_SIZE", pc.WindowSize); err != nil {
		return nil, err
	}
	if v := os.Getenv("SUPERTRENDS"); v != "" {
		if pc.SuperTrends, err = ParseSuperTrends(v); err != nil {
			return nil, err
		}
	}
	if v := os.Getenv("RSI_PERIODS"); v != "" {
		if pc.RSIPeriods, err = parseInts(v); err != nil {
			return nil, fmt.Errorf("RSI_PERIODS: %w", err)
		}
	}
	secs, err := getInt("SNAPSHOT_INTERVAL_SEC", 30)
	if err != nil {
		return nil, err
	}
	c.SnapshotInterval = time.Duration(secs) * time.Second
	if c.SeedCandles, err = getInt("SEED_CANDLES", 300); err != nil {
		return nil, err
	}
	if c.DoubleBuyOpensTrade, err = getBool("DOUBLE_BUY_OPENS_TRADE", false); err != nil {
		return nil, err
	}
	if c.CrossingOnClose, err = getBool("CROSSING_ON_CLOSE", false); err != nil {
		return nil, err
	}
	if v := os.Getenv("HOLIDAYS"); v != "" {
		c.Holidays = splitList(v)
	}

	if c.WatchlistFile != "" {
		if err := c.loadWatchlist(c.WatchlistFile, &pc); err != nil {
			return nil, err
		}
	}
	if len(c.Instruments) == 0 {
		if c.Instruments, err = ParseWatchlist(getEnv("WATCHLIST", "")); err != nil {
			return nil, err
		}
	}
	c.Pipeline = pc
	return c, nil
}

func (c *Config) loadWatchlist(path string, pc *pipeline.Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open watch-list: %w", err)
	}
	defer file.Close()

	var wl watchlistFile
	if err := yaml.NewDecoder(file).Decode(&wl); err != nil {
		return fmt.Errorf("decode watch-list %s: %w", path, err)
	}

	c.Instruments = wl.Instruments
	c.Holidays = append(c.Holidays, wl.Holidays...)
	if wl.WindowSize > 0 {
		pc.WindowSize = wl.WindowSize
	}
	if len(wl.SuperTrends) > 0 {
		pc.SuperTrends = wl.SuperTrends
	}
	if len(wl.RSIPeriods) > 0 {
		pc.RSIPeriods = wl.RSIPeriods
	}
	log.Printf("[config] loaded %d instruments from %s", len(c.Instruments), path)
	return nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if len(c.Instruments) == 0 {
		return errors.New("empty watch-list: set WATCHLIST or WATCHLIST_FILE")
	}
	seen := make(map[string]bool, len(c.Instruments))
	for _, inst := range c.Instruments {
		if inst.ID == "" {
			return errors.New("watch-list entry without id")
		}
		if seen[inst.ID] {
			return fmt.Errorf("duplicate instrument %s in watch-list", inst.ID)
		}
		seen[inst.ID] = true
	}
	if c.Pipeline.WindowSize < 2 {
		return fmt.Errorf("WINDOW_SIZE must be >= 2, got %d", c.Pipeline.WindowSize)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	if c.SnapshotInterval <= 0 {
		return fmt.Errorf("SNAPSHOT_INTERVAL_SEC must be positive")
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		return errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	return nil
}

// EvaluatorOptions returns the evaluator options for this configuration.
func (c *Config) EvaluatorOptions() strategy.Options {
	opts := strategy.DefaultOptions()
	opts.DoubleBuyOpensTrade = c.DoubleBuyOpensTrade
	opts.CrossingOnClose = c.CrossingOnClose
	return opts
}

// ParseWatchlist parses "id:symbol[:exchange],..." entries. A bare id is allowed.
func ParseWatchlist(s string) ([]model.Instrument, error) {
	var out []model.Instrument
	for _, entry := range splitList(s) {
		parts := strings.Split(entry, ":")
		if len(parts) > 3 || parts[0] == "" {
			return nil, fmt.Errorf("invalid watch-list entry %q", entry)
		}
		inst := model.Instrument{ID: parts[0]}
		if len(parts) > 1 {
			inst.Symbol = parts[1]
		}
		if len(parts) > 2 {
			inst.Exchange = parts[2]
		}
		out = append(out, inst)
	}
	return out, nil
}

// ParseSuperTrends parses "period:multiplier,..." in slow, mid, fast order.
func ParseSuperTrends(s string) ([]pipeline.STSpec, error) {
	var out []pipeline.STSpec
	for _, entry := range splitList(s) {
		p, m, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("SUPERTRENDS: entry %q is not period:multiplier", entry)
		}
		period, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("SUPERTRENDS: period %q: %w", p, err)
		}
		mult, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return nil, fmt.Errorf("SUPERTRENDS: multiplier %q: %w", m, err)
		}
		out = append(out, pipeline.STSpec{Period: period, Multiplier: mult})
	}
	return out, nil
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, p := range splitList(s) {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
