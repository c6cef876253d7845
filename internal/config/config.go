// Package config loads newswire settings from defaults, an optional YAML
// file, a .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Keywords []string       `yaml:"keywords"`
	Sources  SourcesConfig  `yaml:"sources"`
	RSS      RSSConfig      `yaml:"rss"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Store    StoreConfig    `yaml:"store"`
	Telegram TelegramConfig `yaml:"telegram"`
	Enrich   EnrichConfig   `yaml:"enrich"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Logging  LoggingConfig  `yaml:"logging"`
	Monitor  MonitorConfig  `yaml:"monitor"`
}

// SourcesConfig covers the keyword search APIs.
type SourcesConfig struct {
	GNewsAPIKey          string        `yaml:"gnews_api_key"`
	NewsAPIKey           string        `yaml:"newsapi_key"`
	MediastackAPIKey     string        `yaml:"mediastack_api_key"`
	GNewsURL             string        `yaml:"gnews_url"`
	NewsAPIURL           string        `yaml:"newsapi_url"`
	MediastackURL        string        `yaml:"mediastack_url"`
	Language             string        `yaml:"language"`
	MaxResultsPerKeyword int           `yaml:"max_results_per_keyword"`
	KeywordPause         time.Duration `yaml:"keyword_pause"`
	// MaxAge drops articles published longer ago than this. Zero disables the window.
	MaxAge         time.Duration `yaml:"max_age"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
}

type RSSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Feeds   []string `yaml:"feeds"`
	// FeedsFile names a YAML file with a feeds list that replaces Feeds.
	FeedsFile string `yaml:"feeds_file"`
}

// DedupConfig holds similarity thresholds. Unset lexical or cosine values
// fall back to SimilarityThreshold; an explicit 0 is kept.
type DedupConfig struct {
	SimilarityThreshold float64  `yaml:"similarity_threshold"`
	LexicalThreshold    *float64 `yaml:"lexical_threshold"`
	CosineThreshold     *float64 `yaml:"cosine_threshold"`
}

// Lexical returns the effective sequence-matching threshold.
func (d DedupConfig) Lexical() float64 {
	if d.LexicalThreshold != nil {
		return *d.LexicalThreshold
	}
	return d.SimilarityThreshold
}

// Cosine returns the effective TF-IDF cosine threshold.
func (d DedupConfig) Cosine() float64 {
	if d.CosineThreshold != nil {
		return *d.CosineThreshold
	}
	return d.SimilarityThreshold
}

const (
	BackendCSV      = "csv"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type StoreConfig struct {
	Backend string `yaml:"backend"`
	// Path is the CSV file or SQLite database.
	Path string `yaml:"path"`
	DSN  string `yaml:"dsn"`
	// LockPath defaults to Path + ".lock".
	LockPath        string        `yaml:"lock_path"`
	LockTimeout     time.Duration `yaml:"lock_timeout"`
	BackupDir       string        `yaml:"backup_dir"`
	CheckpointEvery int           `yaml:"checkpoint_every"`
}

// Lock returns the lock file guarding the store.
func (s StoreConfig) Lock() string {
	if s.LockPath != "" {
		return s.LockPath
	}
	if s.Path != "" {
		return s.Path + ".lock"
	}
	return "newswire.lock"
}

type TelegramConfig struct {
	BotToken       string        `yaml:"bot_token"`
	ChatID         string        `yaml:"chat_id"`
	APIURL         string        `yaml:"api_url"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MessagePause   time.Duration `yaml:"message_pause"`
	// DryRun logs messages instead of sending them.
	DryRun bool `yaml:"dry_run"`
}

type EnrichConfig struct {
	FullText          bool          `yaml:"full_text"`
	ScrapeConcurrency int           `yaml:"scrape_concurrency"`
	ScrapeMaxArticles int           `yaml:"scrape_max_articles"`
	ScrapeTimeout     time.Duration `yaml:"scrape_timeout"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	// MaxRequests caps summaries per run (0 = unlimited).
	MaxRequests int `yaml:"max_requests"`
}

// Enabled reports whether summaries should be generated.
func (g GeminiConfig) Enabled() bool {
	return strings.TrimSpace(g.APIKey) != ""
}

type ScheduleConfig struct {
	Interval   time.Duration `yaml:"interval"`
	RunTimeout time.Duration `yaml:"run_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MonitorConfig struct {
	// Addr enables the /health and /metrics server, e.g. ":8080".
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Keywords: []string{
			"India real estate",
			"India property market",
			"India housing sector",
			"India real estate prices",
			"India residential projects",
			"India new housing projects",
			"India affordable housing",
			"India real estate investment",
			"India property rates",
		},
		Sources: SourcesConfig{
			GNewsURL:             "https://gnews.io/api/v4/search",
			NewsAPIURL:           "https://newsapi.org/v2/everything",
			MediastackURL:        "https://api.mediastack.com/v1/news",
			Language:             "en",
			MaxResultsPerKeyword: 10,
			KeywordPause:         time.Second,
			RequestTimeout:       30 * time.Second,
			RetryAttempts:        3,
			RetryDelay:           2 * time.Second,
		},
		RSS: RSSConfig{
			Enabled: true,
			Feeds: []string{
				"https://timesofindia.indiatimes.com/rssfeedstopstories.cms",
				"https://www.telegraphindia.com/feeds/rss.jsp?id=3",
				"https://www.thestatesman.com/feed",
				"https://indianexpress.com/section/india/feed/",
			},
		},
		Dedup: DedupConfig{SimilarityThreshold: 0.75},
		Store: StoreConfig{
			Backend:         BackendCSV,
			Path:            "real_estate_kolkata.csv",
			LockTimeout:     30 * time.Second,
			CheckpointEvery: 1,
		},
		Telegram: TelegramConfig{
			APIURL:         "https://api.telegram.org",
			Timeout:        60 * time.Second,
			MaxAttempts:    5,
			InitialBackoff: time.Second,
			MessagePause:   5 * time.Second,
		},
		Enrich: EnrichConfig{
			ScrapeConcurrency: 8,
			ScrapeMaxArticles: 10,
			ScrapeTimeout:     15 * time.Second,
			CacheTTL:          6 * time.Hour,
		},
		Gemini: GeminiConfig{
			Model:       "gemini-1.5-flash",
			MaxRequests: 3,
		},
		Schedule: ScheduleConfig{
			Interval:   30 * time.Minute,
			RunTimeout: 5 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info", Format: "auto"},
	}
}

// envOverrides lists the environment variables that override file settings.
// Unset variables leave the loaded value untouched.
type envOverrides struct {
	GNewsAPIKey      string `envconfig:"GNEWS_API_KEY"`
	NewsAPIKey       string `envconfig:"NEWS_API"`
	MediastackAPIKey string `envconfig:"MEDIASTACK_API_KEY"`
	TelegramToken    string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `envconfig:"TELEGRAM_CHAT_ID"`
	OneDriveFolder   string `envconfig:"ONEDRIVE_FOLDER"`
	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY"`

	StoreBackend string `envconfig:"NEWSWIRE_STORE_BACKEND"`
	StorePath    string `envconfig:"NEWSWIRE_STORE_PATH"`
	StoreDSN     string `envconfig:"NEWSWIRE_STORE_DSN"`
	LogLevel     string `envconfig:"NEWSWIRE_LOG_LEVEL"`
	LogFormat    string `envconfig:"NEWSWIRE_LOG_FORMAT"`
	MonitorAddr  string `envconfig:"NEWSWIRE_MONITOR_ADDR"`

	Keywords             []string       `envconfig:"NEWSWIRE_KEYWORDS"`
	SimilarityThreshold  *float64       `envconfig:"NEWSWIRE_SIMILARITY_THRESHOLD"`
	MaxResultsPerKeyword *int           `envconfig:"NEWSWIRE_MAX_RESULTS_PER_KEYWORD"`
	MaxGeminiRequests    *int           `envconfig:"MAX_GEMINI_REQUESTS"`
	Interval             *time.Duration `envconfig:"NEWSWIRE_INTERVAL"`
	DryRun               *bool          `envconfig:"NEWSWIRE_DRY_RUN"`
	Debug                *bool          `envconfig:"DEBUG"`
}

// Load builds the configuration. path may be empty; an explicitly named file
// must exist. envFiles default to ".env" and are optional.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	setString := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	setString(&c.Sources.GNewsAPIKey, env.GNewsAPIKey)
	setString(&c.Sources.NewsAPIKey, env.NewsAPIKey)
	setString(&c.Sources.MediastackAPIKey, env.MediastackAPIKey)
	setString(&c.Telegram.BotToken, env.TelegramToken)
	setString(&c.Telegram.ChatID, env.TelegramChatID)
	setString(&c.Store.BackupDir, env.OneDriveFolder)
	setString(&c.Gemini.APIKey, env.GeminiAPIKey)
	setString(&c.Store.Backend, env.StoreBackend)
	setString(&c.Store.Path, env.StorePath)
	setString(&c.Store.DSN, env.StoreDSN)
	setString(&c.Logging.Level, env.LogLevel)
	setString(&c.Logging.Format, env.LogFormat)
	setString(&c.Monitor.Addr, env.MonitorAddr)

	if len(env.Keywords) > 0 {
		c.Keywords = env.Keywords
	}
	if env.SimilarityThreshold != nil {
		c.Dedup.SimilarityThreshold = *env.SimilarityThreshold
	}
	if env.MaxResultsPerKeyword != nil {
		c.Sources.MaxResultsPerKeyword = *env.MaxResultsPerKeyword
	}
	if env.MaxGeminiRequests != nil {
		c.Gemini.MaxRequests = *env.MaxGeminiRequests
	}
	if env.Interval != nil {
		c.Schedule.Interval = *env.Interval
	}
	if env.DryRun != nil {
		c.Telegram.DryRun = *env.DryRun
	}
	if env.Debug != nil && *env.Debug {
		c.Logging.Level = "debug"
	}
	return nil
}

func (c *Config) Validate() error {
	if len(c.Keywords) == 0 {
		return fmt.Errorf("at least one keyword is required")
	}
	if c.Sources.MaxResultsPerKeyword < 1 {
		return fmt.Errorf("sources.max_results_per_keyword must be >= 1")
	}
	if c.Sources.MaxAge < 0 {
		return fmt.Errorf("sources.max_age must not be negative")
	}
	for name, v := range map[string]float64{
		"dedup.similarity_threshold": c.Dedup.SimilarityThreshold,
		"dedup.lexical_threshold":    c.Dedup.Lexical(),
		"dedup.cosine_threshold":     c.Dedup.Cosine(),
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v", name, v)
		}
	}
	if c.Dedup.SimilarityThreshold == 0 {
		return fmt.Errorf("dedup.similarity_threshold is required")
	}

	switch c.Store.Backend {
	case BackendCSV, BackendSQLite:
		if strings.TrimSpace(c.Store.Path) == "" {
			return fmt.Errorf("store.path is required for the %s backend", c.Store.Backend)
		}
	case BackendPostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("store.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend must be one of csv, sqlite, postgres; got %q", c.Store.Backend)
	}
	if c.Store.CheckpointEvery < 0 {
		return fmt.Errorf("store.checkpoint_every must be >= 0")
	}

	if c.Telegram.MaxAttempts < 1 {
		return fmt.Errorf("telegram.max_attempts must be >= 1")
	}

	if c.Enrich.ScrapeConcurrency < 1 {
		return fmt.Errorf("enrich.scrape_concurrency must be >= 1")
	}
	if c.Schedule.Interval <= 0 {
		return fmt.Errorf("schedule.interval must be positive")
	}

	switch c.Logging.Format {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("logging.format must be auto, text or json; got %q", c.Logging.Format)
	}
	return nil
}

// ValidateDelivery checks the Telegram credentials needed to send messages.
// Dry runs need none.
func (c *Config) ValidateDelivery() error {
	if c.Telegram.DryRun {
		return nil
	}
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.Telegram.ChatID == "" {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required")
	}
	return nil
}
