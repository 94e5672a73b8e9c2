package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DTFromLayout is the layout of the DT_FROM override.
const DTFromLayout = "20060102150405"

// Config holds the application configuration.
type Config struct {
	SpiderName  string `mapstructure:"SPIDER_NAME"`
	DataDir     string `mapstructure:"DATA_DIR"`
	SitemapURL  string `mapstructure:"SITEMAP_URL"`
	ArticleRule string `mapstructure:"ARTICLE_RULE"`

	DTFrom         string `mapstructure:"DT_FROM"`
	ScrapeDays     int    `mapstructure:"SCRAPE_DAYS"`
	MaxItems       int    `mapstructure:"MAX_ITEMS"`
	DryRun         bool   `mapstructure:"DRY_RUN"`
	BatchSizeBytes int    `mapstructure:"BATCH_SIZE_BYTES"`
	MergePolicy    string `mapstructure:"MERGE_POLICY"`
	MidnightGuard  bool   `mapstructure:"MIDNIGHT_GUARD"`

	Fetcher          string        `mapstructure:"FETCHER"`
	CrawlParallelism int           `mapstructure:"CRAWL_PARALLELISM"`
	CrawlDelay       time.Duration `mapstructure:"CRAWL_DELAY"`
	CrawlTimeout     time.Duration `mapstructure:"CRAWL_TIMEOUT"`
	UserAgent        string        `mapstructure:"USER_AGENT"`

	PostgresURL   string `mapstructure:"POSTGRES_URL"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogEncoding string `mapstructure:"LOG_ENCODING"`
	ServerPort  string `mapstructure:"SERVER_PORT"`
	Schedule    string `mapstructure:"SCHEDULE"`
}

var defaults = map[string]any{
	"SPIDER_NAME":       "lsm",
	"DATA_DIR":          "data",
	"SITEMAP_URL":       "https://www.lsm.lv/sitemap.xml",
	"ARTICLE_RULE":      "/raksts/",
	"DT_FROM":           "",
	"SCRAPE_DAYS":       0,
	"MAX_ITEMS":         0,
	"DRY_RUN":           false,
	"BATCH_SIZE_BYTES":  1 << 20,
	"MERGE_POLICY":      "keep_existing",
	"MIDNIGHT_GUARD":    true,
	"FETCHER":           "colly",
	"CRAWL_PARALLELISM": 8,
	"CRAWL_DELAY":       "250ms",
	"CRAWL_TIMEOUT":     "30s",
	"USER_AGENT":        "",
	"POSTGRES_URL":      "",
	"REDIS_ADDR":        "",
	"REDIS_PASSWORD":    "",
	"REDIS_DB":          0,
	"LOG_LEVEL":         "info",
	"LOG_ENCODING":      "json",
	"SERVER_PORT":       "8080",
	"SCHEDULE":          "0 */6 * * *",
}

// New returns a viper instance with defaults and environment binding. Keys
// that are not set anywhere else come from defaults.
func New() *viper.Viper {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()
	return v
}

// LoadDotenv loads .env into the process environment when USE_DOTENV=true.
// Variables already set in the environment win.
func LoadDotenv(files ...string) error {
	if !strings.EqualFold(os.Getenv("USE_DOTENV"), "true") {
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load dotenv: %w", err)
	}
	return nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be caught by decoding.
func (c *Config) Validate() error {
	if c.SpiderName == "" {
		return fmt.Errorf("SPIDER_NAME must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR must not be empty")
	}
	if c.DTFrom != "" {
		if _, err := time.Parse(DTFromLayout, c.DTFrom); err != nil {
			return fmt.Errorf("DT_FROM %q must be YYYYMMDDHHMMSS: %w", c.DTFrom, err)
		}
	}
	if c.ScrapeDays < 0 {
		return fmt.Errorf("SCRAPE_DAYS must be >= 0, got %d", c.ScrapeDays)
	}
	if c.MaxItems < 0 {
		return fmt.Errorf("MAX_ITEMS must be >= 0, got %d", c.MaxItems)
	}
	switch c.Fetcher {
	case "colly", "chromedp":
	default:
		return fmt.Errorf("FETCHER must be colly or chromedp, got %q", c.Fetcher)
	}
	if c.CrawlParallelism < 1 {
		return fmt.Errorf("CRAWL_PARALLELISM must be >= 1, got %d", c.CrawlParallelism)
	}
	return nil
}

// StartFrom resolves the crawl cut-off override: DT_FROM wins, then
// SCRAPE_DAYS as midnight N days before now. ok is false when neither is set
// and the archive watermark should be used.
func (c *Config) StartFrom(now time.Time, loc *time.Location) (from time.Time, ok bool) {
	if c.DTFrom != "" {
		t, err := time.ParseInLocation(DTFromLayout, c.DTFrom, loc)
		if err == nil {
			return t, true
		}
	}
	if c.ScrapeDays > 0 {
		d := now.In(loc).AddDate(0, 0, -c.ScrapeDays)
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc), true
	}
	return time.Time{}, false
}

// SpiderDir is <DATA_DIR>/<SPIDER_NAME>.
func (c *Config) SpiderDir() string {
	return filepath.Join(c.DataDir, c.SpiderName)
}
