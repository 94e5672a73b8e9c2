package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pazars/grabeklis/pkg/config"
)

var riga = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Riga")
	if err != nil {
		panic(err)
	}
	return loc
}()

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(config.New())
	require.NoError(t, err)

	assert.Equal(t, "lsm", cfg.SpiderName)
	assert.Equal(t, "https://www.lsm.lv/sitemap.xml", cfg.SitemapURL)
	assert.Equal(t, "/raksts/", cfg.ArticleRule)
	assert.Equal(t, 1<<20, cfg.BatchSizeBytes)
	assert.Equal(t, 250*time.Millisecond, cfg.CrawlDelay)
	assert.Equal(t, 30*time.Second, cfg.CrawlTimeout)
	assert.True(t, cfg.MidnightGuard)
	assert.Equal(t, "colly", cfg.Fetcher)
	assert.Equal(t, filepath.Join("data", "lsm"), cfg.SpiderDir())
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("MAX_ITEMS", "25")
	t.Setenv("DRY_RUN", "true")
	t.Setenv("CRAWL_DELAY", "2s")
	t.Setenv("FETCHER", "chromedp")
	t.Setenv("DT_FROM", "20231010120000")

	cfg, err := config.Load(config.New())
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.MaxItems)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, 2*time.Second, cfg.CrawlDelay)
	assert.Equal(t, "chromedp", cfg.Fetcher)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"DT_FROM", "2023-10-10"},
		{"FETCHER", "curl"},
		{"SCRAPE_DAYS", "-1"},
		{"CRAWL_PARALLELISM", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := config.Load(config.New())
			assert.Error(t, err)
		})
	}
}

func TestLoadDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("GRABEKLIS_TEST_SPIDER=from-dotenv\n"), 0o600))

	t.Setenv("USE_DOTENV", "false")
	require.NoError(t, config.LoadDotenv(path))
	_, set := os.LookupEnv("GRABEKLIS_TEST_SPIDER")
	assert.False(t, set)

	t.Setenv("USE_DOTENV", "true")
	t.Setenv("GRABEKLIS_TEST_SPIDER", "")
	os.Unsetenv("GRABEKLIS_TEST_SPIDER")
	require.NoError(t, config.LoadDotenv(path))
	assert.Equal(t, "from-dotenv", os.Getenv("GRABEKLIS_TEST_SPIDER"))
}

func TestStartFrom(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 15, 30, 0, 0, riga)

	cfg := &config.Config{DTFrom: "20231010120000", ScrapeDays: 2}
	from, ok := cfg.StartFrom(now, riga)
	require.True(t, ok)
	assert.Equal(t, time.Date(2023, 10, 10, 12, 0, 0, 0, riga), from)

	cfg = &config.Config{ScrapeDays: 2}
	from, ok = cfg.StartFrom(now, riga)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 2, 28, 0, 0, 0, 0, riga), from)

	_, ok = (&config.Config{}).StartFrom(now, riga)
	assert.False(t, ok)
}
