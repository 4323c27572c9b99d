package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	CacheTTL    time.Duration
	AdminToken  string

	PlacesBase     string
	PlacesKey      string
	FirecrawlBase  string
	FirecrawlKey   string
	ApifyBase      string
	ApifyToken     string
	ApifyActor     string
	ExternalRPS    int
	EnrichWorkers  int
	EnrichBatch    int
	EnrichPoll     time.Duration
	EnrichReviews  int
	StaleExtractor time.Duration

	// Warnings collected while loading; LogWarnings emits them once the
	// service logger is installed.
	Warnings []string
}

// Load reads .env (when present) and then the process environment. It does
// not log.
func Load() Config {
	var warns []string
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		warns = append(warns, ".env not loaded: "+err.Error())
	}
	atoi := func(k string, def int) int {
		n, warn := parseInt(k, def)
		if warn != "" {
			warns = append(warns, warn)
		}
		return n
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ""),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/directory?parseTime=true&charset=utf8mb4&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RedisDB:     atoi("REDIS_DB", 0),
		CacheTTL:    time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
		AdminToken:  env("ADMIN_TOKEN", ""),

		PlacesBase:     env("GOOGLE_PLACES_BASE_URL", "https://places.googleapis.com/v1"),
		PlacesKey:      env("GOOGLE_PLACES_API_KEY", ""),
		FirecrawlBase:  env("FIRECRAWL_BASE_URL", "https://api.firecrawl.dev/v1"),
		FirecrawlKey:   env("FIRECRAWL_API_KEY", ""),
		ApifyBase:      env("APIFY_BASE_URL", "https://api.apify.com/v2"),
		ApifyToken:     env("APIFY_TOKEN", ""),
		ApifyActor:     env("APIFY_REVIEWS_ACTOR", "compass~google-maps-reviews-scraper"),
		ExternalRPS:    atoi("EXTERNAL_RPS", 5),
		EnrichWorkers:  atoi("ENRICH_WORKERS", 4),
		EnrichBatch:    atoi("ENRICH_BATCH", 20),
		EnrichPoll:     time.Duration(atoi("ENRICH_POLL_SECONDS", 30)) * time.Second,
		EnrichReviews:  atoi("ENRICH_MAX_REVIEWS", 50),
		StaleExtractor: time.Duration(atoi("STALE_EXTRACTION_MINUTES", 60)) * time.Minute,
	}
	if c.AdminToken == "" && !c.IsDev() {
		warns = append(warns, "ADMIN_TOKEN is empty outside dev")
	}
	c.Warnings = warns
	return c
}

func (c Config) LogWarnings() {
	for _, w := range c.Warnings {
		log.Warn().Msg(w)
	}
}

func (c Config) IsDev() bool { return c.AppEnv == "dev" || c.AppEnv == "development" }

func parseInt(k string, def int) (int, string) {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n, ""
		}
		return def, k + "=" + strconv.Quote(v) + " is not an integer, using default"
	}
	return def, ""
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
