package shared

import (
	"os"
	"strconv"
	"strings"
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

	// Forecast/pricing collaborator
	CollabBase string
	CollabKey  string
	CollabRPS  int

	// Pipeline knobs — no business constants live inside the services.
	PickupWindows  []int // trailing as-of windows, days
	HorizonDays    int   // stay-date horizon per as-of run
	ErrorThreshold float64
	Workers        int
	DefaultCap     int
	CacheTTL       time.Duration
}

func Load() Config {
	// .env is optional; real env always wins.
	_ = godotenv.Load()

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	atof := func(k string, def float64) float64 {
		if v := os.Getenv(k); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
		return def
	}
	c := Config{
		AppEnv:         env("APP_ENV", "prod"),
		HTTPAddr:       env("HTTP_ADDR", ":8080"),
		MetricsAddr:    env("METRICS_ADDR", ":9100"),
		MySQLDSN:       env("MYSQL_DSN", "root:root@tcp(localhost:3306)/revpilot?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:      env("REDIS_ADDR", "localhost:6379"),
		RedisPass:      env("REDIS_PASSWORD", ""),
		RedisDB:        atoi("REDIS_DB", 0),
		CollabBase:     env("COLLAB_BASE_URL", "http://localhost:9000/v1"),
		CollabKey:      env("COLLAB_API_KEY", ""),
		CollabRPS:      atoi("COLLAB_RPS", 5),
		PickupWindows:  intList("PICKUP_WINDOWS", []int{30, 7, 3}),
		HorizonDays:    atoi("HORIZON_DAYS", 365),
		ErrorThreshold: atof("IMPORT_ERROR_THRESHOLD", 0.05),
		Workers:        atoi("PIPELINE_WORKERS", 4),
		DefaultCap:     atoi("DEFAULT_CAPACITY", 100),
		CacheTTL:       time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
	}
	if c.CollabKey == "" {
		log.Warn().Msg("COLLAB_API_KEY is empty")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func intList(k string, def []int) []int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	var out []int
	for _, p := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			return def
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return def
	}
	return out
}
