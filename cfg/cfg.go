package cfg

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Secret struct {
	value []byte
}

func NewSecret(s string) Secret {
	return Secret{value: []byte(s)}
}
func (s Secret) Value() string {
	return string(s.value)
}
func (s Secret) Wipe() {
	for i := range s.value {
		s.value[i] = 0
	}
}
func (s Secret) String() string {
	return "***REDACTED***"
}

type Cfg struct {
	Port        string
	Environment string
	LogLevel    string

	Backend       string
	DatabasePath  string
	RedisURL      string
	RedisTLS      bool
	RedisUsername string
	RedisPassword Secret
	RedisTimeout  time.Duration

	QuickCodeLength   int
	SessionCodeLength int
	QuickTTL          time.Duration
	SessionTTL        time.Duration
	MaxTextLength     int
	MaxImageBytes     int64
	MaxLivePastes     int
	SweepInterval     time.Duration

	Rate RateCfg

	LRUCacheSize   int
	ContextTimeout time.Duration
	TrustedProxies []string
	AllowedOrigins []string
	MetricsUser    string
	MetricsPass    Secret
}

type RateCfg struct {
	GlobalCapacity     int
	GlobalRefillPerSec float64
	ClientWindow       time.Duration
	ClientMax          int
	CleanupInterval    time.Duration
}

func Load() (*Cfg, error) {
	c := &Cfg{}
	c.Port = getEnv("PORT", "8080")
	c.Environment = getEnv("ENVIRONMENT", "development")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.Backend = getEnv("BACKEND", "memory")
	c.DatabasePath = getEnv("DATABASE_PATH", "copypaste.db")
	c.RedisURL = getEnv("REDIS_URL", "")
	c.RedisTLS = getEnv("REDIS_TLS", "false") == "true"
	c.RedisUsername = getEnv("REDIS_USERNAME", "")
	c.RedisPassword = NewSecret(getEnv("REDIS_PASSWORD", ""))
	var err error
	c.RedisTimeout, err = getDuration("REDIS_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	c.QuickCodeLength, err = getInt("QUICK_CODE_LENGTH", 4)
	if err != nil {
		return nil, err
	}
	c.SessionCodeLength, err = getInt("SESSION_CODE_LENGTH", 5)
	if err != nil {
		return nil, err
	}
	c.QuickTTL, err = getDuration("QUICK_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	c.SessionTTL, err = getDuration("SESSION_TTL", 1*time.Hour)
	if err != nil {
		return nil, err
	}
	c.MaxTextLength, err = getInt("MAX_TEXT_LENGTH", 100000)
	if err != nil {
		return nil, err
	}
	c.MaxImageBytes, err = getInt64("MAX_IMAGE_BYTES", 10*1024*1024)
	if err != nil {
		return nil, err
	}
	c.MaxLivePastes, err = getInt("MAX_LIVE_PASTES", 500)
	if err != nil {
		return nil, err
	}
	c.SweepInterval, err = getDuration("SWEEP_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	c.Rate.GlobalCapacity, err = getInt("RATE_GLOBAL_CAPACITY", 60)
	if err != nil {
		return nil, err
	}
	c.Rate.GlobalRefillPerSec, err = getFloat("RATE_GLOBAL_REFILL_PER_SEC", 2)
	if err != nil {
		return nil, err
	}
	c.Rate.ClientWindow, err = getDuration("RATE_CLIENT_WINDOW", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	c.Rate.ClientMax, err = getInt("RATE_CLIENT_MAX", 300)
	if err != nil {
		return nil, err
	}
	c.Rate.CleanupInterval, err = getDuration("RATE_CLEANUP_INTERVAL", 1*time.Hour)
	if err != nil {
		return nil, err
	}
	c.LRUCacheSize, err = getInt("LRU_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	c.ContextTimeout, err = getDuration("CONTEXT_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	c.TrustedProxies = getSlice("TRUSTED_PROXIES", []string{})
	c.AllowedOrigins = getSlice("ALLOWED_ORIGINS", []string{})
	c.MetricsUser = getEnv("METRICS_USER", "")
	c.MetricsPass = NewSecret(getEnv("METRICS_PASS", ""))
	return c, nil
}

func Validate(c *Cfg) error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.New("PORT must be a number")
	}
	switch c.Backend {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("BACKEND must be one of memory, sqlite, redis (got %q)", c.Backend)
	}
	if c.Backend == "sqlite" && c.DatabasePath == "" {
		return errors.New("DATABASE_PATH is required with BACKEND=sqlite")
	}
	if c.Backend == "redis" {
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required with BACKEND=redis")
		}
		if !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
			return errors.New("REDIS_URL must start with redis:// or rediss://")
		}
		if strings.HasPrefix(c.RedisURL, "rediss://") && !c.RedisTLS {
			return errors.New("REDIS_URL uses rediss:// but REDIS_TLS=false")
		}
	}
	if c.QuickCodeLength < 3 || c.QuickCodeLength > 12 {
		return errors.New("QUICK_CODE_LENGTH must be between 3 and 12")
	}
	if c.SessionCodeLength < 3 || c.SessionCodeLength > 12 {
		return errors.New("SESSION_CODE_LENGTH must be between 3 and 12")
	}
	if c.QuickCodeLength >= c.SessionCodeLength {
		// Read paths tell the two kinds apart by length alone.
		return errors.New("SESSION_CODE_LENGTH must be greater than QUICK_CODE_LENGTH")
	}
	if c.QuickTTL <= 0 || c.SessionTTL <= 0 {
		return errors.New("QUICK_TTL and SESSION_TTL must be positive")
	}
	if c.MaxTextLength <= 0 {
		return errors.New("MAX_TEXT_LENGTH must be positive")
	}
	if c.MaxImageBytes <= 0 {
		return errors.New("MAX_IMAGE_BYTES must be positive")
	}
	if c.MaxImageBytes > 32*1024*1024 {
		return errors.New("MAX_IMAGE_BYTES cannot exceed 32MB")
	}
	if c.MaxLivePastes <= 0 {
		return errors.New("MAX_LIVE_PASTES must be positive")
	}
	if c.SweepInterval < time.Second {
		return errors.New("SWEEP_INTERVAL must be at least 1s")
	}
	if c.Rate.GlobalCapacity <= 0 {
		return errors.New("RATE_GLOBAL_CAPACITY must be positive")
	}
	if c.Rate.GlobalRefillPerSec <= 0 {
		return errors.New("RATE_GLOBAL_REFILL_PER_SEC must be positive")
	}
	if c.Rate.ClientWindow <= 0 || c.Rate.ClientMax <= 0 {
		return errors.New("RATE_CLIENT_WINDOW and RATE_CLIENT_MAX must be positive")
	}
	if c.Rate.CleanupInterval < time.Second {
		return errors.New("RATE_CLEANUP_INTERVAL must be at least 1s")
	}
	if c.LRUCacheSize <= 0 {
		return errors.New("LRU_CACHE_SIZE must be positive")
	}
	for _, proxy := range c.TrustedProxies {
		if strings.Contains(proxy, "/") {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("invalid CIDR in TRUSTED_PROXIES: %s", proxy)
			}
		} else {
			if net.ParseIP(proxy) == nil {
				return fmt.Errorf("invalid IP in TRUSTED_PROXIES: %s", proxy)
			}
		}
	}
	if c.Environment == "production" {
		if c.MetricsUser == "" || c.MetricsPass.Value() == "" {
			return errors.New("METRICS_USER and METRICS_PASS are required in production")
		}
	}
	return nil
}

func (c *Cfg) Wipe() {
	c.RedisPassword.Wipe()
	c.MetricsPass.Wipe()
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
func getInt(key string, fallback int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getInt64(key string, fallback int64) (int64, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getFloat(key string, fallback float64) (float64, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float for %s: %w", key, err)
	}
	return v, nil
}
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return v, nil
}
func getSlice(key string, fallback []string) []string {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
