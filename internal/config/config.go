package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "PAGEGATE_"

// Config carries every tunable of the service. All values come from
// PAGEGATE_* environment variables; only the DSN and the signing key
// have no usable default.
type Config struct {
	Listen string
	PGDSN  string

	// Security
	SigningKeyB64    string
	TokenTTL         time.Duration
	CookieDomain     string
	DefaultAdminMail string
	DefaultAdminPass string
	FrontendOrigin   string

	// Outbound mail
	SMTPServer   string
	SMTPPort     string
	MailFrom     string
	MailPassword string
	NotifyMail   string

	// Geo resolution
	GeoEndpoint     string
	GeoAccount      string
	GeoLicense      string
	GeoCacheLife    time.Duration
	AccessLogPath   string

	RateBurst  int
	RatePerSec int
}

// Load reads the environment and validates the required fields.
func Load() (Config, error) {
	cfg := Config{
		Listen:           getenv("LISTEN", ":8080"),
		PGDSN:            getenv("PG_DSN", ""),
		SigningKeyB64:    getenv("SIGNING_KEY", ""),
		TokenTTL:         time.Duration(getint("TOKEN_EXPIRE_HOURS", 12)) * time.Hour,
		CookieDomain:     getenv("COOKIE_DOMAIN", "localhost"),
		DefaultAdminMail: getenv("DEFAULT_ADMIN_MAIL", "admin@localhost"),
		DefaultAdminPass: getenv("DEFAULT_ADMIN_PASSWORD", ""),
		FrontendOrigin:   getenv("FRONTEND_ORIGIN", ""),
		SMTPServer:       getenv("SMTP_SERVER", ""),
		SMTPPort:         getenv("SMTP_PORT", "587"),
		MailFrom:         getenv("MAIL_FROM", ""),
		MailPassword:     getenv("MAIL_PASSWORD", ""),
		NotifyMail:       getenv("NOTIFY_MAIL", ""),
		GeoEndpoint:      getenv("GEO_ENDPOINT", ""),
		GeoAccount:       getenv("GEO_ACCOUNT", ""),
		GeoLicense:       getenv("GEO_LICENSE", ""),
		GeoCacheLife:     time.Duration(getint("GEO_CACHE_HOURS", 24)) * time.Hour,
		AccessLogPath:    getenv("ACCESS_LOG", "access.log"),
		RateBurst:        getint("RATE_BURST", 20),
		RatePerSec:       getint("RATE_PER_SEC", 10),
	}

	if cfg.PGDSN == "" {
		return Config{}, errors.New("config: " + envPrefix + "PG_DSN is required")
	}
	if cfg.SigningKeyB64 == "" {
		return Config{}, errors.New("config: " + envPrefix + "SIGNING_KEY is required")
	}
	if cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("config: token lifetime must be positive, got %s", cfg.TokenTTL)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	if v == "" {
		return def
	}
	return v
}

func getint(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
