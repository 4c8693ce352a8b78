package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Env      string
	HTTPAddr string
	BaseURL  string

	DBDSN     string
	JWTSecret string

	LogLevel string

	RateLimitRPM       int
	AccessTokenMinutes int
	MagicCodeTTLMin    int
	InviteTTLDays      int

	SendgridAPIKey string
	EmailFrom      string

	// Seat caps per tier, overriding the built-in table. Keys are normalized
	// tier labels.
	TierStaffCaps map[string]int
	TierAdminCap  int

	// Gross amount credited to the ledger for a referred tenant signup, in
	// cents of the default currency.
	SignupGrossCents int64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Env = strings.TrimSpace(os.Getenv("PK_ENV"))
	if cfg.Env == "" {
		return nil, fmt.Errorf("PK_ENV is required")
	}
	if cfg.Env != "dev" && cfg.Env != "prod" {
		return nil, fmt.Errorf("PK_ENV must be one of: dev, prod (got: %s)", cfg.Env)
	}

	cfg.HTTPAddr = getEnvOrDefault("PK_HTTP_ADDR", ":8080")

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PK_BASE_URL")), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("PK_BASE_URL is required")
	}

	cfg.DBDSN = strings.TrimSpace(os.Getenv("PK_DB_DSN"))
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("PK_DB_DSN is required")
	}

	cfg.JWTSecret = os.Getenv("PK_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("PK_JWT_SECRET is required")
	}
	if cfg.Env == "prod" && len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("PK_JWT_SECRET must be at least 32 characters (currently %d)", len(cfg.JWTSecret))
	}

	cfg.LogLevel = getEnvOrDefault("PK_LOG_LEVEL", "info")
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("PK_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", cfg.LogLevel)
	}

	var err error
	cfg.RateLimitRPM, err = getEnvIntOrDefault("PK_RATE_LIMIT_RPM", 10)
	if err != nil {
		return nil, err
	}

	cfg.AccessTokenMinutes, err = getEnvIntOrDefault("PK_ACCESS_TOKEN_MINUTES", 60)
	if err != nil {
		return nil, err
	}
	if cfg.AccessTokenMinutes <= 0 {
		return nil, fmt.Errorf("PK_ACCESS_TOKEN_MINUTES must be positive (got: %d)", cfg.AccessTokenMinutes)
	}

	cfg.MagicCodeTTLMin, err = getEnvIntOrDefault("PK_MAGIC_CODE_TTL_MINUTES", 10)
	if err != nil {
		return nil, err
	}
	if cfg.MagicCodeTTLMin <= 0 || cfg.MagicCodeTTLMin > 60 {
		return nil, fmt.Errorf("PK_MAGIC_CODE_TTL_MINUTES must be between 1 and 60 (got: %d)", cfg.MagicCodeTTLMin)
	}

	cfg.InviteTTLDays, err = getEnvIntOrDefault("PK_INVITE_TTL_DAYS", 7)
	if err != nil {
		return nil, err
	}
	if cfg.InviteTTLDays <= 0 {
		return nil, fmt.Errorf("PK_INVITE_TTL_DAYS must be positive (got: %d)", cfg.InviteTTLDays)
	}

	cfg.SendgridAPIKey = strings.TrimSpace(os.Getenv("PK_SENDGRID_API_KEY"))
	cfg.EmailFrom = getEnvOrDefault("PK_EMAIL_FROM", "no-reply@postika.app")
	if cfg.Env == "prod" && cfg.SendgridAPIKey == "" {
		return nil, fmt.Errorf("PK_SENDGRID_API_KEY is required in prod")
	}

	cfg.TierStaffCaps, err = parseTierCaps(os.Getenv("PK_TIER_STAFF_CAPS"))
	if err != nil {
		return nil, err
	}

	cfg.TierAdminCap, err = getEnvIntOrDefault("PK_TIER_ADMIN_CAP", 1)
	if err != nil {
		return nil, err
	}
	if cfg.TierAdminCap <= 0 {
		return nil, fmt.Errorf("PK_TIER_ADMIN_CAP must be positive (got: %d)", cfg.TierAdminCap)
	}

	// KES 10,000.00 unless operations override it.
	signupGross, err := getEnvIntOrDefault("PK_SIGNUP_GROSS_CENTS", 1000000)
	if err != nil {
		return nil, err
	}
	if signupGross <= 0 {
		return nil, fmt.Errorf("PK_SIGNUP_GROSS_CENTS must be positive (got: %d)", signupGross)
	}
	cfg.SignupGrossCents = int64(signupGross)

	return cfg, nil
}

// IsDev returns true if running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// RevealSecretsInResponses controls whether magic codes and invite tokens are
// echoed in API responses. Never true outside dev.
func (c *Config) RevealSecretsInResponses() bool {
	return c.IsDev()
}

// RedactedValues returns a map of config values with secrets redacted.
func (c *Config) RedactedValues() map[string]string {
	return map[string]string{
		"PK_ENV":                    c.Env,
		"PK_HTTP_ADDR":              c.HTTPAddr,
		"PK_BASE_URL":               c.BaseURL,
		"PK_DB_DSN":                 redactDSN(c.DBDSN),
		"PK_JWT_SECRET":             "[REDACTED]",
		"PK_LOG_LEVEL":              c.LogLevel,
		"PK_RATE_LIMIT_RPM":         strconv.Itoa(c.RateLimitRPM),
		"PK_ACCESS_TOKEN_MINUTES":   strconv.Itoa(c.AccessTokenMinutes),
		"PK_MAGIC_CODE_TTL_MINUTES": strconv.Itoa(c.MagicCodeTTLMin),
		"PK_INVITE_TTL_DAYS":        strconv.Itoa(c.InviteTTLDays),
		"PK_SENDGRID_API_KEY":       "[REDACTED]",
		"PK_EMAIL_FROM":             c.EmailFrom,
		"PK_TIER_STAFF_CAPS":        fmt.Sprintf("%v", c.TierStaffCaps),
		"PK_TIER_ADMIN_CAP":         strconv.Itoa(c.TierAdminCap),
		"PK_SIGNUP_GROSS_CENTS":     strconv.FormatInt(c.SignupGrossCents, 10),
	}
}

// parseTierCaps parses "sungura=1,swara=5,ndovu=10" into a cap table.
// An empty value returns an empty map, meaning the built-in defaults apply.
func parseTierCaps(value string) (map[string]int, error) {
	caps := make(map[string]int)
	value = strings.TrimSpace(value)
	if value == "" {
		return caps, nil
	}

	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		tier, capStr, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("PK_TIER_STAFF_CAPS entry must be tier=cap (got: %q)", pair)
		}
		tier = strings.ToLower(strings.TrimSpace(tier))
		n, err := strconv.Atoi(strings.TrimSpace(capStr))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("PK_TIER_STAFF_CAPS cap for %q must be a positive integer (got: %q)", tier, capStr)
		}
		caps[tier] = n
	}

	return caps, nil
}

func redactDSN(dsn string) string {
	if start := strings.Index(dsn, "://"); start != -1 {
		if end := strings.Index(dsn[start+3:], "@"); end != -1 {
			return dsn[:start+3] + "[REDACTED]" + dsn[start+3+end:]
		}
	}
	return dsn
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got: %q)", key, value)
	}
	return parsed, nil
}
