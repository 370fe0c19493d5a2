package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Rate limit classes.  Each class owns an independent budget and counter
// namespace so a burst of logins cannot starve session polling.
const (
	ClassLogin    = "login"
	ClassReset    = "password_reset"
	ClassRegister = "register"
	ClassAPI      = "api"
	ClassView     = "view"
	ClassModify   = "modify"
)

// Budget is the number of requests allowed per fixed window.
type Budget struct {
	Limit  int
	Window time.Duration
}

type RateLimitConfig struct {
	Enabled bool
	Prefix  string
	Debug   bool
	Budgets map[string]Budget
}

// defaultBudgets mirrors the production budgets for each class.
var defaultBudgets = map[string]Budget{
	ClassLogin:    {Limit: 5, Window: time.Hour},
	ClassReset:    {Limit: 5, Window: time.Hour},
	ClassRegister: {Limit: 50, Window: 24 * time.Hour},
	ClassAPI:      {Limit: 100, Window: 15 * time.Minute},
	ClassView:     {Limit: 200, Window: 15 * time.Minute},
	ClassModify:   {Limit: 50, Window: 15 * time.Minute},
}

// LoadRateLimitConfig reads RATE_LIMIT_<CLASS>_LIMIT and
// RATE_LIMIT_<CLASS>_WINDOW overrides on top of the defaults.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled: envBool("RATE_LIMIT_ENABLED", true),
		Prefix:  envStr("RATE_LIMIT_PREFIX", "rl"),
		Debug:   envBool("RATE_LIMIT_DEBUG", false),
		Budgets: make(map[string]Budget, len(defaultBudgets)),
	}
	for class, def := range defaultBudgets {
		env := "RATE_LIMIT_" + strings.ToUpper(class)
		b := Budget{
			Limit:  envInt(env+"_LIMIT", def.Limit),
			Window: envDur(env+"_WINDOW", def.Window),
		}
		if b.Limit < 1 {
			b.Limit = def.Limit
		}
		if b.Window <= 0 {
			b.Window = def.Window
		}
		cfg.Budgets[class] = b
	}
	return cfg
}

// Budget returns the configured budget for class, falling back to the
// generic API budget for unknown classes.
func (c RateLimitConfig) Budget(class string) Budget {
	if b, ok := c.Budgets[class]; ok {
		return b
	}
	if b, ok := defaultBudgets[class]; ok {
		return b
	}
	return defaultBudgets[ClassAPI]
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
