// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/codesight-dev/codesight/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	Scheduler SchedulerConfig
	Generator GeneratorConfig
	Sandbox   SandboxConfig
	SignalLog SignalLogConfig
}

// SchedulerConfig holds the intervention scheduler thresholds. All windows
// are configuration, not behavior: product variants disagree on values, so
// the canonical defaults below are a deliberate choice (see DESIGN.md).
type SchedulerConfig struct {
	PauseThreshold      time.Duration
	LongPauseThreshold  time.Duration
	NoProgressThreshold time.Duration
	GracePeriod         time.Duration
	ChallengeCooldown   time.Duration
	GeneratorTimeout    time.Duration
	PauseTick           time.Duration
	NoProgressTick      time.Duration
	MinCodeChangeChars  int
	MinCodeLengthChars  int
	HintQuota           int // domain.UnboundedQuota for no limit
	FailureThreshold    int
}

// GeneratorConfig configures the question/hint generator collaborator.
type GeneratorConfig struct {
	APIKey string
	Model  string
}

// SandboxConfig configures the code execution sandbox.
type SandboxConfig struct {
	Image          string
	Runtime        string // Docker runtime: "" = default (runc), "runsc" = gVisor
	PerTestTimeout time.Duration
}

// SignalLogConfig controls the NDJSON signal ledger.
type SignalLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("SIGNAL_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	quota, err := parseQuota(getEnv("HINT_QUOTA", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid HINT_QUOTA: %w", err)
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/assessments.db"),
		Scheduler: SchedulerConfig{
			PauseThreshold:      getEnvMs("PAUSE_THRESHOLD_MS", 15*time.Second),
			LongPauseThreshold:  getEnvMs("LONG_PAUSE_THRESHOLD_MS", 45*time.Second),
			NoProgressThreshold: getEnvMs("NO_PROGRESS_THRESHOLD_MS", 5*time.Minute),
			GracePeriod:         getEnvMs("GRACE_PERIOD_MS", 30*time.Second),
			ChallengeCooldown:   getEnvMs("CHALLENGE_COOLDOWN_MS", 2*time.Minute),
			GeneratorTimeout:    getEnvMs("GENERATOR_TIMEOUT_MS", 10*time.Second),
			PauseTick:           getEnvMs("PAUSE_TICK_MS", 2*time.Second),
			NoProgressTick:      getEnvMs("NO_PROGRESS_TICK_MS", 30*time.Second),
			MinCodeChangeChars:  getEnvInt("MIN_CODE_CHANGE_CHARS", 20),
			MinCodeLengthChars:  getEnvInt("MIN_CODE_LENGTH_CHARS", 30),
			HintQuota:           quota,
			FailureThreshold:    getEnvInt("FAILURE_THRESHOLD", 2),
		},
		Generator: GeneratorConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		Sandbox: SandboxConfig{
			Image:          getEnv("SANDBOX_IMAGE", "codesight-sandbox:latest"),
			Runtime:        getEnv("SANDBOX_RUNTIME", ""),
			PerTestTimeout: getEnvMs("SANDBOX_TEST_TIMEOUT_MS", 5*time.Second),
		},
		SignalLog: SignalLogConfig{
			Enabled:   getEnvBool("SIGNAL_LOG_ENABLED", true),
			Dir:       getEnv("SIGNAL_LOG_DIR", "./data/signals"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SignalLog.Dir == "" {
		return fmt.Errorf("SIGNAL_LOG_DIR cannot be empty")
	}
	return c.Scheduler.Validate()
}

// Validate checks the scheduler thresholds for internal consistency.
func (c *SchedulerConfig) Validate() error {
	if c.PauseThreshold <= 0 {
		return fmt.Errorf("PAUSE_THRESHOLD_MS must be > 0")
	}
	if c.LongPauseThreshold <= c.PauseThreshold {
		return fmt.Errorf("LONG_PAUSE_THRESHOLD_MS must exceed PAUSE_THRESHOLD_MS")
	}
	if c.NoProgressThreshold <= 0 {
		return fmt.Errorf("NO_PROGRESS_THRESHOLD_MS must be > 0")
	}
	if c.GracePeriod < 0 {
		return fmt.Errorf("GRACE_PERIOD_MS cannot be negative")
	}
	if c.ChallengeCooldown <= 0 {
		return fmt.Errorf("CHALLENGE_COOLDOWN_MS must be > 0")
	}
	if c.GeneratorTimeout <= 0 {
		return fmt.Errorf("GENERATOR_TIMEOUT_MS must be > 0")
	}
	if c.PauseTick <= 0 || c.NoProgressTick <= 0 {
		return fmt.Errorf("detector tick intervals must be > 0")
	}
	if c.HintQuota < 0 && c.HintQuota != domain.UnboundedQuota {
		return fmt.Errorf("HINT_QUOTA must be >= 0 or \"unbounded\"")
	}
	if c.FailureThreshold < 1 {
		return fmt.Errorf("FAILURE_THRESHOLD must be >= 1")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func parseQuota(value string) (int, error) {
	if strings.EqualFold(strings.TrimSpace(value), "unbounded") {
		return domain.UnboundedQuota, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("quota cannot be negative: %d", n)
	}
	return n, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvMs(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Millisecond
}
