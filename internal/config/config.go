package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken string           `yaml:"discord_token"`
	DataDir      string           `yaml:"data_dir"`
	DatabasePath string           `yaml:"database_path"`
	LogLevel     string           `yaml:"log_level"`
	AlertChannel string           `yaml:"alert_channel"`
	Health       HealthConfig     `yaml:"health"`
	Queue        QueueConfig      `yaml:"queue"`
	Gate         GateConfig       `yaml:"gate"`
	Risk         RiskConfig       `yaml:"risk"`
	Escalation   EscalationConfig `yaml:"escalation"`
	Classifier   ClassifierConfig `yaml:"classifier"`
	Scam         ScamConfig       `yaml:"scam"`
	Actions      ActionsConfig    `yaml:"actions"`
}

type ActionsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type QueueConfig struct {
	MaxSize              int `yaml:"max_size"`
	BatchIntervalSeconds int `yaml:"batch_interval_seconds"`
	SizeTrigger          int `yaml:"size_trigger"`
	MaxRetries           int `yaml:"max_retries"`
}

type GateConfig struct {
	NewAccountDays    int      `yaml:"new_account_days"`
	RealtimeRiskScore int      `yaml:"realtime_risk_score"`
	MentionLimit      int      `yaml:"mention_limit"`
	AllowedDomains    []string `yaml:"allowed_domains"`
	BlockedDomains    []string `yaml:"blocked_domains"`
}

type RiskConfig struct {
	MaxHistory int `yaml:"max_history"`
}

type EscalationConfig struct {
	WindowHours    int `yaml:"window_hours"`
	MaxAnalysisLog int `yaml:"max_analysis_log"`
	MaxOffenses    int `yaml:"max_offenses"`
}

type ClassifierConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RatePerMinute  float64 `yaml:"rate_per_minute"`
	Burst          int     `yaml:"burst"`
}

type ScamConfig struct {
	Enabled             bool `yaml:"enabled"`
	FlagSameDayAccounts bool `yaml:"flag_same_day_accounts"`
	FlagThisYear        bool `yaml:"flag_this_year"`
	NewAccountDays      int  `yaml:"new_account_days"`
}

func DefaultConfig() Config {
	return Config{
		DataDir:      "/data",
		DatabasePath: "/data/moderation.db",
		LogLevel:     "info",
		Health:       HealthConfig{Enabled: false, Addr: ":8080"},
		Queue: QueueConfig{
			MaxSize:              200,
			BatchIntervalSeconds: 60,
			SizeTrigger:          50,
			MaxRetries:           3,
		},
		Gate: GateConfig{
			NewAccountDays:    7,
			RealtimeRiskScore: 50,
			MentionLimit:      5,
		},
		Risk:       RiskConfig{MaxHistory: 50},
		Escalation: EscalationConfig{WindowHours: 24, MaxAnalysisLog: 100, MaxOffenses: 50},
		Classifier: ClassifierConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 30,
			RatePerMinute:  20,
			Burst:          2,
		},
		Actions: ActionsConfig{Enabled: true},
		Scam: ScamConfig{
			Enabled:             true,
			FlagSameDayAccounts: true,
			FlagThisYear:        false,
			NewAccountDays:      7,
		},
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.DataDir = envString("DATA_DIR", cfg.DataDir)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.AlertChannel = envString("ALERT_CHANNEL", cfg.AlertChannel)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Queue.MaxSize = envInt("QUEUE_MAX_SIZE", cfg.Queue.MaxSize)
	cfg.Queue.BatchIntervalSeconds = envInt("BATCH_INTERVAL_SECONDS", cfg.Queue.BatchIntervalSeconds)
	cfg.Queue.SizeTrigger = envInt("BATCH_SIZE_TRIGGER", cfg.Queue.SizeTrigger)
	cfg.Queue.MaxRetries = envInt("BATCH_MAX_RETRIES", cfg.Queue.MaxRetries)
	cfg.Gate.NewAccountDays = envInt("GATE_NEW_ACCOUNT_DAYS", cfg.Gate.NewAccountDays)
	cfg.Gate.RealtimeRiskScore = envInt("GATE_REALTIME_RISK", cfg.Gate.RealtimeRiskScore)
	cfg.Gate.MentionLimit = envInt("GATE_MENTION_LIMIT", cfg.Gate.MentionLimit)
	cfg.Gate.AllowedDomains = envList("GATE_ALLOWED_DOMAINS", cfg.Gate.AllowedDomains)
	cfg.Gate.BlockedDomains = envList("GATE_BLOCKED_DOMAINS", cfg.Gate.BlockedDomains)
	cfg.Risk.MaxHistory = envInt("RISK_MAX_HISTORY", cfg.Risk.MaxHistory)
	cfg.Escalation.WindowHours = envInt("ESCALATION_WINDOW_HOURS", cfg.Escalation.WindowHours)
	cfg.Escalation.MaxAnalysisLog = envInt("MAX_ANALYSIS_LOG", cfg.Escalation.MaxAnalysisLog)
	cfg.Escalation.MaxOffenses = envInt("MAX_OFFENSES", cfg.Escalation.MaxOffenses)
	cfg.Classifier.BaseURL = envString("CLASSIFIER_BASE_URL", cfg.Classifier.BaseURL)
	cfg.Classifier.APIKey = envString("CLASSIFIER_API_KEY", cfg.Classifier.APIKey)
	cfg.Classifier.Model = envString("CLASSIFIER_MODEL", cfg.Classifier.Model)
	cfg.Classifier.TimeoutSeconds = envInt("CLASSIFIER_TIMEOUT_SECONDS", cfg.Classifier.TimeoutSeconds)
	cfg.Actions.Enabled = envBool("ACTIONS_ENABLED", cfg.Actions.Enabled)
	cfg.Scam.Enabled = envBool("SCAM_ALERTS_ENABLED", cfg.Scam.Enabled)
	cfg.Scam.FlagSameDayAccounts = envBool("SCAM_FLAG_SAME_DAY", cfg.Scam.FlagSameDayAccounts)
	cfg.Scam.FlagThisYear = envBool("SCAM_FLAG_THIS_YEAR", cfg.Scam.FlagThisYear)
	cfg.Scam.NewAccountDays = envInt("SCAM_NEW_ACCOUNT_DAYS", cfg.Scam.NewAccountDays)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
