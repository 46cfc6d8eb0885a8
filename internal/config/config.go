package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnv           = "dev"
	defaultPort          = "8080"
	defaultDBPath        = "./intake.db"
	defaultPhotoDir      = "./media/photos"
	defaultMaxPhotoBytes = 10 << 20
	defaultTelegramAPI   = "https://api.telegram.org"
)

// Config groups application settings sourced from environment variables.
type Config struct {
	Env      string
	Server   Server
	Database Database
	Admin    Admin
	Pricing  Pricing
	Intake   Intake
	Log      Log
	SMTP     SMTP
	Telegram Telegram
	Notify   Notify
}

type Server struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Database struct {
	Path string
}

type Admin struct {
	Email         string
	Password      string
	SessionSecret string
}

// Pricing points at an optional YAML price table. Empty means the built-in table.
type Pricing struct {
	TablePath string
	Currency  string
}

type Intake struct {
	PhotoDir      string
	MaxPhotoBytes int64
}

// Log configures the zap logger. File, when set, adds a rotating file sink.
type Log struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// Enabled reports whether email notifications can be sent.
func (s SMTP) Enabled() bool {
	return s.Host != "" && s.From != "" && len(s.To) > 0
}

type Telegram struct {
	Token        string
	AdminChatIDs []int64
	APIBase      string
	PollTimeout  time.Duration
}

// Enabled reports whether a bot token is configured.
func (t Telegram) Enabled() bool { return t.Token != "" }

type Notify struct {
	Workers    int
	QueueSize  int
	MaxRetries uint64
	Backoff    time.Duration
}

// Load reads environment variables and returns a populated Config.
func Load() Config {
	// Best-effort: production injects real environment variables.
	_ = loadDotEnv(".env")

	cfg := Config{
		Env: envOr("APP_ENV", defaultEnv),
		Server: Server{
			Port:            envOr("PORT", defaultPort),
			ReadTimeout:     envDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    envDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: envDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: Database{Path: envOr("DB_PATH", defaultDBPath)},
		Admin: Admin{
			Email:         os.Getenv("ADMIN_EMAIL"),
			Password:      os.Getenv("ADMIN_PASSWORD"),
			SessionSecret: os.Getenv("SESSION_SECRET"),
		},
		Pricing: Pricing{
			TablePath: os.Getenv("PRICE_TABLE_PATH"),
			Currency:  strings.ToUpper(os.Getenv("PRICE_CURRENCY")),
		},
		Intake: Intake{
			PhotoDir:      envOr("PHOTO_DIR", defaultPhotoDir),
			MaxPhotoBytes: int64(envInt("MAX_PHOTO_BYTES", defaultMaxPhotoBytes)),
		},
		Log: Log{
			Level:      envOr("LOG_LEVEL", "info"),
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  envInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups: envInt("LOG_MAX_BACKUPS", 5),
		},
		SMTP: SMTP{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     envInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
			To:       splitList(os.Getenv("NOTIFY_EMAILS")),
		},
		Telegram: Telegram{
			Token:        os.Getenv("TELEGRAM_BOT_TOKEN"),
			AdminChatIDs: parseChatIDs(os.Getenv("TELEGRAM_ADMIN_CHAT_IDS")),
			APIBase:      envOr("TELEGRAM_API_BASE", defaultTelegramAPI),
			PollTimeout:  envDuration("TELEGRAM_POLL_TIMEOUT", 30*time.Second),
		},
		Notify: Notify{
			Workers:    envInt("NOTIFY_WORKERS", 2),
			QueueSize:  envInt("NOTIFY_QUEUE_SIZE", 64),
			MaxRetries: uint64(max(envInt("NOTIFY_MAX_RETRIES", 3), 0)),
			Backoff:    envDuration("NOTIFY_BACKOFF", 2*time.Second),
		},
	}
	return cfg
}

// IsDev reports whether the process runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.Env) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

// Warnings lists settings that are missing but not fatal.
func (c Config) Warnings() []string {
	var out []string
	if c.Admin.Email == "" {
		out = append(out, "ADMIN_EMAIL is not set")
	}
	if c.Admin.Password == "" {
		out = append(out, "ADMIN_PASSWORD is not set")
	}
	if c.Admin.SessionSecret == "" {
		out = append(out, "SESSION_SECRET is not set")
	}
	if !c.SMTP.Enabled() && c.SMTP.Host != "" {
		out = append(out, "SMTP_HOST is set but SMTP_FROM or NOTIFY_EMAILS is missing")
	}
	if c.Telegram.Enabled() && len(c.Telegram.AdminChatIDs) == 0 {
		out = append(out, "TELEGRAM_ADMIN_CHAT_IDS is empty; only admins stored in the database can use the bot")
	}
	return out
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// envDuration accepts Go duration strings or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' || r == ' ' }) {
		out = append(out, part)
	}
	return out
}

func parseChatIDs(raw string) []int64 {
	var ids []int64
	for _, part := range splitList(raw) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
