// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Completion transports.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	ContentPath string
	Completion  CompletionConfig
	Email       EmailConfig
	Chat        ChatConfig
	RateLimit   RateLimitConfig
	Transcript  TranscriptConfig
}

// CompletionConfig selects and configures the completion service transport.
type CompletionConfig struct {
	Transport string
	URL       string
	Addr      string
	Timeout   time.Duration
}

// EmailConfig points at the email generation and delivery services.
type EmailConfig struct {
	GenerateURL    string
	SendURL        string
	Timeout        time.Duration
	BannerDwell    time.Duration
	BannerCollapse time.Duration
}

// ChatConfig controls chat session behaviour.
type ChatConfig struct {
	SearchDwell   time.Duration
	SessionTTL    time.Duration
	SweepInterval time.Duration
	VisitorTTL    time.Duration
}

// RateLimitConfig bounds chat submissions per visitor.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// TranscriptConfig controls NDJSON chat transcripts.
type TranscriptConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("TRANSCRIPT_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/portfolio.db"),
		ContentPath: getEnv("CONTENT_PATH", "./content/site.toml"),
		Completion: CompletionConfig{
			Transport: strings.ToLower(getEnv("COMPLETION_TRANSPORT", TransportHTTP)),
			URL:       getEnv("COMPLETION_URL", "http://localhost:3000/api/chat"),
			Addr:      getEnv("COMPLETION_ADDR", "localhost:50051"),
			Timeout:   getEnvDuration("COMPLETION_TIMEOUT", 60*time.Second),
		},
		Email: EmailConfig{
			GenerateURL:    getEnv("EMAIL_GENERATE_URL", "http://localhost:3000/api/generate-email"),
			SendURL:        getEnv("EMAIL_SEND_URL", "http://localhost:3000/api/send-email"),
			Timeout:        getEnvDuration("EMAIL_TIMEOUT", 30*time.Second),
			BannerDwell:    3 * time.Second,
			BannerCollapse: 500 * time.Millisecond,
		},
		Chat: ChatConfig{
			SearchDwell:   getEnvDuration("SEARCH_DWELL", 1500*time.Millisecond),
			SessionTTL:    getEnvDuration("CHAT_SESSION_TTL", 30*time.Minute),
			SweepInterval: time.Minute,
			VisitorTTL:    getEnvDuration("VISITOR_TTL", 30*24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Transcript: TranscriptConfig{
			Enabled:   getEnvBool("TRANSCRIPT_ENABLED", true),
			Dir:       getEnv("TRANSCRIPT_DIR", "./data/transcripts"),
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
	switch c.Completion.Transport {
	case TransportHTTP:
		if c.Completion.URL == "" {
			return fmt.Errorf("COMPLETION_URL cannot be empty")
		}
	case TransportGRPC:
		if c.Completion.Addr == "" {
			return fmt.Errorf("COMPLETION_ADDR cannot be empty")
		}
	default:
		return fmt.Errorf("COMPLETION_TRANSPORT must be %q or %q, got %q", TransportHTTP, TransportGRPC, c.Completion.Transport)
	}
	if c.Email.GenerateURL == "" || c.Email.SendURL == "" {
		return fmt.Errorf("EMAIL_GENERATE_URL and EMAIL_SEND_URL cannot be empty")
	}
	if c.Chat.SearchDwell < 0 {
		return fmt.Errorf("SEARCH_DWELL must be >= 0")
	}
	if c.Chat.SessionTTL <= 0 {
		return fmt.Errorf("CHAT_SESSION_TTL must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.Transcript.Enabled && c.Transcript.Dir == "" {
		return fmt.Errorf("TRANSCRIPT_DIR cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
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

// getEnvDuration accepts Go duration strings ("1.5s") or plain milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
