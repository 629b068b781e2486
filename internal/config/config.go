package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ----------------------------
	// Environment
	// ----------------------------
	// Environment selects the send-eligibility policy: "development" uses the
	// elapsed-offset window, "production" the fixed daily window.
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// ----------------------------
	// Database
	// ----------------------------
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// ----------------------------
	// Delivery worker
	// ----------------------------
	PollInterval    time.Duration `envconfig:"POLL_INTERVAL" default:"60s"`
	SendTimeout     time.Duration `envconfig:"SEND_TIMEOUT" default:"30s"`
	StaleClaimAfter time.Duration `envconfig:"STALE_CLAIM_AFTER" default:"10m"`
	WorkerCount     int           `envconfig:"WORKER_COUNT" default:"4"`
	RateLimit       int           `envconfig:"RATE_LIMIT" default:"10"`

	// ----------------------------
	// Follow-up policy
	// ----------------------------
	FollowupOffsets []int         `envconfig:"FOLLOWUP_OFFSETS" default:"0,3,8,17,24,30"`
	ElapsedWindow   time.Duration `envconfig:"ELAPSED_WINDOW" default:"2m"`
	SendHour        int           `envconfig:"SEND_HOUR" default:"9"`
	Timezone        string        `envconfig:"TIMEZONE" default:"UTC"`

	// ----------------------------
	// Providers
	// ----------------------------
	OrgDomain       string `envconfig:"ORG_DOMAIN" default:""`
	GmailSMTPHost   string `envconfig:"GMAIL_SMTP_HOST" default:"smtp.gmail.com"`
	GmailSMTPPort   int    `envconfig:"GMAIL_SMTP_PORT" default:"587"`
	OutlookSMTPHost string `envconfig:"OUTLOOK_SMTP_HOST" default:"smtp.office365.com"`
	OutlookSMTPPort int    `envconfig:"OUTLOOK_SMTP_PORT" default:"587"`
	CredentialsFile string `envconfig:"CREDENTIALS_FILE" default:"data/credentials.json"`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort string `envconfig:"API_PORT" default:"8080"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
}

func Load() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return &cfg, err
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
