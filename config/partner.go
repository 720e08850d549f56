package config

import (
	"os"
	"strings"
	"time"
)

const (
	defaultPartnerKeyHeader = "x-api-key"
	defaultPartnerTimeout   = 30 * time.Second
)

// PartnerConfig describes how to reach the partner pay item feed.
type PartnerConfig struct {
	BaseURL   string
	APIKey    string
	KeyHeader string
	Timeout   time.Duration
	// MaxPages caps pagination for one collection. Zero means no cap.
	MaxPages int
}

// PartnerConfigFromEnv reads:
// - PAYITEM_PARTNER_URL (business external id is appended as-is)
// - PAYITEM_PARTNER_KEY
// - PAYITEM_PARTNER_KEY_HEADER (default x-api-key)
// - PAYITEM_PARTNER_TIMEOUT_SECONDS (default 30)
// - PAYITEM_SYNC_MAX_PAGES (default 0, unbounded)
func PartnerConfigFromEnv() PartnerConfig {
	cfg := PartnerConfig{
		BaseURL:   strings.TrimSpace(os.Getenv("PAYITEM_PARTNER_URL")),
		APIKey:    strings.TrimSpace(os.Getenv("PAYITEM_PARTNER_KEY")),
		KeyHeader: strings.TrimSpace(os.Getenv("PAYITEM_PARTNER_KEY_HEADER")),
		Timeout:   time.Duration(intFromEnv("PAYITEM_PARTNER_TIMEOUT_SECONDS", 0)) * time.Second,
		MaxPages:  intFromEnv("PAYITEM_SYNC_MAX_PAGES", 0),
	}
	if cfg.KeyHeader == "" {
		cfg.KeyHeader = defaultPartnerKeyHeader
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultPartnerTimeout
	}
	if cfg.MaxPages < 0 {
		cfg.MaxPages = 0
	}
	return cfg
}

// SyncTopic is the Pub/Sub topic queued sync runs are published to.
func SyncTopic() string {
	if v := strings.TrimSpace(os.Getenv("PAYITEM_SYNC_TOPIC")); v != "" {
		return v
	}
	return "payitem-sync"
}

// SyncInterval is how often the service schedules every enabled business. Zero disables scheduling.
func SyncInterval() time.Duration {
	return time.Duration(intFromEnv("PAYITEM_SYNC_INTERVAL_MINUTES", 0)) * time.Minute
}

// ArchiveBucket is the GCS bucket collected feeds are archived to. Empty disables archiving.
func ArchiveBucket() string {
	return strings.TrimSpace(os.Getenv("PAYITEM_SYNC_ARCHIVE_BUCKET"))
}
