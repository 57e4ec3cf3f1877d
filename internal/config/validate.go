package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Validate checks values the struct tags cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Feed.Path) == "" {
		return fmt.Errorf("feed.path is required")
	}
	if c.Feed.KeepBackups < 1 {
		return fmt.Errorf("feed.keep_backups must be >= 1 (got %d)", c.Feed.KeepBackups)
	}
	if !strings.HasPrefix(c.Server.FeedRoute, "/") {
		return fmt.Errorf("server.feed_route must start with / (got %q)", c.Server.FeedRoute)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be > 0 (got %d)", c.Server.MaxBodyBytes)
	}
	if c.Cleanup.MaxAgeDays <= 0 {
		return fmt.Errorf("cleanup.max_age_days must be > 0 (got %d)", c.Cleanup.MaxAgeDays)
	}
	if c.Cleanup.LinkWorkers <= 0 {
		return fmt.Errorf("cleanup.link_workers must be > 0 (got %d)", c.Cleanup.LinkWorkers)
	}
	if c.Cleanup.LinkRetries < 0 {
		return fmt.Errorf("cleanup.link_retries must be >= 0 (got %d)", c.Cleanup.LinkRetries)
	}
	if expr := strings.TrimSpace(c.Cleanup.Schedule); expr != "" {
		if err := gocron.NewDefaultCron(false).IsValid(expr, time.UTC, time.Now()); err != nil {
			return fmt.Errorf("cleanup.schedule: invalid cron expression: %w", err)
		}
	}
	if c.SFTP.Port <= 0 || c.SFTP.Port > 65535 {
		return fmt.Errorf("sftp.port out of range (got %d)", c.SFTP.Port)
	}
	if h := c.Admin.PasswordSHA256; h != "" {
		if b, err := hex.DecodeString(h); err != nil || len(b) != 32 {
			return fmt.Errorf("admin.password_sha256 must be 64 hex characters")
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json (got %q)", c.Log.Format)
	}
	return nil
}
