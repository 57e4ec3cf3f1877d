package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Feed    FeedConfig    `yaml:"feed"`
	Client  ClientConfig  `yaml:"client"`
	Cleanup CleanupConfig `yaml:"cleanup"`
	SFTP    SFTPConfig    `yaml:"sftp"`
	Admin   AdminConfig   `yaml:"admin"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig is the HTTP surface: feed file, persist and admin endpoints.
type ServerConfig struct {
	Addr            string        `yaml:"addr"             env:"SERVER_ADDR"             env-default:":8080"`
	FeedRoute       string        `yaml:"feed_route"       env:"SERVER_FEED_ROUTE"       env-default:"/webinars.json"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"5m"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"   env:"SERVER_MAX_BODY_BYTES"   env-default:"10485760"`
	WatchFeed       bool          `yaml:"watch_feed"       env:"SERVER_WATCH_FEED"       env-default:"true"`
}

// FeedConfig locates the canonical feed file and its backups.
type FeedConfig struct {
	Path        string `yaml:"path"         env:"FEED_PATH"         env-default:"webinars.json"`
	BackupDir   string `yaml:"backup_dir"   env:"FEED_BACKUP_DIR"`
	KeepBackups int    `yaml:"keep_backups" env:"FEED_KEEP_BACKUPS" env-default:"5"`
}

// ClientConfig drives the directory client commands.
type ClientConfig struct {
	// FeedURL, when set, is fetched over HTTP; otherwise Feed.Path is read.
	FeedURL      string        `yaml:"feed_url"      env:"CLIENT_FEED_URL"`
	PersistURL   string        `yaml:"persist_url"   env:"CLIENT_PERSIST_URL"`
	FallbackPath string        `yaml:"fallback_path" env:"CLIENT_FALLBACK_PATH"`
	StatePath    string        `yaml:"state_path"    env:"CLIENT_STATE_PATH"    env-default:".webinars/state.db"`
	ExportDir    string        `yaml:"export_dir"    env:"CLIENT_EXPORT_DIR"    env-default:"."`
	ExportBase   string        `yaml:"export_base"   env:"CLIENT_EXPORT_BASE"   env-default:"webinars"`
	Timeout      time.Duration `yaml:"timeout"       env:"CLIENT_TIMEOUT"       env-default:"30s"`
}

// CleanupConfig tunes the link and expiry jobs.
type CleanupConfig struct {
	MaxAgeDays  int           `yaml:"max_age_days"  env:"CLEANUP_MAX_AGE_DAYS"  env-default:"365"`
	LinkWorkers int           `yaml:"link_workers"  env:"CLEANUP_LINK_WORKERS"  env-default:"10"`
	LinkTimeout time.Duration `yaml:"link_timeout"  env:"CLEANUP_LINK_TIMEOUT"  env-default:"10s"`
	LinkRetries int           `yaml:"link_retries"  env:"CLEANUP_LINK_RETRIES"  env-default:"3"`
	// Schedule is a cron expression for the expired-record job; empty disables it.
	Schedule string `yaml:"schedule" env:"CLEANUP_SCHEDULE"`
}

type SFTPConfig struct {
	Host                  string `yaml:"host"                     env:"SFTP_HOST"`
	Port                  int    `yaml:"port"                     env:"SFTP_PORT"                     env-default:"22"`
	User                  string `yaml:"user"                     env:"SFTP_USER"`
	Pass                  string `yaml:"pass"                     env:"SFTP_PASS"`
	RemoteDir             string `yaml:"remote_dir"               env:"SFTP_REMOTE_DIR"               env-default:"/"`
	KnownHostsPath        string `yaml:"known_hosts_path"         env:"SFTP_KNOWN_HOSTS"`
	InsecureIgnoreHostKey bool   `yaml:"insecure_ignore_host_key" env:"SFTP_INSECURE_IGNORE_HOST_KEY"`
}

// AdminConfig holds the shared admin password as a hex SHA-256 digest.
// An empty digest leaves the admin endpoint open.
type AdminConfig struct {
	PasswordSHA256 string `yaml:"password_sha256" env:"ADMIN_PASSWORD_SHA256"`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// Load reads the YAML file named by CONFIG_PATH (default ./config.yaml),
// applies environment overrides and defaults, then validates.
// A missing default file is not an error; a missing explicit one is.
func Load() (*Config, error) {
	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	explicit := path != ""
	if !explicit {
		path = "./config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}
