package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/samvad-hq/samvad-feed-aggregator/pkg/httpclient"
)

// DefaultResolverMirrors lists torrent cache endpoints keyed by info-hash.
var DefaultResolverMirrors = []string{
	"https://itorrents.org/torrent/{HASH}.torrent",
	"https://torrage.info/torrent.php?h={HASH}",
}

// Config holds the application configuration loaded from files, flags and environment variables.
type Config struct {
	AppName             string        `mapstructure:"app_name"`
	Env                 string        `mapstructure:"app_env"`
	LogLevel            string        `mapstructure:"log_level"`
	ConfigFile          string        `mapstructure:"config_file"`
	ScanIntervalMinutes int64         `mapstructure:"scan_interval"`
	ScanInterval        time.Duration `mapstructure:"-"`
	StateFile           string        `mapstructure:"state_file"`
	OutputDir           string        `mapstructure:"output_dir"`
	SourcesFile         string        `mapstructure:"sources_file"`
	PublishersFile      string        `mapstructure:"publishers_file"`

	StorageType            string        `mapstructure:"storage_type"`
	BBoltPath              string        `mapstructure:"bbolt_path"`
	InitialLookbackMinutes int64         `mapstructure:"initial_lookback_minutes"`
	InitialLookback        time.Duration `mapstructure:"-"`

	SourceConcurrency   int `mapstructure:"source_concurrency"`
	DispatchConcurrency int `mapstructure:"dispatch_concurrency"`

	ResolveTimeoutMs      int64         `mapstructure:"resolve_timeout_ms"`
	ResolveTimeout        time.Duration `mapstructure:"-"`
	ResolverMirrors       []string      `mapstructure:"resolver_mirrors"`
	ResolverWarmupSeconds int64         `mapstructure:"resolver_warmup_seconds"`
	ResolverWarmup        time.Duration `mapstructure:"-"`
	ResolverMinHealthy    int           `mapstructure:"resolver_min_healthy"`

	HTTPTimeoutSeconds int64         `mapstructure:"http_timeout_seconds"`
	HTTPTimeout        time.Duration `mapstructure:"-"`
	UserAgent          string        `mapstructure:"user_agent"`
	FetchRPS           float64       `mapstructure:"fetch_rps"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"config":         "config_file",
	"log-level":      "log_level",
	"scan-interval":  "scan_interval",
	"state-file":     "state_file",
	"output-dir":     "output_dir",
	"sources-file":   "sources_file",
	"publishers":     "publishers_file",
	"storage":        "storage_type",
	"bbolt-path":     "bbolt_path",
	"dispatch-limit": "dispatch_concurrency",
}

// RegisterFlags declares the command-line overrides understood by Load.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "optional config file (yaml, json or toml)")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.Int64("scan-interval", 0, "minutes between aggregation cycles")
	fs.String("state-file", "", "path of the resolver session state file")
	fs.String("output-dir", "", "directory receiving fetched artifacts")
	fs.String("sources-file", "", "path of the sources registry file")
	fs.String("publishers", "", "path of the publishers registry file")
	fs.String("storage", "", "watermark storage type (bbolt, none)")
	fs.String("bbolt-path", "", "path of the bbolt watermark database")
	fs.Int("dispatch-limit", 0, "maximum concurrent item fetches")
}

// Load reads configuration from environment variables, an optional config file
// and any flags that were explicitly set on fs (which may be nil).
func Load(fs *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "samvad-feed-aggregator")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("config_file", "")
	v.SetDefault("scan_interval", 10) // minutes
	v.SetDefault("state_file", "aggregator.state")
	v.SetDefault("output_dir", "torrents")
	v.SetDefault("sources_file", "./configs/sources.yaml")
	v.SetDefault("publishers_file", "")
	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/watermark.db")
	v.SetDefault("initial_lookback_minutes", 0)
	v.SetDefault("source_concurrency", 8)
	v.SetDefault("dispatch_concurrency", 4)
	v.SetDefault("resolve_timeout_ms", 30000)
	v.SetDefault("resolver_mirrors", DefaultResolverMirrors)
	v.SetDefault("resolver_warmup_seconds", 10)
	v.SetDefault("resolver_min_healthy", 1)
	v.SetDefault("http_timeout_seconds", 30)
	v.SetDefault("user_agent", httpclient.DefaultUserAgent)
	v.SetDefault("fetch_rps", 0)

	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			flag := fs.Lookup(name)
			if flag == nil || !flag.Changed {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if file := strings.TrimSpace(v.GetString("config_file")); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) normalize() error {
	if cfg.ScanIntervalMinutes <= 0 {
		return fmt.Errorf("invalid scan_interval (must be positive minutes)")
	}
	cfg.ScanInterval = time.Duration(cfg.ScanIntervalMinutes) * time.Minute

	cfg.OutputDir = strings.TrimSpace(cfg.OutputDir)
	if cfg.OutputDir == "" {
		return fmt.Errorf("output_dir must not be empty")
	}
	cfg.StateFile = strings.TrimSpace(cfg.StateFile)

	if cfg.InitialLookbackMinutes < 0 {
		return fmt.Errorf("invalid initial_lookback_minutes (must not be negative)")
	}
	cfg.InitialLookback = time.Duration(cfg.InitialLookbackMinutes) * time.Minute

	if cfg.SourceConcurrency <= 0 {
		return fmt.Errorf("invalid source_concurrency (must be positive)")
	}
	if cfg.DispatchConcurrency <= 0 {
		return fmt.Errorf("invalid dispatch_concurrency (must be positive)")
	}

	if cfg.ResolveTimeoutMs <= 0 {
		return fmt.Errorf("invalid resolve_timeout_ms (must be positive milliseconds)")
	}
	cfg.ResolveTimeout = time.Duration(cfg.ResolveTimeoutMs) * time.Millisecond

	if cfg.ResolverWarmupSeconds < 0 {
		return fmt.Errorf("invalid resolver_warmup_seconds (must not be negative)")
	}
	cfg.ResolverWarmup = time.Duration(cfg.ResolverWarmupSeconds) * time.Second

	if cfg.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid http_timeout_seconds (must be positive seconds)")
	}
	cfg.HTTPTimeout = time.Duration(cfg.HTTPTimeoutSeconds) * time.Second

	if cfg.FetchRPS < 0 {
		return fmt.Errorf("invalid fetch_rps (must not be negative)")
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = httpclient.DefaultUserAgent
	}

	mirrors := make([]string, 0, len(cfg.ResolverMirrors))
	for _, m := range cfg.ResolverMirrors {
		if m = strings.TrimSpace(m); m != "" {
			mirrors = append(mirrors, m)
		}
	}
	cfg.ResolverMirrors = mirrors
	return nil
}
