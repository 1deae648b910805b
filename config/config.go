package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-xwlb/models"
	"gopkg.in/yaml.v3"
)

// ErrMissingDayPlaceholder is returned when the day URL template has no %s verb.
var ErrMissingDayPlaceholder = errors.New("day url template must contain a single %s placeholder")

// Config holds collector configuration.
type Config struct {
	DayURLTemplate string             `yaml:"day_url_template"`
	Parallelism    int                `yaml:"parallelism"`
	Timeout        time.Duration      `yaml:"timeout"`
	MaxAttempts    int                `yaml:"max_attempts"`
	RetryBackoff   time.Duration      `yaml:"retry_backoff"`
	LockTimeout    time.Duration      `yaml:"lock_timeout"`
	Proxy          models.ProxyConfig `yaml:"proxy"`
	UserAgent      string             `yaml:"user_agent"`

	DataDir          string `yaml:"data_dir"`
	AllTableFile     string `yaml:"all_table_file"`
	AllLinesFile     string `yaml:"all_lines_file"`
	SubsetTableFile  string `yaml:"subset_table_file"`
	SubsetLinesFile  string `yaml:"subset_lines_file"`
	SubsetTitle      string `yaml:"subset_title"`
	TitlePrefix      string `yaml:"title_prefix"`
	ContentPrefix    string `yaml:"content_prefix"`
	ContentNotFound  string `yaml:"content_not_found"`
	UnknownDuration  string `yaml:"unknown_duration"`
	ContentCacheSize int    `yaml:"content_cache_size"`

	MetricsAddr string `yaml:"metrics_addr"`
	Verbose     bool   `yaml:"verbose"`
}

// DefaultConfig returns the settings used against the live broadcast site.
func DefaultConfig() *Config {
	return &Config{
		DayURLTemplate:   "https://tv.cctv.com/lm/xwlb/day/%s.shtml",
		Parallelism:      20,
		Timeout:          15 * time.Second,
		MaxAttempts:      3,
		RetryBackoff:     time.Second,
		LockTimeout:      30 * time.Second,
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		DataDir:          "data",
		AllTableFile:     "data.csv",
		AllLinesFile:     "data.jsonl",
		SubsetTableFile:  "Domestic_Broadcast_News.csv",
		SubsetLinesFile:  "Domestic_Broadcast_News.jsonl",
		SubsetTitle:      "国内联播快讯",
		TitlePrefix:      "[视频]",
		ContentPrefix:    "央视网消息（新闻联播）：",
		ContentNotFound:  "内容未找到",
		UnknownDuration:  "未知时长",
		ContentCacheSize: 2048,
	}
}

// LoadFile overlays the YAML document at path on top of DefaultConfig.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// DayURL renders the day-page URL for a compact YYYYMMDD date.
func (c *Config) DayURL(compactDate string) string {
	return fmt.Sprintf(c.DayURLTemplate, compactDate)
}

// AllPaths returns the (table, lines) store pair for the full record set.
func (c *Config) AllPaths() (string, string) {
	return filepath.Join(c.DataDir, c.AllTableFile), filepath.Join(c.DataDir, c.AllLinesFile)
}

// SubsetPaths returns the (table, lines) store pair for the digest subset.
func (c *Config) SubsetPaths() (string, string) {
	return filepath.Join(c.DataDir, c.SubsetTableFile), filepath.Join(c.DataDir, c.SubsetLinesFile)
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.DayURLTemplate == "" || strings.Count(c.DayURLTemplate, "%s") != 1 {
		return ErrMissingDayPlaceholder
	}
	parsedURL, err := url.Parse(fmt.Sprintf(c.DayURLTemplate, "20240101"))
	if err != nil {
		return fmt.Errorf("invalid day url template: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("day url template must include a host")
	}

	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock timeout must be positive")
	}
	for scheme, raw := range map[string]string{"http": c.Proxy.HTTP, "https": c.Proxy.HTTPS} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid %s proxy %q", scheme, raw)
		}
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir cannot be empty")
	}
	if c.AllTableFile == "" || c.AllLinesFile == "" || c.SubsetTableFile == "" || c.SubsetLinesFile == "" {
		return fmt.Errorf("store file names cannot be empty")
	}
	if c.AllLinesFile == c.SubsetLinesFile {
		return fmt.Errorf("full and subset stores must use different lines files")
	}
	if c.ContentNotFound == "" {
		return fmt.Errorf("content not found sentinel cannot be empty")
	}
	if c.UnknownDuration == "" {
		return fmt.Errorf("unknown duration sentinel cannot be empty")
	}
	if c.ContentCacheSize < 0 {
		return fmt.Errorf("content cache size cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// ProxyFromAddress builds a proxy config routing both schemes through addr.
// A bare host:port is assumed to be an HTTP proxy.
func ProxyFromAddress(addr string) models.ProxyConfig {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return models.ProxyConfig{}
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return models.ProxyConfig{HTTP: addr, HTTPS: addr}
}

// EnvString returns the trimmed value of key and whether it was set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// EnvInt parses key as an integer. ok is false when the variable is unset.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}
