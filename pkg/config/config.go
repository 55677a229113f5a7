// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultUpstreamBaseURL is the page host every media identifier is resolved against.
const DefaultUpstreamBaseURL = "https://hahoy.server.arlen.icu/glint"

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port         int           `yaml:"port"`
	BaseURL      string        `yaml:"base_url"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`

	// Upstream page host
	UpstreamBaseURL      string        `yaml:"upstream_base_url"`
	UpstreamUserAgent    string        `yaml:"upstream_user_agent"`
	UpstreamTimeout      time.Duration `yaml:"upstream_timeout"`
	UpstreamMaxBodyBytes int64         `yaml:"upstream_max_body_bytes"`

	// Proxy settings
	GlobalProxies   []string         `yaml:"global_proxies"`
	TransportRoutes []TransportRoute `yaml:"transport_routes"`
	UTLSDomains     []string         `yaml:"utls_domains"`

	// FlareSolverr settings (for Cloudflare bypass)
	FlareSolverrURL     string        `yaml:"flaresolverr_url"`
	FlareSolverrTimeout time.Duration `yaml:"flaresolverr_timeout"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// Logging
	LogLevel      string `yaml:"log_level"`
	LogJSON       bool   `yaml:"log_json"`
	LogFile       string `yaml:"log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	LogMaxAgeDays int    `yaml:"log_max_age_days"`
	LogCompress   bool   `yaml:"log_compress"`
}

// TransportRoute defines URL-specific proxy routing.
type TransportRoute struct {
	URLPattern string `yaml:"url"`
	Proxy      string `yaml:"proxy"`
	DisableSSL bool   `yaml:"disable_ssl"`
	Direct     bool   `yaml:"direct"` // If true, bypass global proxy and connect directly
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Port:                 3000,
		ReadTimeout:          30 * time.Second,
		WriteTimeout:         90 * time.Second,
		IdleTimeout:          60 * time.Second,
		UpstreamBaseURL:      DefaultUpstreamBaseURL,
		UpstreamUserAgent:    "Mozilla/5.0",
		UpstreamTimeout:      30 * time.Second,
		UpstreamMaxBodyBytes: 10 << 20,
		FlareSolverrTimeout:  60 * time.Second,
		MetricsEnabled:       true,
		LogLevel:             "info",
		LogMaxSizeMB:         50,
		LogMaxBackups:        3,
		LogMaxAgeDays:        28,
	}
}

// Load reads configuration with the precedence env > CONFIG_FILE > defaults.
// A .env file in the working directory is loaded first; variables already
// present in the environment are not overwritten by it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	cfg.UpstreamBaseURL = strings.TrimRight(cfg.UpstreamBaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveTimeout is how long one resolve may run. It leaves headroom under
// WriteTimeout so an error response still reaches the client. Zero means
// unbounded.
func (c *Config) ResolveTimeout() time.Duration {
	if c.WriteTimeout <= 0 {
		return 0
	}
	headroom := c.WriteTimeout / 4
	if headroom > 5*time.Second {
		headroom = 5 * time.Second
	}
	return c.WriteTimeout - headroom
}

// Validate rejects settings where the upstream fetch could outlive the
// server's write deadline.
func (c *Config) Validate() error {
	budget := c.ResolveTimeout()
	if budget == 0 {
		return nil
	}

	fetchKey, fetchTimeout := "UPSTREAM_TIMEOUT", c.UpstreamTimeout
	if c.FlareSolverrURL != "" {
		fetchKey, fetchTimeout = "FLARESOLVERR_TIMEOUT", c.FlareSolverrTimeout
	}
	if fetchTimeout >= budget {
		return fmt.Errorf("%s (%s) must be below WRITE_TIMEOUT (%s) minus response headroom (%s)",
			fetchKey, fetchTimeout, c.WriteTimeout, budget)
	}
	return nil
}

// loadFile decodes a YAML config file over cfg.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnvInt("PORT", cfg.Port)
	cfg.BaseURL = getEnvString("BASE_URL", cfg.BaseURL)
	cfg.ReadTimeout = getEnvDuration("READ_TIMEOUT", cfg.ReadTimeout)
	cfg.WriteTimeout = getEnvDuration("WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.IdleTimeout = getEnvDuration("IDLE_TIMEOUT", cfg.IdleTimeout)

	cfg.UpstreamBaseURL = getEnvString("UPSTREAM_BASE_URL", cfg.UpstreamBaseURL)
	cfg.UpstreamUserAgent = getEnvString("UPSTREAM_USER_AGENT", cfg.UpstreamUserAgent)
	cfg.UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", cfg.UpstreamTimeout)
	cfg.UpstreamMaxBodyBytes = int64(getEnvInt("UPSTREAM_MAX_BODY_BYTES", int(cfg.UpstreamMaxBodyBytes)))

	cfg.GlobalProxies = getEnvStringSlice("GLOBAL_PROXIES", cfg.GlobalProxies)
	cfg.UTLSDomains = getEnvStringSlice("UTLS_DOMAINS", cfg.UTLSDomains)
	if routes := parseTransportRoutes(os.Getenv("TRANSPORT_ROUTES")); routes != nil {
		cfg.TransportRoutes = routes
	}

	// Legacy single proxy support
	if globalProxy := os.Getenv("GLOBAL_PROXY"); globalProxy != "" && len(cfg.GlobalProxies) == 0 {
		cfg.GlobalProxies = []string{globalProxy}
	}

	cfg.FlareSolverrURL = getEnvString("FLARESOLVERR_URL", cfg.FlareSolverrURL)
	cfg.FlareSolverrTimeout = getEnvDuration("FLARESOLVERR_TIMEOUT", cfg.FlareSolverrTimeout)

	cfg.MetricsEnabled = getEnvBool("METRICS_ENABLED", cfg.MetricsEnabled)

	cfg.LogLevel = getEnvString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogJSON = getEnvBool("LOG_JSON", cfg.LogJSON)
	cfg.LogFile = getEnvString("LOG_FILE", cfg.LogFile)
	cfg.LogMaxSizeMB = getEnvInt("LOG_MAX_SIZE_MB", cfg.LogMaxSizeMB)
	cfg.LogMaxBackups = getEnvInt("LOG_MAX_BACKUPS", cfg.LogMaxBackups)
	cfg.LogMaxAgeDays = getEnvInt("LOG_MAX_AGE_DAYS", cfg.LogMaxAgeDays)
	cfg.LogCompress = getEnvBool("LOG_COMPRESS", cfg.LogCompress)
}

// parseTransportRoutes parses the TRANSPORT_ROUTES env var.
// Format: {URL=pattern, PROXY=url, DISABLE_SSL=true}, {URL=pattern2}
func parseTransportRoutes(s string) []TransportRoute {
	if s == "" {
		return nil
	}

	var routes []TransportRoute
	s = strings.TrimSpace(s)

	parts := strings.Split(s, "}, {")
	for _, part := range parts {
		part = strings.Trim(part, "{} ")
		if part == "" {
			continue
		}

		route := TransportRoute{}
		for _, field := range strings.Split(part, ", ") {
			kv := strings.SplitN(field, "=", 2)
			if len(kv) != 2 {
				continue
			}
			value := strings.TrimSpace(kv[1])

			switch strings.ToUpper(strings.TrimSpace(kv[0])) {
			case "URL":
				route.URLPattern = value
			case "PROXY":
				route.Proxy = value
			case "DISABLE_SSL":
				route.DisableSSL = strings.ToLower(value) == "true"
			case "DIRECT":
				route.Direct = strings.ToLower(value) == "true"
			}
		}
		if route.URLPattern != "" {
			routes = append(routes, route)
		}
	}

	return routes
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return strings.ToLower(val) == "true" || val == "1"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		// Plain integers are seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultVal
}
