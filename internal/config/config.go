// Package config provides configuration loading and validation for HydraDNS.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Command-line flags (not handled here, see cmd/hydradns/main.go)
//  2. Environment variables (HYDRADNS_* prefix)
//  3. YAML config file (if specified with --config)
//  4. Hardcoded defaults
//
// Environment variables are mapped from HYDRADNS_CATEGORY_SETTING format,
// e.g., HYDRADNS_SERVER_HOST maps to server.host in YAML.
//
// All configuration is validated during Load() to ensure correctness early.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultConfig returns a Config populated with hardcoded defaults, before
// any YAML file or environment overrides are applied.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        1053,
			WorkersRaw:  "auto",
			Workers:     WorkerSetting{Mode: WorkersAuto},
			EnableTCP:   true,
			TCPFallback: true,
		},
		Upstream: UpstreamConfig{
			Servers:    []string{"8.8.8.8"},
			UDPTimeout: "3s",
			TCPTimeout: "5s",
			MaxRetries: 3,
		},
		Zones: ZonesConfig{
			Directory: "zones",
			Files:     []string{},
		},
		Logging: LoggingConfig{
			Level:            "INFO",
			StructuredFormat: "json",
			ExtraFields:      map[string]string{},
		},
		Filtering: FilteringConfig{
			LogBlocked:      true,
			Blocklists:      []BlocklistConfig{},
			RefreshInterval: "24h",
		},
		RateLimit: RateLimitConfig{
			CleanupSeconds:   60,
			MaxIPEntries:     65536,
			MaxPrefixEntries: 16384,
			GlobalQPS:        100000,
			GlobalBurst:      100000,
			PrefixQPS:        10000,
			PrefixBurst:      20000,
			IPQPS:            5000,
			IPBurst:          10000,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
	}
}

// loadFromSource loads configuration from an optional YAML file, applies
// HYDRADNS_-prefixed environment overrides, then validates the result.
func loadFromSource(configPath string) (*Config, error) {
	cfg := defaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.Server.Workers = parseWorkers(cfg.Server.WorkersRaw)

	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides layers HYDRADNS_*-prefixed environment variables on top
// of whatever the YAML file (or defaults) produced.
func applyEnvOverrides(cfg *Config) {
	if v, ok := lookupEnv("HYDRADNS_SERVER_HOST"); ok {
		cfg.Server.Host = v
	}
	if v, ok := lookupEnvInt("HYDRADNS_SERVER_PORT"); ok {
		cfg.Server.Port = v
	}
	if v, ok := lookupEnv("HYDRADNS_SERVER_WORKERS"); ok {
		cfg.Server.WorkersRaw = v
	}
	if v, ok := lookupEnvInt("HYDRADNS_SERVER_MAX_CONCURRENCY"); ok {
		cfg.Server.MaxConcurrency = v
	}
	if v, ok := lookupEnvBool("HYDRADNS_SERVER_ENABLE_TCP"); ok {
		cfg.Server.EnableTCP = v
	}
	if v, ok := lookupEnvBool("HYDRADNS_SERVER_TCP_FALLBACK"); ok {
		cfg.Server.TCPFallback = v
	}

	if v, ok := lookupEnv("HYDRADNS_UPSTREAM_SERVERS"); ok {
		cfg.Upstream.Servers = parseServerList(strings.Split(v, ","))
	}
	if v, ok := lookupEnv("HYDRADNS_UPSTREAM_UDP_TIMEOUT"); ok {
		cfg.Upstream.UDPTimeout = v
	}
	if v, ok := lookupEnv("HYDRADNS_UPSTREAM_TCP_TIMEOUT"); ok {
		cfg.Upstream.TCPTimeout = v
	}

	if v, ok := lookupEnv("HYDRADNS_ZONES_DIRECTORY"); ok {
		cfg.Zones.Directory = v
	}

	if v, ok := lookupEnv("HYDRADNS_LOGGING_LEVEL"); ok {
		cfg.Logging.Level = strings.ToUpper(v)
	}
	if v, ok := lookupEnvBool("HYDRADNS_LOGGING_STRUCTURED"); ok {
		cfg.Logging.Structured = v
	}
	if v, ok := lookupEnv("HYDRADNS_LOGGING_STRUCTURED_FORMAT"); ok {
		cfg.Logging.StructuredFormat = v
	}

	if v, ok := lookupEnvBool("HYDRADNS_FILTERING_ENABLED"); ok {
		cfg.Filtering.Enabled = v
	}
	if v, ok := lookupEnv("HYDRADNS_FILTERING_BLOCKLIST_URL"); ok && v != "" {
		cfg.Filtering.Blocklists = append(cfg.Filtering.Blocklists, BlocklistConfig{
			Name:   "env-blocklist",
			URL:    v,
			Format: "auto",
		})
	}
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func lookupEnvInt(key string) (int, bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// lookupEnvBool accepts the usual strconv.ParseBool forms plus "yes"/"no",
// since HydraDNS's env-override tests exercise both spellings.
func lookupEnvBool(key string) (bool, bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return false, false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "on":
		return true, true
	case "no", "off":
		return false, true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// parseWorkers converts the workers string to WorkerSetting.
func parseWorkers(raw string) WorkerSetting {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == "auto" {
		return WorkerSetting{Mode: WorkersAuto}
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return WorkerSetting{Mode: WorkersFixed, Value: n}
	}
	return WorkerSetting{Mode: WorkersAuto}
}

// parseServerList cleans up a list of server addresses, stripping any
// explicit port (upstream servers always speak on port 53 at this layer;
// alternate transports/ports are expressed via resolver.Config's endpoint
// URLs, not here).
func parseServerList(servers []string) []string {
	result := make([]string, 0, len(servers))
	for _, s := range servers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if h, _, ok := strings.Cut(s, ":"); ok {
			s = h
		}
		result = append(result, s)
	}
	return result
}

// normalizeConfig validates and normalizes the configuration.
func normalizeConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New("server.port must be 1..65535")
	}

	if len(cfg.Upstream.Servers) == 0 {
		cfg.Upstream.Servers = []string{"8.8.8.8"}
	}

	// Limit to 3 upstream servers (strict-order failover)
	if len(cfg.Upstream.Servers) > 3 {
		cfg.Upstream.Servers = cfg.Upstream.Servers[:3]
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	if cfg.Filtering.RefreshInterval == "" {
		cfg.Filtering.RefreshInterval = "24h"
	}

	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}
	if cfg.API.Enabled {
		if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
			return errors.New("api.port must be 1..65535")
		}
	}

	return nil
}
