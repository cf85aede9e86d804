package filtering

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config represents the filtering configuration for HydraDNS.
type Config struct {
	// Enabled determines if DNS filtering is active.
	Enabled bool `yaml:"enabled"`

	// DefaultGroupID names the group used when no client mapping matches.
	DefaultGroupID string `yaml:"default_group"`

	// Groups lists the configured client policy groups. Exactly one must
	// have IsDefault set, matching DefaultGroupID.
	Groups []GroupConfig `yaml:"groups"`

	// Clients maps client IPs to group IDs.
	Clients map[string]string `yaml:"clients"`

	// Subnets maps CIDR ranges to group IDs, resolved by longest prefix.
	Subnets map[string]string `yaml:"subnets"`

	// Whitelist contains domains and sources that should always be allowed,
	// globally.
	Whitelist ListConfig `yaml:"whitelist"`

	// Blacklist contains domains and sources that should be blocked.
	Blacklist ListConfig `yaml:"blacklist"`

	// BlockResponse configures how blocked queries are answered.
	BlockResponse BlockResponseConfig `yaml:"block_response"`

	// Logging configures filtering-related logging.
	Logging FilterLoggingConfig `yaml:"logging"`

	// Refresh configures automatic blocklist updates.
	Refresh RefreshConfig `yaml:"refresh"`
}

// GroupConfig is the on-disk representation of a Group.
type GroupConfig struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Enabled   bool   `yaml:"enabled"`
	IsDefault bool   `yaml:"is_default"`
}

// ListConfig contains domain lists and sources for filtering, optionally
// scoped to a single group.
type ListConfig struct {
	// Domains is a list of domains to include directly.
	Domains []string `yaml:"domains"`

	// Sources is a list of remote blocklists to fetch.
	Sources []SourceConfig `yaml:"sources"`
}

// SourceConfig represents a remote blocklist or allowlist source.
type SourceConfig struct {
	// Name is a friendly name for the source; also its bit-assignment key.
	Name string `yaml:"name"`

	// URL is the URL to fetch the list from.
	URL string `yaml:"url"`

	// Format specifies the blocklist format (auto, domains, hosts, adblock).
	Format string `yaml:"format"`

	// GroupID scopes this source to one non-default group; empty means it
	// contributes to the default baseline mask.
	GroupID string `yaml:"group"`
}

// BlockResponseConfig configures how blocked queries are answered.
type BlockResponseConfig struct {
	// Type is the response type: "nxdomain", "nodata", or "address".
	Type string `yaml:"type"`

	// IPv4 is the IPv4 address to return for "address" type (for A queries).
	IPv4 string `yaml:"ipv4"`

	// IPv6 is the IPv6 address to return for "address" type (for AAAA queries).
	IPv6 string `yaml:"ipv6"`
}

// FilterLoggingConfig configures filtering-related logging.
type FilterLoggingConfig struct {
	// LogBlocked enables logging of blocked queries.
	LogBlocked bool `yaml:"log_blocked"`

	// LogAllowed enables logging of allowed queries (verbose).
	LogAllowed bool `yaml:"log_allowed"`
}

// RefreshConfig configures automatic blocklist updates.
type RefreshConfig struct {
	// Enabled determines if automatic refresh is active.
	Enabled bool `yaml:"enabled"`

	// Interval is how often to refresh blocklists.
	Interval time.Duration `yaml:"interval"`
}

// DefaultConfig returns the default filtering configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:        false, // Disabled by default, user must opt-in
		DefaultGroupID: "default",
		Groups: []GroupConfig{
			{ID: "default", Name: "Default", Enabled: true, IsDefault: true},
		},
		BlockResponse: BlockResponseConfig{
			Type: "nxdomain",
			IPv4: "0.0.0.0",
			IPv6: "::",
		},
		Logging: FilterLoggingConfig{
			LogBlocked: true,
			LogAllowed: false,
		},
		Refresh: RefreshConfig{
			Enabled:  true,
			Interval: 24 * time.Hour,
		},
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	switch c.BlockResponse.Type {
	case "", "nxdomain", "nodata", "address":
	default:
		return fmt.Errorf("invalid block_response.type: %q (must be nxdomain, nodata, or address)", c.BlockResponse.Type)
	}

	defaults := 0
	ids := make(map[string]bool, len(c.Groups))
	for _, g := range c.Groups {
		if ids[g.ID] {
			return fmt.Errorf("duplicate group id %q", g.ID)
		}
		ids[g.ID] = true
		if g.IsDefault {
			defaults++
		}
	}
	if len(c.Groups) > 0 {
		if defaults != 1 {
			return fmt.Errorf("exactly one group must have is_default=true, found %d", defaults)
		}
		if !ids[c.DefaultGroupID] {
			return fmt.Errorf("default_group %q does not match any configured group", c.DefaultGroupID)
		}
	}

	for i, source := range c.Whitelist.Sources {
		if err := source.Validate(); err != nil {
			return fmt.Errorf("whitelist.sources[%d]: %w", i, err)
		}
	}
	for i, source := range c.Blacklist.Sources {
		if err := source.Validate(); err != nil {
			return fmt.Errorf("blacklist.sources[%d]: %w", i, err)
		}
		if source.GroupID != "" && len(c.Groups) > 0 && !ids[source.GroupID] {
			return fmt.Errorf("blacklist.sources[%d]: unknown group %q", i, source.GroupID)
		}
	}

	return nil
}

// Validate validates a source configuration.
func (s *SourceConfig) Validate() error {
	if s.URL == "" && s.Name == "" {
		return fmt.Errorf("name or url is required")
	}
	switch strings.ToLower(s.Format) {
	case "", "auto", "domains", "hosts", "adblock":
	default:
		return fmt.Errorf("invalid format: %q (must be auto, domains, hosts, or adblock)", s.Format)
	}
	return nil
}

// ToListFormat converts the format string to a ListFormat.
func (s *SourceConfig) ToListFormat() ListFormat {
	switch strings.ToLower(s.Format) {
	case "domains":
		return FormatDomains
	case "hosts":
		return FormatHosts
	case "adblock":
		return FormatAdblock
	default:
		return FormatAuto
	}
}

// ToCompileConfig converts Config into the shape Compile expects.
func (c *Config) ToCompileConfig() CompileConfig {
	cc := CompileConfig{
		DefaultGroupID: c.DefaultGroupID,
		ManualBlock:    c.Blacklist.Domains,
		ManualAllow:    c.Whitelist.Domains,
	}
	for _, g := range c.Groups {
		cc.Groups = append(cc.Groups, Group{ID: g.ID, Name: g.Name, Enabled: g.Enabled, IsDefault: g.IsDefault})
	}
	for _, s := range c.Blacklist.Sources {
		cc.Blocklists = append(cc.Blocklists, CompileSource{
			Name: s.Name, URL: s.URL, Format: s.ToListFormat(), GroupID: s.GroupID,
		})
	}
	for _, s := range c.Whitelist.Sources {
		cc.Allowlists = append(cc.Allowlists, CompileSource{
			Name: s.Name, URL: s.URL, Format: s.ToListFormat(), GroupID: s.GroupID,
		})
	}
	return cc
}

// ConfigFromEnv creates a Config from environment variables, overriding
// fields set in the YAML-loaded base.
func ConfigFromEnv(base Config) Config {
	cfg := base

	if v := os.Getenv("HYDRADNS_FILTERING_ENABLED"); v != "" {
		cfg.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("HYDRADNS_FILTERING_LOG_BLOCKED"); v != "" {
		cfg.Logging.LogBlocked = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("HYDRADNS_FILTERING_LOG_ALLOWED"); v != "" {
		cfg.Logging.LogAllowed = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("HYDRADNS_FILTERING_BLOCK_TYPE"); v != "" {
		cfg.BlockResponse.Type = v
	}

	return cfg
}

// ExampleConfig returns an example configuration for documentation.
func ExampleConfig() Config {
	return Config{
		Enabled:        true,
		DefaultGroupID: "default",
		Groups: []GroupConfig{
			{ID: "default", Name: "Default", Enabled: true, IsDefault: true},
			{ID: "kids", Name: "Kids", Enabled: true},
		},
		Subnets: map[string]string{
			"10.1.1.0/24": "kids",
		},
		Whitelist: ListConfig{
			Domains: []string{
				"example.com",
				"safe.example.org",
			},
		},
		Blacklist: ListConfig{
			Domains: []string{
				"malware.example.com",
				"ads.example.net",
			},
			Sources: []SourceConfig{
				{
					Name:   "hagezi-light",
					URL:    "https://cdn.jsdelivr.net/gh/hagezi/dns-blocklists@latest/domains/light.txt",
					Format: "domains",
				},
				{
					Name:   "hagezi-adblock",
					URL:    "https://cdn.jsdelivr.net/gh/hagezi/dns-blocklists@latest/adblock/light.txt",
					Format: "adblock",
				},
				{
					Name:   "stevenblack",
					URL:    "https://raw.githubusercontent.com/StevenBlack/hosts/master/hosts",
					Format: "hosts",
				},
				{
					Name:    "kids-extra",
					URL:     "https://example.org/blocklists/kids-extra.txt",
					Format:  "domains",
					GroupID: "kids",
				},
			},
		},
		BlockResponse: BlockResponseConfig{
			Type: "nxdomain",
		},
		Logging: FilterLoggingConfig{
			LogBlocked: true,
			LogAllowed: false,
		},
		Refresh: RefreshConfig{
			Enabled:  true,
			Interval: 24 * time.Hour,
		},
	}
}
