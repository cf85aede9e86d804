package filtering

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// ListFormat represents the format of a blocklist file.
type ListFormat int

const (
	// FormatAuto attempts to auto-detect the format.
	FormatAuto ListFormat = iota
	// FormatDomains is a plain list of domains, one per line.
	FormatDomains
	// FormatHosts is the hosts file format (IP address followed by domain).
	FormatHosts
	// FormatAdblock is the Adblock Plus format (||domain^).
	FormatAdblock
)

// EntryKind classifies one parsed blocklist line.
type EntryKind int

const (
	// EntrySkip means the line carried no usable entry (blank, comment,
	// malformed, or a special-cased hostname).
	EntrySkip EntryKind = iota
	// EntryExact blocks only the exact domain, not its subdomains.
	EntryExact
	// EntryDomainTree blocks the domain and every strict subdomain of it.
	EntryDomainTree
	// EntryWildcard blocks only strict subdomains, never the domain itself
	// (an explicit "*.suffix" line).
	EntryWildcard
	// EntryPattern is a substring match against the full domain.
	EntryPattern
)

// Entry is one classified blocklist line.
type Entry struct {
	Kind  EntryKind
	Value string
}

// skippedHostnames are well-known loopback/broadcast names that appear in
// hosts-format blocklists and must never be treated as block entries.
var skippedHostnames = map[string]bool{
	"localhost":             true,
	"localhost.localdomain": true,
	"broadcasthost":         true,
	"ip6-localhost":         true,
	"ip6-loopback":          true,
}

// Parser provides methods to parse various blocklist formats into Entry
// values ready for Index.AddExact/AddWildcard/AddPattern.
type Parser struct {
	// IgnoreComments determines whether to skip comment lines.
	IgnoreComments bool
	// TrimWhitespace determines whether to trim whitespace from lines.
	TrimWhitespace bool
	// Timeout is the HTTP request timeout in milliseconds. Default 30000 (30s),
	// matching the per-source compile-time budget.
	Timeout int
}

// NewParser creates a new parser with default settings.
func NewParser() *Parser {
	return &Parser{
		IgnoreComments: true,
		TrimWhitespace: true,
		Timeout:        30000,
	}
}

// SetTimeout sets the HTTP timeout in milliseconds.
func (p *Parser) SetTimeout(ms int) {
	p.Timeout = ms
}

// ParseFile parses a blocklist file, invoking add for every classified entry.
func (p *Parser) ParseFile(path string, format ListFormat, add func(Entry)) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return p.Parse(file, format, add)
}

// ParseURL fetches and parses a blocklist from a URL.
func (p *Parser) ParseURL(url string, format ListFormat, add func(Entry)) error {
	timeout := time.Duration(p.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &http.Client{Timeout: timeout}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error: %s", resp.Status)
	}

	return p.Parse(resp.Body, format, add)
}

// Parse parses a blocklist from a reader, invoking add for every classified
// entry in order.
func (p *Parser) Parse(r io.Reader, format ListFormat, add func(Entry)) error {
	scanner := bufio.NewScanner(r)

	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	detected := format
	for scanner.Scan() {
		line := scanner.Text()
		if p.TrimWhitespace {
			line = strings.TrimSpace(line)
		}
		if line == "" {
			continue
		}

		useFormat := detected
		if format == FormatAuto {
			if guess := p.detectFormat(line); guess != FormatAuto {
				useFormat = guess
			} else {
				useFormat = FormatDomains
			}
		}

		entry := p.ParseLine(line, useFormat)
		if entry.Kind != EntrySkip {
			add(entry)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	return nil
}

// detectFormat attempts to determine the format from a sample line.
func (p *Parser) detectFormat(line string) ListFormat {
	line = strings.TrimSpace(line)

	if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
		return FormatAuto
	}
	if strings.HasPrefix(line, "||") {
		return FormatAdblock
	}
	if strings.HasPrefix(line, "0.0.0.0") || strings.HasPrefix(line, "127.0.0.1") {
		return FormatHosts
	}
	return FormatDomains
}

// ParseLine classifies a single blocklist line. It recognizes, ahead of the
// format-specific grammar, two format-independent forms:
//   - "/substring/" — a pattern entry matched by substring containment.
//   - "*.suffix"    — an explicit wildcard-only entry (subdomains, not the
//     suffix itself).
func (p *Parser) ParseLine(line string, format ListFormat) Entry {
	if line == "" {
		return Entry{Kind: EntrySkip}
	}

	if p.IgnoreComments && (strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!")) {
		return Entry{Kind: EntrySkip}
	}

	if strings.HasPrefix(line, "/") && strings.HasSuffix(line, "/") && len(line) > 2 {
		sub := strings.ToLower(line[1 : len(line)-1])
		if sub == "" {
			return Entry{Kind: EntrySkip}
		}
		return Entry{Kind: EntryPattern, Value: sub}
	}

	if strings.HasPrefix(line, "*.") {
		domain := NormalizeDomain(line[2:])
		if domain == "" || !isValidDomain(domain) || skippedHostnames[domain] {
			return Entry{Kind: EntrySkip}
		}
		return Entry{Kind: EntryWildcard, Value: domain}
	}

	switch format {
	case FormatAdblock:
		return p.parseAdblockLine(line)
	case FormatHosts:
		return p.parseHostsLine(line)
	default:
		return p.parseDomainsLine(line)
	}
}

// parseAdblockLine parses an Adblock Plus format line: ||domain^ or
// ||domain^$options. "@@" whitelist rules are not block entries here; the
// allowlist compiler parses them via ParseAllowlistLine.
func (p *Parser) parseAdblockLine(line string) Entry {
	if strings.HasPrefix(line, "@@") {
		return Entry{Kind: EntrySkip}
	}
	if !strings.HasPrefix(line, "||") {
		return Entry{Kind: EntrySkip}
	}

	domain := strings.TrimPrefix(line, "||")
	if idx := strings.Index(domain, "^"); idx >= 0 {
		domain = domain[:idx]
	}
	if idx := strings.Index(domain, "$"); idx >= 0 {
		domain = domain[:idx]
	}
	if strings.Contains(domain, "/") || strings.Contains(domain, "*") {
		return Entry{Kind: EntrySkip}
	}

	domain = NormalizeDomain(domain)
	if domain == "" || !isValidDomain(domain) || skippedHostnames[domain] {
		return Entry{Kind: EntrySkip}
	}
	return Entry{Kind: EntryDomainTree, Value: domain}
}

// parseHostsLine parses a hosts file format line: "0.0.0.0 domain" or
// "127.0.0.1 domain". Blocks the exact domain only.
func (p *Parser) parseHostsLine(line string) Entry {
	if idx := strings.Index(line, "#"); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return Entry{Kind: EntrySkip}
	}

	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Entry{Kind: EntrySkip}
	}

	ip := fields[0]
	if ip != "0.0.0.0" && ip != "127.0.0.1" && ip != "::1" {
		return Entry{Kind: EntrySkip}
	}

	domain := NormalizeDomain(fields[1])
	if domain == "" || !isValidDomain(domain) || skippedHostnames[domain] {
		return Entry{Kind: EntrySkip}
	}
	return Entry{Kind: EntryExact, Value: domain}
}

// parseDomainsLine parses a simple domains list line: one domain per line,
// blocking the domain and its subdomains.
func (p *Parser) parseDomainsLine(line string) Entry {
	if idx := strings.Index(line, "#"); idx >= 0 {
		line = line[:idx]
	}

	domain := NormalizeDomain(strings.TrimSpace(line))
	if domain == "" || !isValidDomain(domain) || skippedHostnames[domain] {
		return Entry{Kind: EntrySkip}
	}
	return Entry{Kind: EntryDomainTree, Value: domain}
}

// isValidDomain performs basic validation of a domain name.
func isValidDomain(domain string) bool {
	if domain == "" || len(domain) > 253 {
		return false
	}
	if !strings.Contains(domain, ".") {
		return false
	}

	labels := strings.Split(domain, ".")
	for _, label := range labels {
		if label == "" || len(label) > 63 {
			return false
		}
		if !isAlphaNum(label[0]) || !isAlphaNum(label[len(label)-1]) {
			return false
		}
		for _, c := range label {
			if !isAlphaNum(byte(c)) && c != '-' {
				return false
			}
		}
	}
	return true
}

func isAlphaNum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// ParseAllowlist parses an allowlist from a reader, invoking add for every
// classified entry. Unlike Parse, every line is run through
// ParseAllowlistLine regardless of format.
func (p *Parser) ParseAllowlist(r io.Reader, add func(Entry)) error {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if p.TrimWhitespace {
			line = strings.TrimSpace(line)
		}
		if line == "" {
			continue
		}
		entry := p.ParseAllowlistLine(line)
		if entry.Kind != EntrySkip {
			add(entry)
		}
	}
	return scanner.Err()
}

// ParseAllowlistLine classifies one allowlist line. Plain domains and "*."
// wildcards follow the same grammar as block entries; adblock "@@||domain^"
// exception rules are also recognized.
func (p *Parser) ParseAllowlistLine(line string) Entry {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
		return Entry{Kind: EntrySkip}
	}

	if strings.HasPrefix(line, "@@") {
		line = strings.TrimPrefix(line, "@@")
	}
	if strings.HasPrefix(line, "||") {
		domain := strings.TrimPrefix(line, "||")
		if idx := strings.Index(domain, "^"); idx >= 0 {
			domain = domain[:idx]
		}
		domain = NormalizeDomain(domain)
		if domain == "" || !isValidDomain(domain) {
			return Entry{Kind: EntrySkip}
		}
		return Entry{Kind: EntryDomainTree, Value: domain}
	}

	return p.ParseLine(line, FormatDomains)
}
