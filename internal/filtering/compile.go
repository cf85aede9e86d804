package filtering

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// sourceFetchTimeout bounds each individual source fetch during compilation,
// per spec: sources are fetched in parallel, each obeying its own budget, so
// one slow or dead source cannot stall the rest.
const sourceFetchTimeout = 30 * time.Second

// CompileSource is one blocklist or allowlist source to compile into the
// index: either an inline Domains slice, a remote URL, or both.
type CompileSource struct {
	Name    string
	URL     string
	Format  ListFormat
	Domains []string
	// GroupID scopes this source's contribution to a single non-default
	// group's mask; empty means it contributes to the default baseline.
	GroupID string
}

// CompileConfig is everything needed to build an Index from scratch.
type CompileConfig struct {
	DefaultGroupID string
	Groups         []Group
	Blocklists     []CompileSource
	ManualBlock    []string // exact domains, bit 63, domain+subtree
	Allowlists     []CompileSource
	ManualAllow    []string // global allowlist domains
}

// Compile builds a fresh, immutable Index from the given configuration. It
// performs HTTP fetches for remote sources in parallel, each bounded by
// sourceFetchTimeout; a source that fails to fetch is logged and skipped,
// never aborts the whole compile.
func Compile(ctx context.Context, cfg CompileConfig, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}

	sources := cfg.Blocklists
	if len(sources) > MaxExternalSources {
		logger.Warn("filtering: truncating blocklist sources to bit budget",
			"configured", len(sources), "max", MaxExternalSources)
		sources = sources[:MaxExternalSources]
	}

	bitOf := make(map[string]uint64, len(sources))
	for i, s := range sources {
		bitOf[s.Name] = uint64(1) << uint(i)
	}

	expected := 1000
	for _, s := range sources {
		expected += len(s.Domains) + 2000
	}
	idx := NewIndex(cfg.DefaultGroupID, expected)

	var wg sync.WaitGroup
	for _, s := range sources {
		s := s
		bit := bitOf[s.Name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			fetchAndAddBlocklist(ctx, idx, s, bit, logger)
		}()
	}

	for _, domain := range cfg.ManualBlock {
		idx.AddExact(domain, ManualSourceBit)
		idx.AddWildcard(domain, ManualSourceBit)
	}

	for _, domain := range cfg.ManualAllow {
		idx.AllowGlobalExact(domain)
		idx.AllowGlobalWildcard(domain)
	}

	for _, s := range cfg.Allowlists {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			fetchAndAddAllowlist(ctx, idx, s, logger)
		}()
	}

	wg.Wait()

	computeGroupMasks(idx, cfg, bitOf)
	return idx
}

func computeGroupMasks(idx *Index, cfg CompileConfig, bitOf map[string]uint64) {
	var defaultMask uint64 = ManualSourceBit
	perGroup := make(map[string]uint64)

	for _, s := range cfg.Blocklists {
		bit, ok := bitOf[s.Name]
		if !ok {
			continue
		}
		if s.GroupID == "" || s.GroupID == cfg.DefaultGroupID {
			defaultMask |= bit
		} else {
			perGroup[s.GroupID] |= bit
		}
	}

	idx.SetGroupMask(cfg.DefaultGroupID, defaultMask)
	for _, g := range cfg.Groups {
		if g.ID == cfg.DefaultGroupID {
			continue
		}
		idx.SetGroupMask(g.ID, defaultMask|perGroup[g.ID])
	}
}

func fetchAndAddBlocklist(ctx context.Context, idx *Index, s CompileSource, bit uint64, logger *slog.Logger) {
	p := NewParser()
	add := func(e Entry) {
		switch e.Kind {
		case EntryExact:
			idx.AddExact(e.Value, bit)
		case EntryDomainTree:
			idx.AddExact(e.Value, bit)
			idx.AddWildcard(e.Value, bit)
		case EntryWildcard:
			idx.AddWildcard(e.Value, bit)
		case EntryPattern:
			idx.AddPattern(e.Value, bit)
		}
	}

	for _, d := range s.Domains {
		add(p.ParseLine(d, FormatDomains))
	}

	if s.URL == "" {
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, sourceFetchTimeout)
	defer cancel()

	if err := fetchWithContext(reqCtx, p, s.URL, s.Format, add); err != nil {
		logger.Warn("filtering: skipping source after fetch error", "source", s.Name, "url", s.URL, "err", err)
	}
}

func fetchAndAddAllowlist(ctx context.Context, idx *Index, s CompileSource, logger *slog.Logger) {
	addGlobal := func(e Entry) {
		switch e.Kind {
		case EntryExact, EntryDomainTree:
			idx.AllowGlobalExact(e.Value)
			if e.Kind == EntryDomainTree {
				idx.AllowGlobalWildcard(e.Value)
			}
		case EntryWildcard:
			idx.AllowGlobalWildcard(e.Value)
		}
	}
	addGroup := func(e Entry) {
		switch e.Kind {
		case EntryExact, EntryDomainTree:
			idx.AllowGroupExact(s.GroupID, e.Value)
			if e.Kind == EntryDomainTree {
				idx.AllowGroupWildcard(s.GroupID, e.Value)
			}
		case EntryWildcard:
			idx.AllowGroupWildcard(s.GroupID, e.Value)
		}
	}

	add := addGlobal
	if s.GroupID != "" {
		add = addGroup
	}

	p := NewParser()
	for _, d := range s.Domains {
		add(p.ParseAllowlistLine(d))
	}

	if s.URL == "" {
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, sourceFetchTimeout)
	defer cancel()

	if err := fetchAllowlistWithContext(reqCtx, p, s.URL, add); err != nil {
		logger.Warn("filtering: skipping allowlist source after fetch error", "source", s.Name, "url", s.URL, "err", err)
	}
}

func fetchWithContext(ctx context.Context, p *Parser, url string, format ListFormat, add func(Entry)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return httpStatusError(resp.StatusCode)
	}
	return p.Parse(resp.Body, format, add)
}

func fetchAllowlistWithContext(ctx context.Context, p *Parser, url string, add func(Entry)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return httpStatusError(resp.StatusCode)
	}
	return p.ParseAllowlist(resp.Body, add)
}

type httpStatusError int

func (e httpStatusError) Error() string {
	return "unexpected HTTP status: " + http.StatusText(int(e))
}
