package server

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jroosing/hydradns/internal/answercache"
	"github.com/jroosing/hydradns/internal/config"
	"github.com/jroosing/hydradns/internal/events"
	"github.com/jroosing/hydradns/internal/filtering"
	"github.com/jroosing/hydradns/internal/helpers"
	"github.com/jroosing/hydradns/internal/ports"
	"github.com/jroosing/hydradns/internal/resolver"
	"github.com/jroosing/hydradns/internal/transport"
	"github.com/jroosing/hydradns/internal/upstream"
)

// Runner orchestrates the DNS server startup, configuration, and shutdown.
type Runner struct {
	logger *slog.Logger
}

// NewRunner creates a new server runner with the given logger.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run starts the DNS server with the given configuration.
//
// Server lifecycle:
//  1. Configure runtime (GOMAXPROCS based on workers setting)
//  2. Build the filtering engine, answer cache, and upstream pool
//  3. Assemble the resolver pipeline on top of them
//  4. Start UDP and optionally TCP servers
//  5. Wait for shutdown signal (SIGINT/SIGTERM)
//  6. Gracefully stop servers with timeout
func (r *Runner) Run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	desiredProcs := r.configureRuntime(cfg)
	maxConc := r.calculateMaxConcurrency(cfg, desiredProcs)
	upPool := r.calculateUpstreamPoolSize(cfg, maxConc)

	clock := helpers.NewCoarseClock()
	go clock.Run(ctx, time.Second)

	pool, err := r.buildUpstreamPool(cfg)
	if err != nil {
		return err
	}

	channel, recv := events.NewChannel()
	pool.Emitter = channel
	consumer := events.NewConsumer(&slogQueryLogRepository{logger: r.logger}, r.logger)
	go consumer.Run(ctx, recv)
	defer channel.Close()

	cache := answercache.New(answercache.DefaultConfig(cfg.RateLimit.MaxIPEntries), clock)
	negative := answercache.NewNegativeTTLTracker()

	pipeline := resolver.Build(
		resolver.Config{
			Filter: resolver.FilterConfig{},
			Cache:  resolver.CacheLayerConfig{},
		},
		cache, negative, nil, pool,
		nil, nil, nil,
		r.logger,
	)

	top := r.wrapFiltering(ctx, cfg, pipeline)

	h := &QueryHandler{Logger: r.logger, Resolver: top, Timeout: 4 * time.Second}
	limiter := NewRateLimiter(RateLimitSettings{
		CleanupSeconds:   cfg.RateLimit.CleanupSeconds,
		MaxIPEntries:     cfg.RateLimit.MaxIPEntries,
		MaxPrefixEntries: cfg.RateLimit.MaxPrefixEntries,
		GlobalQPS:        cfg.RateLimit.GlobalQPS,
		GlobalBurst:      cfg.RateLimit.GlobalBurst,
		PrefixQPS:        cfg.RateLimit.PrefixQPS,
		PrefixBurst:      cfg.RateLimit.PrefixBurst,
		IPQPS:            cfg.RateLimit.IPQPS,
		IPBurst:          cfg.RateLimit.IPBurst,
	})

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	r.logStartup(cfg, addr, maxConc, upPool)

	udp := &UDPServer{Logger: r.logger, Handler: h, Limiter: limiter, WorkersPerSocket: maxConc}
	var tcp *TCPServer
	if cfg.Server.EnableTCP {
		tcp = &TCPServer{Logger: r.logger, Handler: h}
	}

	errCh := make(chan error, 2)
	go func() { errCh <- udp.Run(ctx, addr) }()
	if tcp != nil {
		go func() { errCh <- tcp.Run(ctx, addr) }()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			cancelRun()
			return err
		}
	}

	stopTimeout := 5 * time.Second
	_ = udp.Stop(stopTimeout)
	if tcp != nil {
		_ = tcp.Stop(stopTimeout)
	}
	return nil
}

// buildUpstreamPool translates the configured upstream server list into a
// single, strict-order failover pool spanning every transport the wire
// format supports (UDP/TCP/TLS/HTTPS), defaulting bare host entries (no
// scheme) to plain UDP on port 53.
func (r *Runner) buildUpstreamPool(cfg *config.Config) (*upstream.Pool, error) {
	endpoints := make([]upstream.Endpoint, 0, len(cfg.Upstream.Servers))
	for _, s := range cfg.Upstream.Servers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !strings.Contains(s, "://") {
			s = "udp://" + s
		}
		ep, err := upstream.ParseEndpoint(s)
		if err != nil {
			if r.logger != nil {
				r.logger.Warn("invalid upstream server", "server", s, "err", err)
			}
			continue
		}
		endpoints = append(endpoints, ep)
	}

	return &upstream.Pool{
		Groups: []upstream.PoolGroup{
			{Name: "primary", Priority: 0, Strategy: upstream.Failover{}, Endpoints: endpoints},
		},
		Dialers: upstream.Dialers{
			UDP:  transport.NewUDP(),
			TCP:  transport.NewTCP(),
			TLS:  transport.NewDoT(),
			HTTP: transport.NewDoH(),
		},
	}, nil
}

// wrapFiltering wraps pipeline with a blocklist gate when filtering is
// enabled in cfg, compiling the index synchronously before the server
// starts accepting queries.
func (r *Runner) wrapFiltering(ctx context.Context, cfg *config.Config, pipeline *resolver.Pipeline) resolver.Layer {
	if !cfg.Filtering.Enabled {
		return pipeline
	}

	const defaultGroup = "default"
	engine := filtering.NewEngine(helpers.NewCoarseClock(), defaultGroup, r.logger)
	engine.Reload(ctx, r.buildCompileConfig(cfg, defaultGroup), nil)

	if r.logger != nil {
		r.logger.Info("filtering enabled",
			"whitelist_count", len(cfg.Filtering.WhitelistDomains),
			"blacklist_count", len(cfg.Filtering.BlacklistDomains),
			"blocklists", len(cfg.Filtering.Blocklists),
		)
	}

	return newFilterLayer(engine, defaultGroup, "nxdomain", nil, nil, pipeline)
}

// buildCompileConfig converts the flat FilteringConfig into the shape
// filtering.Compile expects.
func (r *Runner) buildCompileConfig(cfg *config.Config, defaultGroup string) filtering.CompileConfig {
	cc := filtering.CompileConfig{
		DefaultGroupID: defaultGroup,
		Groups:         []filtering.Group{{ID: defaultGroup, Name: "Default", Enabled: true, IsDefault: true}},
		ManualBlock:    cfg.Filtering.BlacklistDomains,
		ManualAllow:    cfg.Filtering.WhitelistDomains,
	}
	for _, bl := range cfg.Filtering.Blocklists {
		format := filtering.FormatAuto
		switch bl.Format {
		case "adblock":
			format = filtering.FormatAdblock
		case "hosts":
			format = filtering.FormatHosts
		case "domains":
			format = filtering.FormatDomains
		}
		cc.Blocklists = append(cc.Blocklists, filtering.CompileSource{
			Name: bl.Name, URL: bl.URL, Format: format,
		})
	}
	return cc
}

// configureRuntime sets GOMAXPROCS based on worker configuration.
// Workers can reduce but never increase parallelism beyond the default.
func (r *Runner) configureRuntime(cfg *config.Config) int {
	baseProcs := runtime.GOMAXPROCS(0)
	if baseProcs <= 0 {
		baseProcs = 1
	}
	desiredProcs := baseProcs

	if cfg.Server.Workers.Mode == config.WorkersFixed {
		w := cfg.Server.Workers.Value
		if w <= 0 {
			w = 1
		}
		if w < desiredProcs {
			desiredProcs = w
		}
	}

	prev := runtime.GOMAXPROCS(desiredProcs)
	actual := runtime.GOMAXPROCS(0)
	if r.logger != nil {
		r.logger.Info("runtime", "gomaxprocs", actual, "prev", prev, "base", baseProcs)
	}
	return actual
}

// calculateMaxConcurrency determines the maximum concurrent request handlers.
func (r *Runner) calculateMaxConcurrency(cfg *config.Config, procs int) int {
	maxConc := cfg.Server.MaxConcurrency
	if maxConc <= 0 {
		c := procs
		if c <= 0 {
			c = 1
		}
		maxConc = c * 256
		if maxConc > 2048 {
			maxConc = 2048
		}
		if maxConc < 1 {
			maxConc = 1
		}
	}
	return maxConc
}

// calculateUpstreamPoolSize determines the UDP connection pool size for upstream queries.
func (r *Runner) calculateUpstreamPoolSize(cfg *config.Config, maxConc int) int {
	upPool := cfg.Server.UpstreamSocketPoolSize
	if upPool <= 0 {
		upPool = maxConc
		if upPool < 64 {
			upPool = 64
		}
		if upPool > 1024 {
			upPool = 1024
		}
	}
	return upPool
}

// logStartup logs server configuration at startup.
func (r *Runner) logStartup(cfg *config.Config, addr string, maxConc, upPool int) {
	if r.logger != nil {
		r.logger.Info(
			"dns listening",
			"addr", addr,
			"udp", true,
			"tcp", cfg.Server.EnableTCP,
			"upstreams", cfg.Upstream.Servers,
			"max_concurrency", maxConc,
			"upstream_pool", upPool,
		)
	}
}

// slogQueryLogRepository persists query log entries to structured logs
// rather than a database, since no storage backend is in scope here.
type slogQueryLogRepository struct {
	logger *slog.Logger
}

func (s *slogQueryLogRepository) LogQuery(ctx context.Context, entry ports.QueryLogEntry) error {
	if s.logger == nil {
		return nil
	}
	s.logger.DebugContext(ctx, "query log",
		"domain", entry.Domain,
		"type", int(entry.Type),
		"client", entry.ClientIP,
		"blocked", entry.Blocked,
		"cache_hit", entry.CacheHit,
	)
	return nil
}
