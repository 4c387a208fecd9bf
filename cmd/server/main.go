package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/plushcare/portal/internal/cache"
	"github.com/plushcare/portal/internal/cacheadmin"
	"github.com/plushcare/portal/internal/cfg"
	"github.com/plushcare/portal/internal/health"
	"github.com/plushcare/portal/internal/httpmw"
	"github.com/plushcare/portal/internal/httpserver"
	"github.com/plushcare/portal/internal/log"
	"github.com/plushcare/portal/internal/metrics"
	"github.com/plushcare/portal/internal/opshttp"
	"github.com/plushcare/portal/internal/otelx"
	"github.com/plushcare/portal/internal/portalcache"
	"github.com/plushcare/portal/internal/prof"
	"github.com/plushcare/portal/internal/ratelimit"
	"github.com/plushcare/portal/internal/secrets"
	v "github.com/plushcare/portal/internal/version"
)

const component = "server"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(vi.String())
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSON:              conf.LogJSON,
		IncludeErrorLinks: conf.IncludeErrorLinks,
		MaxErrorLinks:     conf.MaxErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", component)
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"ops_port", conf.OpsPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"trace_sample", conf.TraceSample,
		"trusted_proxy_hops", conf.TrustedProxyHops,
		"ip_rate", conf.IPRatePerSecond,
		"ip_burst", conf.IPBurst,
		"cache_tuning_file", conf.CacheTuningFile,
		"admin_token_source", adminTokenSource(conf),
	)

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, component, &vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName + "." + component,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"version": vi.Version,
			"commit":  vi.Commit,
		},
	})
	if err != nil {
		// profiling is optional, keep serving without it
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(err == nil && conf.EnablePyroscope)
	defer stopProf()

	// Insecure because the collector runs on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: component,
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed, tracing disabled")
		shutdownOTEL = func(context.Context) error { return nil }
	}

	adminToken, err := resolveAdminToken(ctx, conf)
	if err != nil {
		L.Error(ctx, err, "failed to resolve admin token", "ssm_param", conf.AdminTokenSSMParam)
		os.Exit(1)
	}
	if adminToken == "" {
		L.Warn(ctx, "no admin token configured, admin API will reject every request")
	}

	tuning, err := portalcache.LoadTuning(conf.CacheTuningFile)
	if err != nil {
		L.Error(ctx, err, "failed to load cache tuning", "path", conf.CacheTuningFile)
		os.Exit(1)
	}
	caches, err := portalcache.New(tuning, portalcache.WithOnEvict(func(cacheName, key string, reason cache.EvictReason) {
		if reason == cache.EvictCapacity {
			L.Debug(ctx, "cache entry evicted for capacity", "cache", cacheName)
		}
	}))
	if err != nil {
		L.Error(ctx, err, "failed to build caches")
		os.Exit(1)
	}
	if err := m.Register(metrics.NewCacheCollector(caches.Registry)); err != nil {
		L.Error(ctx, err, "failed to register cache collector")
		os.Exit(1)
	}
	caches.RunJanitors(ctx, conf.JanitorInterval)

	categories, err := ratelimit.NewCategories(ratelimit.DefaultPolicies(),
		ratelimit.WithOnLimited(func(category, token string) {
			m.IncLimited(category)
		}),
	)
	if err != nil {
		L.Error(ctx, err, "failed to build rate limit categories")
		os.Exit(1)
	}

	ipLimiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.IPRatePerSecond, conf.IPBurst),
		ratelimit.WithMaxVisitors(conf.IPMaxVisitors),
		ratelimit.WithOnDenied(func(ip string) {
			m.IncRateLimitDenied()
		}),
		// once per IP until it ages out, so a flood is one line
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "client.address", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limit visitor cap reached, rejecting new visitors until some are evicted")
		}),
	)

	adminAPI := cacheadmin.NewAPI(caches, categories, adminToken, L)

	var gate health.ShutdownGate
	readiness := gate.Probe()
	liveness := health.Fixed(true, "")

	appStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		Health:       liveness,
		Readiness:    readiness,
		APIRoutes:    adminAPI.RegisterRoutes,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  ipLimiter.Middleware,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedProxyHops},
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		os.Exit(1)
	}

	// the ops port is reachable from monitoring only
	opsStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:         conf.OpsPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       liveness,
		Readiness:    readiness,
		Stats:        http.HandlerFunc(adminAPI.HandleCacheStats),
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		_ = appStop(context.Background())
		os.Exit(1)
	}

	if err := notifySystemd(); err != nil {
		// not fatal, worst case systemd kills us after its start timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	L.Info(context.Background(), "shutdown signal received")
	gate.Set("draining")

	// keep serving while the load balancer notices readiness failing
	if conf.DrainDelay > 0 {
		L.Info(context.Background(), "draining", "delay", conf.DrainDelay)
		forceCh := make(chan os.Signal, 1)
		signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-time.After(conf.DrainDelay):
			L.Info(context.Background(), "drain period complete")
		case <-forceCh:
			L.Warn(context.Background(), "second signal received, skipping drain")
		}
		signal.Stop(forceCh)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := appStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "http server shutdown")
	}
	if err := opsStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	// stops janitors and the IP limiter sweep
	cancel()

	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

func adminTokenSource(c cfg.App) string {
	switch {
	case c.AdminToken != "":
		return "flag"
	case c.AdminTokenSSMParam != "":
		return "ssm"
	}
	return "none"
}

func resolveAdminToken(ctx context.Context, c cfg.App) (string, error) {
	var store secrets.Getter
	if c.AdminToken == "" && c.AdminTokenSSMParam != "" {
		s, err := secrets.NewSSMStoreFromEnv(ctx)
		if err != nil {
			return "", err
		}
		store = s
	}
	return secrets.AdminToken(ctx, c.AdminToken, c.AdminTokenSSMParam, store)
}

func notifySystemd() error {
	// set by systemd for Type=notify units
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		conn.Close()
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
