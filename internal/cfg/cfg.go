package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/plushcare/portal/internal/log"
)

// EnvPrefix is prepended to every flag name to form its environment variable
const EnvPrefix = "PORTAL_"

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort   int
	OpsPort    int
	DrainDelay time.Duration

	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64

	TrustedProxyHops int
	IPRatePerSecond  float64
	IPBurst          int
	IPMaxVisitors    int

	CacheTuningFile string
	JanitorInterval time.Duration

	AdminToken         string
	AdminTokenSSMParam string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or text (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error chain links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "public listen TCP port (1..65535)")
	fs.IntVar(&c.OpsPort, "ops-port", 9000, "ops listen TCP port for metrics, health and pprof (1..65535)")
	fs.DurationVar(&c.DrainDelay, "drain-delay", 30*time.Second, "time to fail readiness before shutting listeners down")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on ops port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.IntVar(&c.TrustedProxyHops, "trusted-proxy-hops", 1, "number of reverse proxies in front of the server whose X-Forwarded-For entries are trusted")
	fs.Float64Var(&c.IPRatePerSecond, "ip-rate", 10, "per-IP request refill rate per second")
	fs.IntVar(&c.IPBurst, "ip-burst", 30, "per-IP burst size")
	fs.IntVar(&c.IPMaxVisitors, "ip-max-visitors", 100000, "max tracked client IPs, 0 for no cap")

	fs.StringVar(&c.CacheTuningFile, "cache-tuning-file", "", "YAML file overriding cache sizes and TTLs")
	fs.DurationVar(&c.JanitorInterval, "cache-janitor-interval", time.Minute, "how often expired cache entries are swept, 0 disables")

	fs.StringVar(&c.AdminToken, "admin-token", "", "bearer token for /api/admin routes")
	fs.StringVar(&c.AdminTokenSSMParam, "admin-token-ssm-param", "", "SSM SecureString parameter holding the admin token, used when admin-token is empty")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := EnvKey(prefix, f.Name)
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s", f.Name, f.Value.String(), key)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s: %v", f.Name, key, err)
			}
		}
	})
}

// EnvKey returns the environment variable consulted for a flag
func EnvKey(prefix, flagName string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(flagName), "-", "_")
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.OpsPort < 1 || c.OpsPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid OPS_PORT %d (must be 1..65535)", c.OpsPort))
	}
	if c.OpsPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("OPS_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}
	if c.DrainDelay < 0 {
		errs = append(errs, fmt.Errorf("DRAIN_DELAY must be >= 0 (got %s)", c.DrainDelay))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, errors.New("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, errors.New("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}
	// grpc exporter wants host:port, no scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, errors.New("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	if c.TrustedProxyHops < 0 || c.TrustedProxyHops > 10 {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXY_HOPS must be 0..10 (got %d)", c.TrustedProxyHops))
	}
	if c.IPRatePerSecond <= 0 {
		errs = append(errs, fmt.Errorf("IP_RATE must be > 0 (got %g)", c.IPRatePerSecond))
	}
	if c.IPBurst < 1 {
		errs = append(errs, fmt.Errorf("IP_BURST must be >= 1 (got %d)", c.IPBurst))
	}
	if c.IPMaxVisitors < 0 {
		errs = append(errs, fmt.Errorf("IP_MAX_VISITORS must be >= 0 (got %d)", c.IPMaxVisitors))
	}
	if c.JanitorInterval < 0 {
		errs = append(errs, fmt.Errorf("CACHE_JANITOR_INTERVAL must be >= 0 (got %s)", c.JanitorInterval))
	}

	if c.AdminToken != "" && c.AdminTokenSSMParam != "" {
		errs = append(errs, errors.New("set only one of ADMIN_TOKEN and ADMIN_TOKEN_SSM_PARAM"))
	}
	if c.AdminToken != "" && len(c.AdminToken) < 16 {
		errs = append(errs, errors.New("ADMIN_TOKEN must be at least 16 characters"))
	}

	return errors.Join(errs...)
}
