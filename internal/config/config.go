// Package config assembles the server configuration from defaults, a .env
// file, GLOBE_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/signalsfoundry/globe-poi/core"
	"github.com/signalsfoundry/globe-poi/internal/logging"
	"github.com/signalsfoundry/globe-poi/internal/observability"
)

// Marker source kinds.
const (
	SourceFile     = "file"
	SourceHTTP     = "http"
	SourceSQLite   = "sqlite"
	SourcePostgres = "postgres"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is everything the globe server needs to start.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string
	Domain      string // enables autocert TLS on the HTTP API when set
	CertCache   string

	MarkerSource string
	MarkerPath   string
	MarkerURL    string
	MarkerDSN    string
	MarkerTable  string

	SphereRadius   float64
	MarkerOffset   float64
	MarkerSize     float64
	FrameInterval  time.Duration
	RotationMode   string
	SpinRate       float64
	PulseAmplitude float64
	PulseFrequency float64

	GeocodeURL       string
	GeocodeUserAgent string
	GeocodeTimeout   time.Duration
	GeocodeCacheSize int
	UnknownName      string

	LogLevel  string
	LogFormat string
	Tracing   observability.TracingConfig
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",
		CertCache:   "certs",

		MarkerSource: SourceFile,
		MarkerPath:   "markers.json",
		MarkerTable:  "markers",

		SphereRadius:   core.DefaultRadius,
		MarkerOffset:   core.DefaultMarkerOffset,
		MarkerSize:     core.DefaultMarkerSize,
		FrameInterval:  16 * time.Millisecond,
		RotationMode:   core.RotationSpin,
		SpinRate:       core.DefaultSpinRate,
		PulseAmplitude: 0.3,
		PulseFrequency: 3,

		GeocodeURL:       "https://nominatim.openstreetmap.org",
		GeocodeUserAgent: "globe-poi/1.0",
		GeocodeTimeout:   5 * time.Second,
		GeocodeCacheSize: 256,
		UnknownName:      "unknown location",

		LogLevel:  "info",
		LogFormat: "text",
		Tracing: observability.TracingConfig{
			ServiceName: "globe-server",
			Exporter:    "stdout",
			SampleRatio: 1,
		},
	}
}

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// EnvLookup returns a lookup over the process environment backed by the
// given .env files. Real environment variables win over file entries, and
// missing files are skipped.
func EnvLookup(files ...string) (LookupFunc, error) {
	fileVals := map[string]string{}
	for _, f := range files {
		vals, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		for k, v := range vals {
			if _, seen := fileVals[k]; !seen {
				fileVals[k] = v
			}
		}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVals[key]
		return v, ok
	}, nil
}

// Load builds a Config: defaults, then env via lookup, then flags parsed from
// args. The result is validated.
func Load(name string, args []string, lookup LookupFunc) (Config, error) {
	cfg := Default()
	if lookup != nil {
		if err := cfg.applyEnv(lookup); err != nil {
			return Config{}, err
		}
	}

	fset := flag.NewFlagSet(name, flag.ContinueOnError)
	cfg.RegisterFlags(fset)
	if err := fset.Parse(args); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RegisterFlags binds every field to a flag whose default is the current
// value.
func (c *Config) RegisterFlags(fset *flag.FlagSet) {
	fset.StringVar(&c.HTTPAddr, "http-addr", c.HTTPAddr, "HTTP API listen address")
	fset.StringVar(&c.GRPCAddr, "grpc-addr", c.GRPCAddr, "gRPC listen address (empty disables)")
	fset.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Prometheus /metrics listen address (empty disables)")
	fset.StringVar(&c.Domain, "domain", c.Domain, "serve the HTTP API over TLS with an ACME certificate for this domain")
	fset.StringVar(&c.CertCache, "cert-cache", c.CertCache, "directory for ACME certificates")

	fset.StringVar(&c.MarkerSource, "markers-source", c.MarkerSource, "marker source: file, http, sqlite or postgres")
	fset.StringVar(&c.MarkerPath, "markers", c.MarkerPath, "marker JSON file (file source)")
	fset.StringVar(&c.MarkerURL, "markers-url", c.MarkerURL, "marker JSON URL (http source)")
	fset.StringVar(&c.MarkerDSN, "markers-dsn", c.MarkerDSN, "database DSN (sqlite and postgres sources)")
	fset.StringVar(&c.MarkerTable, "markers-table", c.MarkerTable, "table holding name, lat, lon columns")

	fset.Float64Var(&c.SphereRadius, "radius", c.SphereRadius, "globe radius in scene units")
	fset.Float64Var(&c.MarkerOffset, "marker-offset", c.MarkerOffset, "marker lift above the surface")
	fset.Float64Var(&c.MarkerSize, "marker-size", c.MarkerSize, "marker dot radius for hit testing (0 disables)")
	fset.DurationVar(&c.FrameInterval, "frame-interval", c.FrameInterval, "render loop period")
	fset.StringVar(&c.RotationMode, "rotation", c.RotationMode, "globe rotation: none, spin or sidereal")
	fset.Float64Var(&c.SpinRate, "spin-rate", c.SpinRate, "spin rate in rad/s")
	fset.Float64Var(&c.PulseAmplitude, "pulse-amplitude", c.PulseAmplitude, "marker pulse amplitude")
	fset.Float64Var(&c.PulseFrequency, "pulse-frequency", c.PulseFrequency, "marker pulse angular frequency (rad/s)")

	fset.StringVar(&c.GeocodeURL, "geocode-url", c.GeocodeURL, "reverse-geocoding base URL (empty disables lookups)")
	fset.StringVar(&c.GeocodeUserAgent, "geocode-user-agent", c.GeocodeUserAgent, "User-Agent sent to the geocoder")
	fset.DurationVar(&c.GeocodeTimeout, "geocode-timeout", c.GeocodeTimeout, "bound on a single name lookup")
	fset.IntVar(&c.GeocodeCacheSize, "geocode-cache", c.GeocodeCacheSize, "cached lookups (0 disables)")
	fset.StringVar(&c.UnknownName, "unknown-name", c.UnknownName, "name shown when a lookup fails")

	fset.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fset.StringVar(&c.LogFormat, "log-format", c.LogFormat, "text or json")
	fset.BoolVar(&c.Tracing.Enabled, "tracing", c.Tracing.Enabled, "enable OpenTelemetry tracing")
	fset.StringVar(&c.Tracing.Exporter, "tracing-exporter", c.Tracing.Exporter, "stdout or otlp")
	fset.StringVar(&c.Tracing.Endpoint, "otlp-endpoint", c.Tracing.Endpoint, "OTLP gRPC endpoint")
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("GLOBE_HTTP_ADDR", &c.HTTPAddr)
	e.str("GLOBE_GRPC_ADDR", &c.GRPCAddr)
	e.str("GLOBE_METRICS_ADDR", &c.MetricsAddr)
	e.str("GLOBE_DOMAIN", &c.Domain)
	e.str("GLOBE_CERT_CACHE", &c.CertCache)

	e.str("GLOBE_MARKERS_SOURCE", &c.MarkerSource)
	e.str("GLOBE_MARKERS", &c.MarkerPath)
	e.str("GLOBE_MARKERS_URL", &c.MarkerURL)
	e.str("GLOBE_MARKERS_DSN", &c.MarkerDSN)
	e.str("GLOBE_MARKERS_TABLE", &c.MarkerTable)

	e.float("GLOBE_RADIUS", &c.SphereRadius)
	e.float("GLOBE_MARKER_OFFSET", &c.MarkerOffset)
	e.float("GLOBE_MARKER_SIZE", &c.MarkerSize)
	e.duration("GLOBE_FRAME_INTERVAL", &c.FrameInterval)
	e.str("GLOBE_ROTATION", &c.RotationMode)
	e.float("GLOBE_SPIN_RATE", &c.SpinRate)
	e.float("GLOBE_PULSE_AMPLITUDE", &c.PulseAmplitude)
	e.float("GLOBE_PULSE_FREQUENCY", &c.PulseFrequency)

	e.str("GLOBE_GEOCODE_URL", &c.GeocodeURL)
	e.str("GLOBE_GEOCODE_USER_AGENT", &c.GeocodeUserAgent)
	e.duration("GLOBE_GEOCODE_TIMEOUT", &c.GeocodeTimeout)
	e.integer("GLOBE_GEOCODE_CACHE", &c.GeocodeCacheSize)
	e.str("GLOBE_UNKNOWN_NAME", &c.UnknownName)

	e.str("GLOBE_LOG_LEVEL", &c.LogLevel)
	e.str("GLOBE_LOG_FORMAT", &c.LogFormat)
	e.boolean("GLOBE_TRACING_ENABLED", &c.Tracing.Enabled)
	e.str("GLOBE_TRACING_EXPORTER", &c.Tracing.Exporter)
	e.str("GLOBE_TRACING_SERVICE_NAME", &c.Tracing.ServiceName)
	e.str("GLOBE_OTLP_ENDPOINT", &c.Tracing.Endpoint)
	e.float("GLOBE_TRACING_SAMPLE_RATIO", &c.Tracing.SampleRatio)

	return errors.Join(e.errs...)
}

// Validate rejects configurations the scene cannot run with.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.SphereRadius <= 0 {
		bad("radius must be positive, got %v", c.SphereRadius)
	}
	if c.MarkerOffset < 0 {
		bad("marker offset must not be negative, got %v", c.MarkerOffset)
	}
	if c.MarkerSize < 0 {
		bad("marker size must not be negative, got %v", c.MarkerSize)
	}
	if c.FrameInterval <= 0 {
		bad("frame interval must be positive, got %v", c.FrameInterval)
	}
	if c.GeocodeTimeout <= 0 {
		bad("geocode timeout must be positive, got %v", c.GeocodeTimeout)
	}
	if c.GeocodeCacheSize < 0 {
		bad("geocode cache size must not be negative, got %d", c.GeocodeCacheSize)
	}
	if _, err := core.NewRotationModel(c.RotationMode, c.SpinRate); err != nil {
		bad("%v", err)
	}
	if err := c.Logging().Validate(); err != nil {
		bad("%v", err)
	}
	if err := c.Tracing.Validate(); err != nil {
		bad("%v", err)
	}

	switch strings.ToLower(c.MarkerSource) {
	case SourceFile:
		if c.MarkerPath == "" {
			bad("file marker source needs a path")
		}
	case SourceHTTP:
		if c.MarkerURL == "" {
			bad("http marker source needs a URL")
		}
	case SourceSQLite, SourcePostgres:
		if c.MarkerDSN == "" {
			bad("%s marker source needs a DSN", c.MarkerSource)
		}
	default:
		bad("unknown marker source %q", c.MarkerSource)
	}
	return errors.Join(errs...)
}

// Logging returns the logger settings.
func (c Config) Logging() logging.Config {
	return logging.Config{Level: c.LogLevel, Format: c.LogFormat, AddSource: true}
}

type envReader struct {
	lookup LookupFunc
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) float(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err))
			return
		}
		*dst = f
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err))
			return
		}
		*dst = d
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err))
			return
		}
		*dst = b
	}
}
