package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/globe-poi/core"
	"github.com/signalsfoundry/globe-poi/internal/config"
	"github.com/signalsfoundry/globe-poi/internal/geocode"
	"github.com/signalsfoundry/globe-poi/internal/httpapi"
	"github.com/signalsfoundry/globe-poi/internal/interaction"
	"github.com/signalsfoundry/globe-poi/internal/logging"
	"github.com/signalsfoundry/globe-poi/internal/markersource"
	"github.com/signalsfoundry/globe-poi/internal/observability"
	"github.com/signalsfoundry/globe-poi/internal/rpc"
	"github.com/signalsfoundry/globe-poi/internal/scene"
	"github.com/signalsfoundry/globe-poi/timectrl"
)

const shutdownTimeout = 5 * time.Second

func main() {
	lookup, err := config.EnvLookup(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "globe-server: %v\n", err)
		os.Exit(2)
	}
	cfg, err := config.Load("globe-server", os.Args[1:], lookup)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "globe-server: %v\n", err)
		os.Exit(2)
	}

	log := logging.New(cfg.Logging())
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, listeners{}); err != nil {
		log.Error(ctx, "globe server exited", logging.Err(err))
		os.Exit(1)
	}
}

// listeners lets callers hand in pre-bound sockets; a nil listener is opened
// from the configured address, and an empty address disables that server.
type listeners struct {
	grpc    net.Listener
	http    net.Listener
	metrics net.Listener
}

func listen(lis net.Listener, addr string) (net.Listener, error) {
	if lis != nil || addr == "" {
		return lis, nil
	}
	return net.Listen("tcp", addr)
}

// run wires the scene and its transports and blocks until ctx is done.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis listeners) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	globeMetrics, err := observability.NewGlobeCollector(reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	resolutionMetrics, err := observability.NewResolutionCollector(reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	resolver, err := buildResolver(cfg, resolutionMetrics)
	if err != nil {
		return err
	}
	ctrl := interaction.NewController(resolver,
		interaction.WithLookupTimeout(cfg.GeocodeTimeout),
		interaction.WithUnknownName(cfg.UnknownName),
		interaction.WithLogger(log),
		interaction.WithMetrics(resolutionMetrics),
	)

	rotation, err := core.NewRotationModel(cfg.RotationMode, cfg.SpinRate)
	if err != nil {
		return err
	}
	sc := scene.New(ctrl,
		scene.WithRadius(cfg.SphereRadius),
		scene.WithMarkerOffset(cfg.MarkerOffset),
		scene.WithMarkerSize(cfg.MarkerSize),
		scene.WithRotation(rotation),
		scene.WithPulse(core.PulseAnimator{Amplitude: cfg.PulseAmplitude, Frequency: cfg.PulseFrequency}),
		scene.WithFrameClock(timectrl.NewFrameClock(cfg.FrameInterval, timectrl.RealTime)),
		scene.WithLogger(log),
		scene.WithMetrics(globeMetrics),
	)

	if err := loadMarkers(ctx, cfg, sc, log); err != nil {
		return err
	}

	grpcLis, err := listen(lis.grpc, cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	httpLis, err := listen(lis.http, cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	metricsLis, err := listen(lis.metrics, cfg.MetricsAddr)
	if err != nil {
		return fmt.Errorf("listen metrics: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sc.Run(gctx) })

	if grpcLis != nil {
		server := grpc.NewServer(
			grpc.StatsHandler(otelgrpc.NewServerHandler()),
			grpc.ChainUnaryInterceptor(
				rpc.RequestIDUnaryServerInterceptor(log),
				rpc.TracingUnaryServerInterceptor(),
				globeMetrics.UnaryServerInterceptor(),
			),
			grpc.ChainStreamInterceptor(rpc.RequestIDStreamServerInterceptor(log)),
		)
		rpc.RegisterGlobeServiceServer(server, rpc.NewServer(sc, log))

		g.Go(func() error {
			log.Info(ctx, "starting gRPC server", logging.String("addr", grpcLis.Addr().String()))
			if err := server.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			server.GracefulStop()
			return nil
		})
	}

	if httpLis != nil {
		api := httpapi.New(sc,
			httpapi.WithLogger(log),
			httpapi.WithMetrics(globeMetrics),
			httpapi.WithMetricsHandler(globeMetrics.Handler()),
		)
		srv := &http.Server{Handler: api.Handler(), ReadHeaderTimeout: 10 * time.Second}
		serveHTTP(gctx, g, cfg, srv, httpLis, log)
	}

	if metricsLis != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", globeMetrics.Handler())
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			log.Info(ctx, "serving Prometheus metrics", logging.String("addr", metricsLis.Addr().String()))
			return ignoreClosed(srv.Serve(metricsLis))
		})
		g.Go(func() error { return shutdownOnDone(gctx, srv) })
	}

	err = g.Wait()
	log.Info(context.Background(), "globe server stopped")
	return err
}

// serveHTTP starts the API server, over TLS with an ACME certificate when a
// domain is configured.
func serveHTTP(ctx context.Context, g *errgroup.Group, cfg config.Config, srv *http.Server, lis net.Listener, log logging.Logger) {
	if cfg.Domain == "" {
		g.Go(func() error {
			log.Info(ctx, "starting HTTP API", logging.String("addr", lis.Addr().String()))
			return ignoreClosed(srv.Serve(lis))
		})
		g.Go(func() error { return shutdownOnDone(ctx, srv) })
		return
	}

	certs := httpapi.CertManager(cfg.Domain, cfg.CertCache)
	srv.TLSConfig = certs.TLSConfig()
	challenge := &http.Server{Addr: ":80", Handler: httpapi.ChallengeHandler(certs), ReadHeaderTimeout: 10 * time.Second}

	g.Go(func() error {
		log.Info(ctx, "starting HTTPS API",
			logging.String("addr", lis.Addr().String()),
			logging.String("domain", cfg.Domain),
		)
		return ignoreClosed(srv.ServeTLS(lis, "", ""))
	})
	g.Go(func() error {
		if err := ignoreClosed(challenge.ListenAndServe()); err != nil {
			log.Warn(ctx, "ACME challenge server exited", logging.Err(err))
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		_ = shutdownOnDone(ctx, challenge)
		return shutdownOnDone(ctx, srv)
	})
}

func shutdownOnDone(ctx context.Context, srv *http.Server) error {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// buildResolver chains the reverse geocoder with its cache and timeout. An
// empty geocode URL disables lookups, so every surface pick falls back to
// the unknown-location name.
func buildResolver(cfg config.Config, metrics *observability.ResolutionCollector) (geocode.Resolver, error) {
	if cfg.GeocodeURL == "" {
		return nil, nil
	}
	var resolver geocode.Resolver = geocode.NewNominatimClient(cfg.GeocodeURL, cfg.GeocodeUserAgent)
	if cfg.GeocodeCacheSize > 0 {
		cached, err := geocode.NewCachedResolver(resolver, cfg.GeocodeCacheSize)
		if err != nil {
			return nil, err
		}
		cached.OnHit = metrics.IncCacheHit
		resolver = cached
	}
	return geocode.WithTimeout(resolver, cfg.GeocodeTimeout), nil
}

// loadMarkers pulls the initial marker set from the configured source. A
// missing default marker file leaves the globe empty rather than failing.
func loadMarkers(ctx context.Context, cfg config.Config, sc *scene.Scene, log logging.Logger) error {
	src, err := markersource.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("marker source: %w", err)
	}
	defer src.Close()

	records, err := src.Load(ctx)
	if errors.Is(err, os.ErrNotExist) && cfg.MarkerSource == config.SourceFile {
		log.Warn(ctx, "marker file not found; starting with no markers", logging.String("source", src.Describe()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load markers from %s: %w", src.Describe(), err)
	}
	if err := sc.Store().Load(records); err != nil {
		return fmt.Errorf("load markers from %s: %w", src.Describe(), err)
	}
	log.Info(ctx, "markers loaded",
		logging.String("source", src.Describe()),
		logging.Int("markers", len(records)),
	)
	return nil
}
