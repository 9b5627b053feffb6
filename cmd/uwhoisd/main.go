package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/raven-go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"uwhoisd/internal/cache"
	"uwhoisd/internal/log"
	"uwhoisd/internal/meta"
	"uwhoisd/internal/metrics"
	"uwhoisd/internal/network"
	"uwhoisd/internal/protocol"
	"uwhoisd/internal/whois"
)

const (
	// limiterSweepInterval is how often idle rate limiter buckets are discarded.
	limiterSweepInterval = time.Minute
	// limiterIdleTimeout is how long a client's bucket is kept after its last query.
	limiterIdleTimeout = 10 * time.Minute
)

// serveFlags are the command line options of the serve command.
type serveFlags struct {
	configPath string
	verbosity  string
}

// hooks bundles the metrics hooks handed to each component.
type hooks struct {
	clientCxLifecycle   metrics.ConnectionLifecycleHook
	upstreamCxLifecycle metrics.ConnectionLifecycleHook
	clientCxIO          metrics.ConnectionIOHook
	whois               metrics.WhoisHook
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	sf := &serveFlags{}

	serveCmd := &cobra.Command{
		Use:          "serve",
		Short:        "Run the WHOIS proxy.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(sf)
		},
	}

	rootCmd := &cobra.Command{
		Use:          "uwhoisd",
		Short:        "A universal WHOIS proxy server.",
		SilenceUsage: true,
		RunE:         serveCmd.RunE,
	}

	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		fs := cmd.Flags()
		fs.StringVarP(&sf.configPath, "config", "c", os.Getenv("UWHOISD_CONFIG"), "path to the configuration file on disk")
		fs.StringVarP(&sf.verbosity, "verbosity", "v", "error", "desired logging verbosity: one of error, warn, info, debug")
	}

	rootCmd.AddCommand(serveCmd, &cobra.Command{
		Use:   "version",
		Short: "Print the compiled uwhoisd version SHA.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "uwhoisd/%s\n", meta.Version())
		},
	})

	return rootCmd
}

func serve(sf *serveFlags) error {
	// Logging configuration; default to log.Error verbosity
	level, ok := log.ParseLevel(sf.verbosity)
	if !ok {
		return fmt.Errorf("main: unknown verbosity: verbosity=%s", sf.verbosity)
	}

	logger := log.NewConsoleLogger(level)
	logger.Debug("main: initialized logger: level=%v", level)

	if sf.configPath == "" {
		return fmt.Errorf("main: no configuration file specified")
	}

	// Parse application configuration
	logger.Debug("main: reading and parsing config: path=%s", sf.configPath)
	config, err := meta.ParseConfig(sf.configPath)
	if err != nil {
		logger.Error("main: invalid configuration: err=%v", err)
		return err
	}

	// Configure error reporting
	if config.Application != nil && config.Application.SentryDSN != "" {
		if err := raven.SetDSN(config.Application.SentryDSN); err != nil {
			return fmt.Errorf("main: invalid sentry DSN: err=%v", err)
		}
		raven.SetRelease(meta.Version())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Configure metrics reporting
	h, err := configureMetrics(ctx, g, config, logger)
	if err != nil {
		return err
	}

	// Configure the resolution engine and its cache
	client := network.NewWhoisClient(h.upstreamCxLifecycle, network.WhoisClientOpts{
		ConnectTimeout: config.Server.ConnectTimeout,
		Timeout:        config.Server.UpstreamTimeout,
	})

	engine := &whois.UWhois{
		Routing:  config.Routing(),
		Upstream: client,
		Hook:     h.whois,
		Logger:   logger,
		Opts: whois.UWhoisOpts{
			RegistryWhois: config.Server.RegistryWhois,
			PageFeed:      config.Server.PageFeed,
		},
	}

	c, err := cache.New(config.CacheOpts(logger))
	if err != nil {
		logger.Error("main: error creating cache: err=%v", err)
		return err
	}

	if c == nil {
		logger.Info("main: caching deactivated")
	} else {
		logger.Info(
			"main: caching activated: type=%s max_size=%d max_age=%ds",
			config.Cache.Type,
			config.Cache.MaxSize,
			config.Cache.MaxAge,
		)
	}

	// Configure the server listener
	handler := &protocol.WhoisProxyHandler{
		Whois:          cache.Wrap(c, engine.Whois, h.whois, logger),
		ClientCxIOHook: h.clientCxIO,
		Hook:           h.whois,
		Logger:         logger,
		Opts: protocol.WhoisProxyOpts{
			UpstreamTimeout: config.Server.UpstreamTimeout,
		},
	}

	if config.RateLimit != nil {
		logger.Info(
			"main: configuring per-client rate limiting: rate=%v burst=%d",
			config.RateLimit.Rate,
			config.RateLimit.Burst,
		)

		handler.Limiter = protocol.NewClientLimiter(config.RateLimit.Rate, config.RateLimit.Burst)

		g.Go(func() error {
			handler.Limiter.Run(ctx, limiterSweepInterval, limiterIdleTimeout)
			return nil
		})
	}

	tcpServer := network.NewTCPServer(
		config.ListenAddress(),
		h.clientCxLifecycle,
		network.TCPServerOpts{
			ReadTimeout:  config.Server.ReadTimeout,
			WriteTimeout: config.Server.WriteTimeout,
		},
	)

	logger.Info("main: configuring TCP server listener: addr=%s", config.ListenAddress())

	g.Go(func() error {
		return tcpServer.ListenAndServe(ctx, handler)
	})

	logger.Info("main: serving until interrupted")

	if err := g.Wait(); err != nil {
		logger.Error("main: server exited: err=%v", err)
		return err
	}

	logger.Info("main: shut down cleanly")

	return nil
}

// configureMetrics builds the metrics hooks selected by the configuration, starting the prometheus
// exposition server on g if one is configured. Without any metrics output engine all hooks noop.
func configureMetrics(ctx context.Context, g *errgroup.Group, config *meta.Config, logger log.Logger) (*hooks, error) {
	var (
		clientCxLifecycle   []metrics.ConnectionLifecycleHook
		upstreamCxLifecycle []metrics.ConnectionLifecycleHook
		clientCxIO          []metrics.ConnectionIOHook
		whoisHooks          []metrics.WhoisHook
	)

	if config.Metrics != nil && config.Metrics.Statsd != nil {
		addr := config.Metrics.Statsd.Address
		sampleRate := float32(config.Metrics.Statsd.SampleRate)

		logger.Info("main: configuring statsd metrics reporting: addr=%s sample_rate=%f", addr, sampleRate)

		clientHook, err := metrics.NewAsyncStatsdConnectionLifecycleHook("client", addr, sampleRate, meta.Version())
		if err != nil {
			return nil, err
		}

		upstreamHook, err := metrics.NewAsyncStatsdConnectionLifecycleHook("upstream", addr, sampleRate, meta.Version())
		if err != nil {
			return nil, err
		}

		ioHook, err := metrics.NewAsyncStatsdConnectionIOHook("client", addr, sampleRate, meta.Version())
		if err != nil {
			return nil, err
		}

		whoisHook, err := metrics.NewAsyncStatsdWhoisHook(addr, sampleRate, meta.Version())
		if err != nil {
			return nil, err
		}

		clientCxLifecycle = append(clientCxLifecycle, clientHook)
		upstreamCxLifecycle = append(upstreamCxLifecycle, upstreamHook)
		clientCxIO = append(clientCxIO, ioHook)
		whoisHooks = append(whoisHooks, whoisHook)
	}

	if config.Metrics != nil && config.Metrics.Prometheus != nil {
		addr := config.Metrics.Prometheus.Address
		registry := metrics.NewPrometheusRegistry()

		logger.Info("main: configuring prometheus metrics exposition: addr=%s", addr)

		clientCxLifecycle = append(clientCxLifecycle, registry.ConnectionLifecycleHook("client"))
		upstreamCxLifecycle = append(upstreamCxLifecycle, registry.ConnectionLifecycleHook("upstream"))
		clientCxIO = append(clientCxIO, registry.ConnectionIOHook("client"))
		whoisHooks = append(whoisHooks, registry.WhoisHook())

		mux := http.NewServeMux()
		mux.Handle("/metrics", registry.Handler())

		server := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("main: prometheus server failed: err=%v", err)
			}

			return nil
		})

		g.Go(func() error {
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			return server.Shutdown(shutdownCtx)
		})
	}

	if len(whoisHooks) == 0 {
		logger.Warn("main: no metrics output engine specified; disabling metrics")
	}

	return &hooks{
		clientCxLifecycle:   metrics.NewMultiConnectionLifecycleHook(clientCxLifecycle...),
		upstreamCxLifecycle: metrics.NewMultiConnectionLifecycleHook(upstreamCxLifecycle...),
		clientCxIO:          metrics.NewMultiConnectionIOHook(clientCxIO...),
		whois:               metrics.NewMultiWhoisHook(whoisHooks...),
	}, nil
}
