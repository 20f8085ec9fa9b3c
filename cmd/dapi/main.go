// Command dapi runs the state transition and transaction stream
// service in front of a ledger node.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/blockberries/dapi/config"
	dapigrpc "github.com/blockberries/dapi/grpc"
	"github.com/blockberries/dapi/ledger"
	"github.com/blockberries/dapi/metrics"
	"github.com/blockberries/dapi/server"
	"github.com/blockberries/dapi/store"
	"github.com/blockberries/dapi/stream"
	"github.com/blockberries/dapi/transition"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// Version is set at build time.
var Version = "dev"

const shutdownTimeout = 10 * time.Second

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to the YAML configuration file",
		EnvVars: []string{"DAPI_CONFIG"},
	}
	listenFlag = &cli.StringFlag{
		Name:    "listen",
		Usage:   "gRPC listen address",
		EnvVars: []string{"DAPI_LISTEN"},
	}
	metricsListenFlag = &cli.StringFlag{
		Name:    "metrics-listen",
		Usage:   "prometheus listen address, empty to disable",
		EnvVars: []string{"DAPI_METRICS_LISTEN"},
	}
	dataDirFlag = &cli.StringFlag{
		Name:    "data-dir",
		Usage:   "database directory, empty for in-memory storage",
		EnvVars: []string{"DAPI_DATA_DIR"},
	}
	nodeURLFlag = &cli.StringFlag{
		Name:    "node-url",
		Usage:   "ledger node JSON-RPC endpoint",
		EnvVars: []string{"DAPI_NODE_URL"},
	}
	logLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "debug, info, warn or error",
		EnvVars: []string{"DAPI_LOG_LEVEL"},
	}
	logFormatFlag = &cli.StringFlag{
		Name:    "log-format",
		Usage:   "json or text",
		EnvVars: []string{"DAPI_LOG_FORMAT"},
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "dapi:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "dapi",
		Usage:   "submit state transitions and stream filtered ledger transactions",
		Version: Version,
		Flags: []cli.Flag{
			configFlag,
			listenFlag,
			metricsListenFlag,
			dataDirFlag,
			nodeURLFlag,
			logLevelFlag,
			logFormatFlag,
		},
		Action: run,
		Commands: []*cli.Command{
			{
				Name:  "check-config",
				Usage: "load and validate the configuration, then exit",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "configuration ok (listen %s, node %s)\n", cfg.Listen, cfg.Node.URL)
					return nil
				},
			},
		},
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String(configFlag.Name); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}

	for _, o := range []struct {
		flag *cli.StringFlag
		dst  *string
	}{
		{listenFlag, &cfg.Listen},
		{metricsListenFlag, &cfg.MetricsListen},
		{dataDirFlag, &cfg.DataDir},
		{nodeURLFlag, &cfg.Node.URL},
		{logLevelFlag, &cfg.Log.Level},
		{logFormatFlag, &cfg.Log.Format},
	} {
		if c.IsSet(o.flag.Name) {
			*o.dst = c.String(o.flag.Name)
		}
	}

	return cfg, cfg.Validate()
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := setupLogger(cfg.Log.Level, cfg.Log.Format)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	db, err := openStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn("Failed to close store", "err", err)
		}
	}()

	ctx := c.Context
	node, err := ledger.Dial(ctx, log.With("sys", "ledger"), cfg.Node.URL)
	if err != nil {
		return err
	}
	defer node.Close()

	start := cfg.Node.StartHeight
	if last, ok, err := db.Blocks().LastHeight(); err != nil {
		return fmt.Errorf("read last block height: %w", err)
	} else if ok {
		start = last + 1
	}

	feed := ledger.NewFeed()
	poller := ledger.NewPoller(log.With("sys", "poller"), ledger.PollerConfig{
		Source:      node,
		Recorder:    ledger.NewRecorder(log.With("sys", "recorder"), db.Blocks(), feed, m),
		StartHeight: start,
		Interval:    cfg.Node.PollInterval,
	})

	submitter := transition.NewSubmitter(log.With("sys", "submitter"), transition.SubmitterConfig{
		Store:   db.Packets(),
		Node:    node,
		Metrics: m,
	})
	streams := stream.NewOrchestrator(log.With("sys", "stream"), stream.Config{
		History:    db.Blocks(),
		Live:       feed,
		LiveBuffer: cfg.Stream.LiveBuffer,
		Metrics:    m,
	})
	srv := server.New(log.With("sys", "server"), submitter, streams)

	gs := grpc.NewServer()
	dapigrpc.NewGRPCServer(log.With("sys", "grpc"), srv).Register(gs)

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}

	var metricsSrv *http.Server
	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		metricsSrv = &http.Server{Addr: cfg.MetricsListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := poller.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		log.Info("Serving gRPC", "addr", lis.Addr().String())
		return gs.Serve(lis)
	})

	if metricsSrv != nil {
		g.Go(func() error {
			log.Info("Serving metrics", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")

		srv.Shutdown("server shutting down")

		stopped := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(shutdownTimeout):
			gs.Stop()
		}

		if metricsSrv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := metricsSrv.Shutdown(sctx); err != nil {
				log.Warn("Failed to stop metrics server", "err", err)
			}
		}
		return nil
	})

	return g.Wait()
}

func openStore(dir string) (*store.DB, error) {
	if dir == "" {
		return store.OpenMemory()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return store.Open(dir)
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler).With("service", "dapi", "version", Version)
}
