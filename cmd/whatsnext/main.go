package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatsnext/internal/capture"
	"whatsnext/internal/catalog"
	"whatsnext/internal/config"
	appLog "whatsnext/internal/log"
	"whatsnext/internal/metrics"
	"whatsnext/internal/normalize"
	"whatsnext/internal/prismic"
	"whatsnext/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath   string
	listen       string
	debug        bool
	snapshot     string
	snapshotPath string
	snapshotW    int
	snapshotH    int

	// snapshotEvery keeps serving and refreshes -snapshot on a cron schedule.
	snapshotEvery string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv(os.Getenv)

	// CLI --listen overrides both the file and the environment.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	level := appLog.ParseLevel(conf.LogLevel)
	if flags.debug {
		level = appLog.LevelDebug
	}
	appLog.SetLevel(level)

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("whatsnext starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"repository", conf.Prismic.Repository,
		"private", conf.Prismic.AccessToken != "",
		"start_fields", conf.Fields.Start,
		"horizon_days", conf.HorizonDays,
		"max_occurrences", conf.MaxOccurrences,
	)

	handler, err := buildHandler(conf)
	if err != nil {
		appLog.Error("failed to initialize server", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.snapshot != "" && flags.snapshotEvery == "" {
		if err := runSnapshot(ctx, handler, flags); err != nil {
			appLog.Error("snapshot failed", err, "page", flags.snapshotPath, "out", flags.snapshot)
			os.Exit(1)
		}
		return
	}

	if flags.snapshotEvery != "" {
		sched, err := capture.NewScheduler(ctx, flags.snapshotEvery, conf.Location(), capture.SnapshotOptions{
			URL:        "http://" + loopbackAddr(conf.Listen) + flags.snapshotPath,
			OutputPath: flags.snapshot,
			Width:      flags.snapshotW,
			Height:     flags.snapshotH,
		})
		if err != nil {
			appLog.Error("invalid snapshot schedule", err, "schedule", flags.snapshotEvery)
			os.Exit(1)
		}
		sched.Start()
		defer sched.Stop()
	}

	if err := serve(ctx, conf, handler); err != nil {
		appLog.Error("http server failed", err, "listen", conf.Listen)
		os.Exit(1)
	}
	appLog.Info("whatsnext exiting")
}

func buildHandler(conf *config.Config) (http.Handler, error) {
	m := metrics.New()

	client, err := prismic.New(prismic.Options{
		Repository:  conf.Prismic.Repository,
		AccessToken: conf.Prismic.AccessToken,
		Endpoint:    conf.Prismic.Endpoint,
		PageSize:    conf.Prismic.PageSize,
		Timeout:     conf.Prismic.Timeout,
		Metrics:     m,
	})
	if err != nil {
		return nil, err
	}

	loc := conf.Location()
	cat := catalog.New(catalog.Options{
		Source: client,
		Normalizer: normalize.New(normalize.Fields{
			Start: conf.Fields.Start,
			End:   conf.Fields.End,
		}),
		StartField:     conf.Fields.Start[0],
		Location:       loc,
		HorizonDays:    conf.HorizonDays,
		MaxOccurrences: conf.MaxOccurrences,
		Metrics:        m,
	})

	srv, err := web.NewServer(web.Options{
		Catalog:  cat,
		Site:     conf.Site,
		Location: loc,
		Metrics:  m,
	})
	if err != nil {
		return nil, err
	}
	return srv.Handler(), nil
}

// serve runs the HTTP server until ctx is cancelled, then drains in-flight
// requests.
func serve(ctx context.Context, conf *config.Config, handler http.Handler) error {
	hs := &http.Server{
		Addr:              conf.Listen,
		Handler:           handler,
		ReadHeaderTimeout: conf.Server.ReadTimeout,
		ReadTimeout:       conf.Server.ReadTimeout,
		WriteTimeout:      conf.Server.WriteTimeout,
		IdleTimeout:       conf.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("http server listening", "listen", conf.Listen)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return hs.Shutdown(shutdownCtx)
}

// runSnapshot serves the handler on an ephemeral loopback port just long
// enough to screenshot one page.
func runSnapshot(ctx context.Context, handler http.Handler, flags flagConfig) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	hs := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("snapshot server failed", err)
		}
	}()
	defer hs.Close()

	return capture.Snapshot(ctx, capture.SnapshotOptions{
		URL:        "http://" + ln.Addr().String() + flags.snapshotPath,
		OutputPath: flags.snapshot,
		Width:      flags.snapshotW,
		Height:     flags.snapshotH,
	})
}

// loopbackAddr turns a wildcard listen address into one a local browser can
// dial.
func loopbackAddr(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/whatsnext/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")
	flag.StringVar(&cfg.snapshot, "snapshot", "", "Write a PNG of -snapshot-path to this file and exit")
	flag.StringVar(&cfg.snapshotPath, "snapshot-path", "/calendar", "Page captured by -snapshot")
	flag.IntVar(&cfg.snapshotW, "snapshot-width", capture.DefaultWidth, "Snapshot viewport width")
	flag.IntVar(&cfg.snapshotH, "snapshot-height", capture.DefaultHeight, "Snapshot viewport height")
	flag.StringVar(&cfg.snapshotEvery, "snapshot-every", "", "Cron schedule (e.g. \"*/15 * * * *\") to keep refreshing -snapshot while serving")

	flag.Parse()

	return cfg
}
