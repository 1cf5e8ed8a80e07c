package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/always-cache/anti-reload/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	flags cliFlags

	// this is set by goreleaser
	version string
)

func init() {
	registerFlags(flag.CommandLine, &flags)

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if flags.trace {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to a rotated logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if flags.logFile != "" {
		logOutputs = append(logOutputs, &lumberjack.Logger{
			Filename:   flags.logFile,
			MaxSize:    64, // megabytes
			MaxBackups: 8,
			MaxAge:     7, // days
			Compress:   true,
		})
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	config, err := buildConfig(flag.CommandLine, flags)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	originURL, err := url.Parse(config.Origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse url")
	}

	s, err := openStore(config)
	if err != nil {
		log.Fatal().Err(err).Str("store", config.Store).Msg("Could not open store")
	}
	defer s.Close()

	h := newHarness(config, store.WithQuota(s, config.Quota), originURL, http.DefaultTransport, log.Logger)
	if err := h.load("/discovery", false); err != nil {
		log.Fatal().Err(err).Msg("Could not start page")
	}
	defer h.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	servers := []*http.Server{{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: h.router(),
	}}
	if config.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{
			Addr:    fmt.Sprintf(":%d", config.MetricsPort),
			Handler: mux,
		})
	}

	log.Info().Msgf("Proxying port %v to %s (store %s)", config.Port, originURL.String(), config.Store)
	if err := serve(ctx, servers); err != nil {
		log.Error().Err(err).Msg("Server failed")
	}
}

// serve runs the servers until ctx is done or one of them fails.
func serve(ctx context.Context, servers []*http.Server) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, srv := range servers {
			srv.Shutdown(shutdownCtx)
		}
		return nil
	})
	return g.Wait()
}

func openStore(config Config) (store.Store, error) {
	switch config.Store {
	case "memory":
		return store.NewMemStore(), nil
	case "sqlite":
		dbFilename := config.DB
		if dbFilename == "memory" {
			dbFilename = ""
		}
		return store.NewSQLiteStore(dbFilename, config.Namespace)
	case "bbolt":
		return store.NewBoltStore(config.DB, config.Namespace)
	case "redis":
		return store.NewRedisStore(config.Redis, config.Namespace)
	}
	return nil, fmt.Errorf("unknown store %q", config.Store)
}
