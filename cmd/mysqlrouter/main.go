package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/syslog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/shmel1k/mysqlrouter/internal/config"
	"github.com/shmel1k/mysqlrouter/internal/coordinator"
	"github.com/shmel1k/mysqlrouter/internal/routerhttp"
	"github.com/shmel1k/mysqlrouter/internal/storage"
	"github.com/shmel1k/mysqlrouter/internal/storage/sqlite"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var (
	configPath = flag.String("config", "", "Config file path")
	auditDB    = flag.String("audit-db", "", "Path to a sqlite audit database; disabled when empty")
)

func main() {
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read config")
	}

	logger := initLogger(cfg)
	logger.Info().Msgf("starting mysqlrouter %s, commit %s, built at %s", version, commit, buildDate)

	store := openStorage(logger)

	router := coordinator.New(logger, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := range cfg.Listeners {
		l := &cfg.Listeners[i]
		if err := router.RegisterListener(ctx, l); err != nil {
			logger.Err(err).Str("listener", l.Name).Msg("could not register listener")
			continue
		}
		logger.Info().Str("listener", l.Name).Msg("listener registered")
	}

	server := initHTTPServer(cfg.HTTPAddr, router, logger)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("debug HTTP server listening")

		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("debug HTTP server failed")
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	sig := <-interrupt

	logger.Info().Msgf("received signal %s, shutting down", sig)
	cancel()
	router.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Err(err).Msg("debug HTTP server did not shut down gracefully")
	}
}

func openStorage(logger zerolog.Logger) storage.Storage {
	if *auditDB == "" {
		return storage.MockedStorage{}
	}

	store, err := sqlite.New(sqlite.Config{
		FileName:       *auditDB,
		ConnectTimeout: 3 * time.Second,
		QueryTimeout:   3 * time.Second,
	})
	if err != nil {
		logger.Warn().Err(err).Str("path", *auditDB).Msg("could not open audit database, audit logging disabled")
		return storage.MockedStorage{}
	}
	return store
}

func initLogger(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	loggingCfg := cfg.Logging

	logLevel, err := zerolog.ParseLevel(loggingCfg.Level)
	if err != nil {
		log.Warn().Msgf("unknown log level %q, defaulting to info", loggingCfg.Level)
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	writers := make([]io.Writer, 0, 1)
	writers = append(writers, os.Stdout)

	if loggingCfg.SysLogEnabled {
		w, err := syslog.New(syslog.LOG_INFO, "mysqlrouter")
		if err != nil {
			log.Warn().Err(err).Msg("unable to connect to the system log daemon")
		} else {
			writers = append(writers, zerolog.SyslogLevelWriter(w))
		}
	}

	if loggingCfg.FileLoggingEnabled {
		w, err := newRollingLogFile(&loggingCfg)
		if err != nil {
			log.Warn().Err(err).Msg("unable to init file logger")
		} else {
			writers = append(writers, w)
		}
	}

	var baseLogger zerolog.Logger
	if len(writers) == 1 {
		baseLogger = zerolog.New(writers[0])
	} else {
		baseLogger = zerolog.New(zerolog.MultiLevelWriter(writers...))
	}

	return baseLogger.Level(logLevel).With().Timestamp().Logger()
}

func newRollingLogFile(cfg *config.Logging) (io.Writer, error) {
	dir := path.Dir(cfg.Filename)
	if unix.Access(dir, unix.W_OK) != nil {
		return nil, fmt.Errorf("no permissions to write logs to dir: %s", dir)
	}

	return &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxBackups: cfg.MaxBackups,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
	}, nil
}

func initHTTPServer(addr string, svc routerhttp.Service, logger zerolog.Logger) *http.Server {
	r := mux.NewRouter()
	routerhttp.RegisterDebugHandlers(r, svc, version, buildDate)
	routerhttp.RegisterAPIHandlers(r, routerhttp.NewHandler(logger, svc))

	return &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}
