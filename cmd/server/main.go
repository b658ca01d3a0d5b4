package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/Tyrowin/signalrelay/internal/metrics"
	"github.com/Tyrowin/signalrelay/internal/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath string
		envFile    string
	)

	flagSet := pflag.NewFlagSet("signalrelay", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a YAML or JSONC config file")
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	addr := flagSet.String("addr", "", "listen address (overrides SERVER_PORT)")
	origins := flagSet.StringSlice("allowed-origins", nil, "allowed WebSocket origins, \"*\" for any")
	logLevel := flagSet.String("log-level", "", "debug, info, warn or error")
	logFormat := flagSet.String("log-format", "", "text or json")
	maxMessageSize := flagSet.Int64("max-message-size", 0, "maximum inbound message size in bytes")
	tlsCert := flagSet.String("tls-cert", "", "TLS certificate file")
	tlsKey := flagSet.String("tls-key", "", "TLS private key file")
	closeSuperseded := flagSet.Bool("close-superseded", true, "close the older connection when a client identity reconnects to the same room")

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", envFile, err)
	}

	cfg, err := server.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if flagSet.Changed("addr") {
		cfg.Port = *addr
	}
	if flagSet.Changed("allowed-origins") {
		cfg.AllowedOrigins = *origins
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = strings.ToLower(*logLevel)
	}
	if flagSet.Changed("log-format") {
		cfg.LogFormat = strings.ToLower(*logFormat)
	}
	if flagSet.Changed("max-message-size") {
		cfg.MaxMessageSize = *maxMessageSize
	}
	if flagSet.Changed("tls-cert") {
		cfg.TLSCertFile = *tlsCert
	}
	if flagSet.Changed("tls-key") {
		cfg.TLSKeyFile = *tlsKey
	}
	if flagSet.Changed("close-superseded") {
		cfg.CloseSuperseded = *closeSuperseded
	}
	*cfg = cfg.Sanitized()

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("starting signalrelay", "addr", cfg.Port, "ice_servers", len(cfg.ICEServers))

	hub := server.NewHub(*cfg, logger, metrics.New())
	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(hub))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartServer(httpServer, *cfg, logger)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case sig := <-quit:
		logger.Info("received signal", "signal", sig.String())
	}

	shutdownErr := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger)
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("hub shutdown: %w", err)
	}
	return shutdownErr
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
