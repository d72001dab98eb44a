// Command epcd runs a standalone EPC echo server.
//
// It prints the bound port on stdout (the launching process reads
// that line to know where to connect), logs to a file or stderr, and
// serves until SIGINT/SIGTERM, then drains gracefully.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"go-epc/config"
	"go-epc/middleware"
	"go-epc/server"
	"go-epc/sexp"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a TOML config file")
		addr       = flag.String("addr", "", "listen address (overrides config)")
		logFile    = flag.String("logfile", "", "log file path (overrides config)")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}

	logger, closeLog, err := setupLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeLog()

	srv := server.NewServer(server.WithLogger(logger))
	srv.Register("echo", func(ctx context.Context, args sexp.List) (sexp.Value, error) {
		return args, nil
	}, "Return the arguments unchanged.")

	if cfg.RateLimit > 0 {
		srv.Use(middleware.RateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	if cfg.CallTimeout > 0 {
		srv.Use(middleware.Timeout(cfg.CallTimeout))
	}
	srv.Use(middleware.Logging(logger))

	if err := srv.Listen("tcp", cfg.Addr); err != nil {
		logger.Fatal().Err(err).Msg("listen failed")
	}
	// Port first: the parent process is waiting to read it
	if err := srv.PrintPort(os.Stdout); err != nil {
		logger.Fatal().Err(err).Msg("failed to print port")
	}
	logger.Info().Str("addr", srv.Addr().String()).Msg("epcd listening")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Fatal().Err(err).Msg("serve failed")
		}
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("shutting down")
		if err := srv.Shutdown(cfg.ShutdownTimeout); err != nil {
			logger.Error().Err(err).Msg("shutdown incomplete")
			os.Exit(1)
		}
	}
	logger.Info().Msg("exit")
}

// setupLogger builds the daemon logger: a truncated log file when
// configured, stderr otherwise.
func setupLogger(cfg config.Config) (zerolog.Logger, func(), error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Logger{}, nil, fmt.Errorf("bad log level %q: %w", cfg.LogLevel, err)
	}

	out := os.Stderr
	closeLog := func() {}
	if cfg.LogFile != "" {
		f, err := os.Create(cfg.LogFile)
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeLog = func() { f.Close() }
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, closeLog, nil
}
