// Command rfqmaker runs the RFQ market maker. It loads configuration,
// validates it, sets up signal handling and starts the application in the
// configured mode. With -encrypt-key it instead writes an encrypted keystore
// file and exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/rfqmaker/internal/app"
	"github.com/alanyoungcy/rfqmaker/internal/config"
	"github.com/alanyoungcy/rfqmaker/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	encryptKey := flag.String("encrypt-key", "", "write an encrypted keystore to this path and exit")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if *encryptKey != "" {
		if err := writeKeystore(*encryptKey); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt key: %v\n", err)
			os.Exit(1)
		}
		logger.Info("encrypted key written", slog.String("path", *encryptKey))
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("rfqmaker starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		application.Close()
		os.Exit(1)
	}

	logger.Info("rfqmaker stopped")
}

// writeKeystore reads the key and password from the environment so neither
// lands in shell history.
func writeKeystore(path string) error {
	key := os.Getenv(config.EnvPrefix + "WALLET_PRIVATE_KEY")
	password := os.Getenv(config.EnvPrefix + "WALLET_KEY_PASSWORD")
	if key == "" || password == "" {
		return fmt.Errorf("%sWALLET_PRIVATE_KEY and %sWALLET_KEY_PASSWORD must be set", config.EnvPrefix, config.EnvPrefix)
	}
	return crypto.WriteKeyFile(path, key, password)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
