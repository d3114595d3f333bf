package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"daily-movers/internal/cli"
	"daily-movers/internal/config"
	"daily-movers/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Log.Level
	logger := logging.NewLoggerWithConfig(logCfg)
	zerolog.SetGlobalLevel(logging.ParseLevel(cfg.Log.Level))

	rootCmd := cli.NewRootCmd(cfg, logger)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
