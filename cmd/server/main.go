package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"devharness/internal/server"
	"devharness/internal/shared/config"
	"devharness/internal/shared/logger"
)

func main() {
	configDir := flag.String("configdir", "configs", "Path to config directory")
	flag.Parse()

	iniPath := filepath.Join(*configDir, "harness.ini")

	cfg, err := config.LoadIni(iniPath)
	if err != nil {
		// Use standard fmt before logger is initialized.
		fmt.Fprintf(os.Stderr, "Fatal: Failed to load config file '%s': %v\n", iniPath, err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	srv := server.New(cfg)
	if _, err := srv.Listen(); err != nil {
		logger.Fatal().Err(err).Msg("Harness failed to bind")
	}
	srv.Serve()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("Interrupt received, shutting down.")
		srv.Stop()
		os.Exit(0)
	}()

	// Blocks until the operator exits or stdin closes; Stop is idempotent, so
	// calling it again after an operator `exit` is harmless.
	srv.RunConsole(os.Stdin, os.Stdout)
	srv.Stop()
}
