package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"devharness/internal/client"
	"devharness/internal/shared/config"
	"devharness/internal/shared/logger"
)

func main() {
	configDir := flag.String("configdir", "configs", "Path to config directory")
	host := flag.String("host", "", "Server address (overrides config)")
	port := flag.Int("port", 0, "Server port (overrides config)")
	deviceID := flag.String("id", "", "Device ID (overrides config)")
	heartbeat := flag.Bool("heartbeat", false, "Enable periodic heartbeats")
	interval := flag.Int("interval", 0, "Heartbeat interval in seconds (overrides config)")
	flag.Parse()

	iniPath := filepath.Join(*configDir, "harness.ini")

	cfg, err := config.LoadIni(iniPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to load config file '%s': %v\n", iniPath, err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if *host != "" {
		cfg.ClientConf.Host = *host
	}
	if *port > 0 {
		cfg.ClientConf.Port = *port
	}
	if *deviceID != "" {
		cfg.ClientConf.DeviceID = *deviceID
	}
	if *interval > 0 {
		cfg.ClientConf.HeartbeatInterval = *interval
	}

	c := client.New(cfg.ClientConf.Host, cfg.ClientConf.Port, cfg.ClientConf.DeviceID)
	if err := c.Connect(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to harness server")
	}

	if err := c.SendText(fmt.Sprintf("device %s connected", cfg.ClientConf.DeviceID)); err != nil {
		logger.Warn().Err(err).Msg("Failed to send hello message")
	}

	if *heartbeat || cfg.ClientConf.Heartbeat {
		hbInterval := time.Duration(cfg.ClientConf.HeartbeatInterval) * time.Second
		logger.Info().Int("interval_s", cfg.ClientConf.HeartbeatInterval).Msg("Heartbeats enabled.")
		go c.RunHeartbeat(hbInterval)
	}

	client.RunConsole(c, os.Stdin, os.Stdout)
	c.Disconnect()
}
