package config

import (
	"os"
	"strconv"

	"gopkg.in/ini.v1"

	"devharness/internal/shared/types"
)

// Default returns the harness configuration used when no ini file is present.
func Default() *types.Config {
	return &types.Config{
		ListenConf: types.ListenConf{
			Host:           "0.0.0.0",
			Port:           8080,
			MaxConnections: 64,
			BufferSize:     1024,
		},
		LogConf: types.LogConf{Level: "info"},
		WebConf: types.WebConf{Port: 0},
		ClientConf: types.ClientConf{
			Host:              "127.0.0.1",
			Port:              8080,
			DeviceID:          "DEV-0001",
			HeartbeatInterval: 5,
		},
	}
}

// LoadIni loads the harness behavior configuration file. A missing file is not
// an error: the defaults above apply, so the binaries run without a configs dir.
func LoadIni(fileName string) (*types.Config, error) {
	cfg := Default()

	iniFile, err := ini.Load(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			sanitize(cfg)
			return cfg, nil
		}
		return nil, err
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	sanitize(cfg)
	return cfg, nil
}

// sanitize clamps non-positive limits back to their defaults. A zero read
// buffer would make every read return 0 bytes and spin, and a zero accept
// cap would block the listener outright.
func sanitize(cfg *types.Config) {
	def := Default()
	if cfg.ListenConf.MaxConnections <= 0 {
		cfg.ListenConf.MaxConnections = def.ListenConf.MaxConnections
	}
	if cfg.ListenConf.BufferSize <= 0 {
		cfg.ListenConf.BufferSize = def.ListenConf.BufferSize
	}
	if cfg.ClientConf.HeartbeatInterval <= 0 {
		cfg.ClientConf.HeartbeatInterval = def.ClientConf.HeartbeatInterval
	}
}

func applyEnvOverrides(cfg *types.Config) {
	overrideFromEnvInt(&cfg.ListenConf.Port, "HARNESS_PORT")
	overrideFromEnvString(&cfg.ListenConf.Host, "HARNESS_HOST")
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}

func overrideFromEnvString(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}
