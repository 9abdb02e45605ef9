package types

// ListenConf contains the TCP listener configuration.
type ListenConf struct {
	Host           string `ini:"host"`
	Port           int    `ini:"port"`
	MaxConnections int    `ini:"max_connections"`
	BufferSize     int    `ini:"buffer_size"`
}

// LogConf contains logging specific configuration
type LogConf struct {
	Level string `ini:"level"`
}

// WebConf contains the monitoring endpoint configuration.
// A port of 0 disables the web service entirely.
type WebConf struct {
	Port int `ini:"port"`
}

// ClientConf contains the device simulator configuration.
type ClientConf struct {
	Host              string `ini:"host"`
	Port              int    `ini:"port"`
	DeviceID          string `ini:"device_id"`
	Heartbeat         bool   `ini:"heartbeat"`
	HeartbeatInterval int    `ini:"heartbeat_interval"`
}

// Config is the harness' unified configuration structure.
type Config struct {
	ListenConf `ini:"listen"`
	LogConf    `ini:"log"`
	WebConf    `ini:"web"`
	ClientConf `ini:"client"`
}
