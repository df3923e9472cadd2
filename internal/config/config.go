// CRC: crc-ConfigLoader.md, Spec: main.md
package config

import "time"

// Config holds configuration for both the index server and peers
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Peer     PeerConfig     `toml:"peer"`
	Behavior BehaviorConfig `toml:"behavior"`
}

// ServerConfig holds index server settings
type ServerConfig struct {
	Host     string              `toml:"host"`
	Port     int                 `toml:"port"`
	Timeouts ServerTimeoutConfig `toml:"timeouts"`
}

// ServerTimeoutConfig holds index server timeouts.
// Read is how often an idle session checks for shutdown; it never ends a session.
type ServerTimeoutConfig struct {
	Read       Duration `toml:"read"`
	AcceptPoll Duration `toml:"acceptPoll"`
}

// MonitorConfig holds settings for the index server's HTTP monitor
type MonitorConfig struct {
	Enabled    bool `toml:"enabled"`
	Port       int  `toml:"port"`
	PortRange  int  `toml:"portRange"`
	SendBuffer int  `toml:"sendBuffer"`
}

// PeerConfig holds peer node settings
type PeerConfig struct {
	ServerHost   string            `toml:"serverHost"`
	ServerPort   int               `toml:"serverPort"`
	Host         string            `toml:"host"`
	Port         int               `toml:"port"`
	RFCStore     string            `toml:"rfcStore"`
	SampleDir    string            `toml:"sampleDir"`
	Offline      bool              `toml:"offline"`
	OfflineIndex string            `toml:"offlineIndex"`
	Timeouts     PeerTimeoutConfig `toml:"timeouts"`
}

// PeerTimeoutConfig holds socket timeouts used by peers
type PeerTimeoutConfig struct {
	Dial   Duration `toml:"dial"`
	Read   Duration `toml:"read"`
	Fetch  Duration `toml:"fetch"`
	Upload Duration `toml:"upload"`
}

// BehaviorConfig holds application behavior settings
type BehaviorConfig struct {
	Verbosity int `toml:"verbosity"`
}

// Duration wraps time.Duration for TOML parsing
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
