// CRC: crc-ConfigLoader.md, Spec: main.md
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const ConfigFileName = "p2p-ci.toml"

// Load loads configuration from a TOML file
// Returns default config if path is empty or the file doesn't exist
// CRC: crc-ConfigLoader.md
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigFileName
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// ServerFlags carries index server command-line overrides; zero values mean unset
type ServerFlags struct {
	Host        string
	Port        int
	Monitor     bool
	MonitorPort int
	Verbosity   int
}

// PeerFlags carries peer command-line overrides; zero values mean unset
type PeerFlags struct {
	ServerHost   string
	ServerPort   int
	Host         string
	Port         int
	RFCStore     string
	SampleDir    string
	Offline      bool
	OfflineIndex string
	Verbosity    int
}

// MergeServer merges index server flags into configuration
// Flags take precedence over config file values
// CRC: crc-ConfigLoader.md
func (c *Config) MergeServer(f ServerFlags) {
	if f.Host != "" {
		c.Server.Host = f.Host
	}
	if f.Port != 0 {
		c.Server.Port = f.Port
	}
	if f.Monitor {
		c.Monitor.Enabled = true
	}
	if f.MonitorPort != 0 {
		c.Monitor.Port = f.MonitorPort
	}
	if f.Verbosity > 0 {
		c.Behavior.Verbosity = f.Verbosity
	}
}

// MergePeer merges peer flags into configuration
func (c *Config) MergePeer(f PeerFlags) {
	if f.ServerHost != "" {
		c.Peer.ServerHost = f.ServerHost
	}
	if f.ServerPort != 0 {
		c.Peer.ServerPort = f.ServerPort
	}
	if f.Host != "" {
		c.Peer.Host = f.Host
	}
	if f.Port != 0 {
		c.Peer.Port = f.Port
	}
	if f.RFCStore != "" {
		c.Peer.RFCStore = f.RFCStore
	}
	if f.SampleDir != "" {
		c.Peer.SampleDir = f.SampleDir
	}
	if f.Offline {
		c.Peer.Offline = true
	}
	if f.OfflineIndex != "" {
		c.Peer.OfflineIndex = f.OfflineIndex
	}
	if f.Verbosity > 0 {
		c.Behavior.Verbosity = f.Verbosity
	}
}

// Validate checks if configuration values are valid
// CRC: crc-ConfigLoader.md
func (c *Config) Validate() error {
	ports := []struct {
		name string
		port int
	}{
		{"server port", c.Server.Port},
		{"monitor port", c.Monitor.Port},
		{"peer server port", c.Peer.ServerPort},
		{"peer port", c.Peer.Port},
	}
	for _, p := range ports {
		if p.port < 0 || p.port > 65535 {
			return fmt.Errorf("invalid %s: %d (must be 0-65535)", p.name, p.port)
		}
	}

	if c.Monitor.PortRange < 1 {
		return fmt.Errorf("invalid monitor port range: %d (must be >= 1)", c.Monitor.PortRange)
	}
	if c.Monitor.SendBuffer < 1 {
		return fmt.Errorf("invalid monitor send buffer: %d (must be >= 1)", c.Monitor.SendBuffer)
	}

	timeouts := map[string]Duration{
		"server read": c.Server.Timeouts.Read,
		"accept poll": c.Server.Timeouts.AcceptPoll,
		"peer dial":   c.Peer.Timeouts.Dial,
		"peer read":   c.Peer.Timeouts.Read,
		"peer fetch":  c.Peer.Timeouts.Fetch,
		"peer upload": c.Peer.Timeouts.Upload,
	}
	for name, d := range timeouts {
		if d.Duration <= 0 {
			return fmt.Errorf("invalid %s timeout: %v (must be positive)", name, d)
		}
	}

	if c.Peer.RFCStore == "" {
		return fmt.Errorf("rfc store directory cannot be empty")
	}
	if c.Peer.Offline && c.Peer.OfflineIndex == "" {
		return fmt.Errorf("offline index path cannot be empty in offline mode")
	}

	return nil
}
