// CRC: crc-ConfigLoader.md, Spec: main.md
package config

import "time"

// DefaultServerPort is the well-known index server port
const DefaultServerPort = 7734

// DefaultConfig returns the default configuration
// CRC: crc-ConfigLoader.md
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: DefaultServerPort,
			Timeouts: ServerTimeoutConfig{
				Read:       Duration{1 * time.Second},
				AcceptPoll: Duration{1 * time.Second},
			},
		},
		Monitor: MonitorConfig{
			Enabled:    false,
			Port:       8734,
			PortRange:  100,
			SendBuffer: 100,
		},
		Peer: PeerConfig{
			ServerHost:   "localhost",
			ServerPort:   DefaultServerPort,
			Host:         "localhost",
			Port:         6000,
			RFCStore:     "rfc_store",
			SampleDir:    "sample_rfc",
			Offline:      false,
			OfflineIndex: "offline_index.json",
			Timeouts: PeerTimeoutConfig{
				Dial:   Duration{5 * time.Second},
				Read:   Duration{5 * time.Second},
				Fetch:  Duration{5 * time.Second},
				Upload: Duration{5 * time.Second},
			},
		},
		Behavior: BehaviorConfig{
			Verbosity: 0,
		},
	}
}
