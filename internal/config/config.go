// Package config loads and validates the bridge's runtime configuration:
// a JSON file on disk (all keys optional) layered with environment
// variable overrides, following the teacher's Load()/Validate() split.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all bridge configuration.
type Config struct {
	Server  ServerConfig
	Peer    PeerConfig
	HTTP    HTTPClientConfig
	Store   StoreConfig
	Devices DevicesConfig
	Logs    LogsConfig
}

// ServerConfig holds intake/admin HTTP server settings.
type ServerConfig struct {
	Port         string
	UIToken      string
	SharedSecret string
}

// PeerConfig holds the upstream peer's address and liveness-probe settings.
type PeerConfig struct {
	BaseURL                  string
	WatchdogHost             string
	HealthPath               string
	PollInterval             time.Duration
	ProbeTimeout             time.Duration
	ConsecutiveFailThreshold int
}

// HTTPClientConfig holds the outbound HTTP client's timeout/retry/TLS knobs.
type HTTPClientConfig struct {
	SourceIP       string
	TLSVerify      bool
	ConnectTimeout time.Duration
	OverallTimeout time.Duration
	RetryBase      time.Duration
	RetryCap       time.Duration
}

// StoreConfig holds the embedded database file location.
type StoreConfig struct {
	Path string
}

// DeviceConfig is the per-device wiring: host/port to reach it, whether it
// runs in simulation mode, and the watchdog host used to gate writes.
type DeviceConfig struct {
	Host         string
	Port         int
	Simulation   bool
	WatchdogHost string
}

// DevicesConfig groups the three field-device configs.
type DevicesConfig struct {
	Printer DeviceConfig // TT* — ZBC framed
	Laser   DeviceConfig // LS* — Ultimate ASCII
	PLC     DeviceConfig // MA* — line protocol
}

// LogsConfig holds the log retention window, applied to every channel
// alike, and the per-channel ring buffer size.
type LogsConfig struct {
	Dir            string
	RetentionDays  int
	RingBufferSize int
}

// Load reads configuration from an optional JSON file at path (a missing
// file is not an error — defaults apply) with environment variable
// overrides layered on top.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			var patch patchConfig
			if err := json.Unmarshal(data, &patch); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
			patch.applyTo(cfg)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
		},
		Peer: PeerConfig{
			HealthPath:               "/health",
			PollInterval:             5 * time.Second,
			ProbeTimeout:             2 * time.Second,
			ConsecutiveFailThreshold: 3,
		},
		HTTP: HTTPClientConfig{
			TLSVerify:      true,
			ConnectTimeout: 1500 * time.Millisecond,
			OverallTimeout: 5 * time.Second,
			RetryBase:      1 * time.Second,
			RetryCap:       60 * time.Second,
		},
		Store: StoreConfig{
			Path: "./databridge.db",
		},
		Logs: LogsConfig{
			Dir:            "./logs",
			RetentionDays:  7,
			RingBufferSize: 500,
		},
	}
}

// patchConfig mirrors Config but with every field optional, so unknown keys
// in the on-disk file are ignored and absent keys never overwrite defaults.
type patchConfig struct {
	Server *struct {
		Port         *string `json:"port"`
		UIToken      *string `json:"ui_token"`
		SharedSecret *string `json:"shared_secret"`
	} `json:"server"`
	Peer *struct {
		BaseURL                  *string `json:"base_url"`
		WatchdogHost             *string `json:"watchdog_host"`
		HealthPath               *string `json:"health_path"`
		PollIntervalMS           *int    `json:"poll_interval_ms"`
		ProbeTimeoutMS           *int    `json:"probe_timeout_ms"`
		ConsecutiveFailThreshold *int    `json:"consecutive_fail_threshold"`
	} `json:"peer"`
	HTTP *struct {
		SourceIP         *string `json:"source_ip"`
		TLSVerify        *bool   `json:"tls_verify"`
		ConnectTimeoutMS *int    `json:"connect_timeout_ms"`
		OverallTimeoutMS *int    `json:"overall_timeout_ms"`
		RetryBaseMS      *int    `json:"retry_base_ms"`
		RetryCapMS       *int    `json:"retry_cap_ms"`
	} `json:"http"`
	Store *struct {
		Path *string `json:"path"`
	} `json:"store"`
	Devices *struct {
		Printer *devicePatch `json:"printer"`
		Laser   *devicePatch `json:"laser"`
		PLC     *devicePatch `json:"plc"`
	} `json:"devices"`
	Logs *struct {
		Dir            *string `json:"dir"`
		RetentionDays  *int    `json:"retention_days"`
		RingBufferSize *int    `json:"ring_buffer_size"`
	} `json:"logs"`
}

type devicePatch struct {
	Host         *string `json:"host"`
	Port         *int    `json:"port"`
	Simulation   *bool   `json:"simulation"`
	WatchdogHost *string `json:"watchdog_host"`
}

func (p devicePatch) applyTo(d *DeviceConfig) {
	if p.Host != nil {
		d.Host = *p.Host
	}
	if p.Port != nil {
		d.Port = *p.Port
	}
	if p.Simulation != nil {
		d.Simulation = *p.Simulation
	}
	if p.WatchdogHost != nil {
		d.WatchdogHost = *p.WatchdogHost
	}
}

func (p *patchConfig) applyTo(cfg *Config) {
	if p == nil {
		return
	}
	if p.Server != nil {
		if p.Server.Port != nil {
			cfg.Server.Port = *p.Server.Port
		}
		if p.Server.UIToken != nil {
			cfg.Server.UIToken = *p.Server.UIToken
		}
		if p.Server.SharedSecret != nil {
			cfg.Server.SharedSecret = *p.Server.SharedSecret
		}
	}
	if p.Peer != nil {
		if p.Peer.BaseURL != nil {
			cfg.Peer.BaseURL = *p.Peer.BaseURL
		}
		if p.Peer.WatchdogHost != nil {
			cfg.Peer.WatchdogHost = *p.Peer.WatchdogHost
		}
		if p.Peer.HealthPath != nil {
			cfg.Peer.HealthPath = *p.Peer.HealthPath
		}
		if p.Peer.PollIntervalMS != nil {
			cfg.Peer.PollInterval = time.Duration(*p.Peer.PollIntervalMS) * time.Millisecond
		}
		if p.Peer.ProbeTimeoutMS != nil {
			cfg.Peer.ProbeTimeout = time.Duration(*p.Peer.ProbeTimeoutMS) * time.Millisecond
		}
		if p.Peer.ConsecutiveFailThreshold != nil {
			cfg.Peer.ConsecutiveFailThreshold = *p.Peer.ConsecutiveFailThreshold
		}
	}
	if p.HTTP != nil {
		if p.HTTP.SourceIP != nil {
			cfg.HTTP.SourceIP = *p.HTTP.SourceIP
		}
		if p.HTTP.TLSVerify != nil {
			cfg.HTTP.TLSVerify = *p.HTTP.TLSVerify
		}
		if p.HTTP.ConnectTimeoutMS != nil {
			cfg.HTTP.ConnectTimeout = time.Duration(*p.HTTP.ConnectTimeoutMS) * time.Millisecond
		}
		if p.HTTP.OverallTimeoutMS != nil {
			cfg.HTTP.OverallTimeout = time.Duration(*p.HTTP.OverallTimeoutMS) * time.Millisecond
		}
		if p.HTTP.RetryBaseMS != nil {
			cfg.HTTP.RetryBase = time.Duration(*p.HTTP.RetryBaseMS) * time.Millisecond
		}
		if p.HTTP.RetryCapMS != nil {
			cfg.HTTP.RetryCap = time.Duration(*p.HTTP.RetryCapMS) * time.Millisecond
		}
	}
	if p.Store != nil && p.Store.Path != nil {
		cfg.Store.Path = *p.Store.Path
	}
	if p.Devices != nil {
		if p.Devices.Printer != nil {
			p.Devices.Printer.applyTo(&cfg.Devices.Printer)
		}
		if p.Devices.Laser != nil {
			p.Devices.Laser.applyTo(&cfg.Devices.Laser)
		}
		if p.Devices.PLC != nil {
			p.Devices.PLC.applyTo(&cfg.Devices.PLC)
		}
	}
	if p.Logs != nil {
		if p.Logs.Dir != nil {
			cfg.Logs.Dir = *p.Logs.Dir
		}
		if p.Logs.RetentionDays != nil {
			cfg.Logs.RetentionDays = *p.Logs.RetentionDays
		}
		if p.Logs.RingBufferSize != nil {
			cfg.Logs.RingBufferSize = *p.Logs.RingBufferSize
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BRIDGE_PEER_BASE_URL"); v != "" {
		cfg.Peer.BaseURL = v
	}
	if v := os.Getenv("BRIDGE_UI_TOKEN"); v != "" {
		cfg.Server.UIToken = v
	}
	if v := os.Getenv("BRIDGE_SHARED_SECRET"); v != "" {
		cfg.Server.SharedSecret = v
	}
	if v := os.Getenv("BRIDGE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("BRIDGE_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("BRIDGE_TLS_VERIFY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.HTTP.TLSVerify = b
		}
	}
}

// Validate checks that the configuration is internally consistent. It
// accumulates every problem instead of stopping at the first.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.Peer.ConsecutiveFailThreshold <= 0 {
		errs = append(errs, errors.New("peer.consecutive_fail_threshold must be positive"))
	}
	if c.HTTP.RetryBase <= 0 {
		errs = append(errs, errors.New("http.retry_base_ms must be positive"))
	}
	if c.HTTP.RetryCap < c.HTTP.RetryBase {
		errs = append(errs, errors.New("http.retry_cap_ms must be >= http.retry_base_ms"))
	}
	if c.HTTP.ConnectTimeout > 1500*time.Millisecond {
		errs = append(errs, errors.New("http.connect_timeout_ms must not exceed 1500ms"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
