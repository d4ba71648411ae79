// Package config loads and validates runtime configuration for the bridge.
//
// Configuration layers in this order: built-in defaults, an optional JSON
// file on disk, then environment variable overrides.
//
//	cfg, err := config.Load("/etc/databridge/config.json")
//
// # Configuration Groups
//
//   - ServerConfig: intake/admin HTTP surface (port, UI token, shared secret)
//   - PeerConfig: upstream peer address and liveness-probe tuning
//   - HTTPClientConfig: outbound HTTP client timeouts, retry backoff, TLS
//   - StoreConfig: embedded database file path
//   - DevicesConfig: per-device (printer/laser/PLC) host, port, simulation flag
//   - LogsConfig: log retention (one window for every channel) and ring size
//
// # Environment Variables
//
//	BRIDGE_PEER_BASE_URL   - upstream peer base URL
//	BRIDGE_UI_TOKEN        - admin token expected in the X-Token header
//	BRIDGE_SHARED_SECRET   - expected X-Shared-Secret value on intake
//	BRIDGE_STORE_PATH      - embedded database file path
//	BRIDGE_PORT            - HTTP listen port
//	BRIDGE_TLS_VERIFY      - "false" disables upstream TLS verification
package config
