// Package config provides configuration management for tap.
//
// Configuration is read from a YAML file, completed with defaults,
// overridden from the environment and validated before use.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("tap.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("tap.yaml")
//
// LoadConfigWithEnvOverrides first loads a .env file from the working
// directory when one exists. Variables already set in the process environment
// win over values from .env.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention TAP_SECTION_FIELD:
//
//   - TAP_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - TAP_CAPTURE_HIDDEN_KEYS overrides capture.hidden_keys (comma separated)
//   - TAP_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Capture Settings
//
// The capture section is converted into an immutable *capture.Config by
// Config.CaptureOptions. When the configured environment is listed in
// capture.ignored_environments the resulting Config is disabled and no
// traffic is captured.
//
// # Hot Reload
//
// Reloader watches the configuration file with fsnotify and, after a
// debounce interval, swaps a freshly built capture Config into a
// capture.AtomicSource. Requests already in flight keep the Config they
// started with. Only the capture section takes effect without a restart.
//
// # Singleton Pattern
//
//	if err := config.Initialize("tap.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg := config.GetConfig()
//
// For testing, prefer passing explicit *Config values around.
package config
