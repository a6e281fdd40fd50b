// Package config loads the dashboard configuration.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//  1. Environment variables (highest priority)
//  2. A YAML file: $BMI_CONFIG_FILE, config.yaml or configs/config.yaml
//  3. Default values from struct tags (lowest priority)
//
// The bmidash binary loads a local .env file before any of this, so values
// there behave like environment variables.
//
// # Environment Variables
//
// All environment variables follow the pattern BMI_<SECTION>_<FIELD>:
//
//	BMI_SERVER_PORT=8050
//	BMI_DATA_DIR=./datasets
//	BMI_STORAGE_DB_PATH=./data/bmidash.db
//	BMI_MESSAGING_ENABLED=true
//	BMI_LOGGING_LEVEL=debug
//
// # Path Management
//
// Config.Paths resolves the dataset files, sqlite file and log directory:
//
//	paths := cfg.Paths()
//	if err := paths.EnsureDirectories(); err != nil { ... }
//
// # Testing
//
// Default returns a configuration that needs no environment or files.
package config
