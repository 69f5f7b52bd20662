// Package config provides configuration management for the mapping registry.
//
// It utilizes Viper for loading configuration from environment variables
// and a local .env file.
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings, divided into subsections:
//   - Server: HTTP server settings (port, API key)
//   - Storage: S3/MinIO credentials and the package repository bucket
//   - Log: Logging level and format
//   - Remote: resource server base URL, token and timeouts
//   - Sync: engine settings (watched directory, extensions, poll intervals)
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.Port)
package config
