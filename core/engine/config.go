package engine

import (
	"fmt"
	"strings"
	"time"
)

// AliasFileName is the one file in the watched directory holding
// file-sourced aliases.
const AliasFileName = "aliases.json"

// structuredExtension is reserved for JSON mapping files and the alias file.
const structuredExtension = ".json"

// Config holds configuration for the sync engine.
type Config struct {
	// Dir is the watched local mapping directory. Empty disables the file source.
	Dir string `mapstructure:"dir" default:"./mappings"`
	// MappingExtension is the file extension recognized as a text mapping.
	// ".json" is reserved for structured files and rejected.
	MappingExtension string `mapstructure:"mapping_extension" default:".fume"`
	// FilePollSeconds is the file poller interval. Non-positive disables it.
	FilePollSeconds int `mapstructure:"file_poll_seconds" default:"5"`
	// ServerPollSeconds is the server poller interval. Non-positive disables it.
	ServerPollSeconds int `mapstructure:"server_poll_seconds" default:"60"`
	// ResyncSeconds is the forced full-resync interval. Non-positive disables it.
	ResyncSeconds int `mapstructure:"resync_seconds" default:"3600"`
	// AliasResourceID pins the server-side alias resource identity.
	// Empty means the identity is discovered by search.
	AliasResourceID string `mapstructure:"alias_resource_id" default:""`
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	ext := c.MappingExtension
	if ext == "" || !strings.HasPrefix(ext, ".") {
		return fmt.Errorf("mapping extension %q must start with a dot", ext)
	}
	if strings.EqualFold(ext, structuredExtension) {
		return fmt.Errorf("mapping extension %q is reserved for structured files", ext)
	}
	return nil
}

func (c Config) filePollInterval() time.Duration {
	return time.Duration(c.FilePollSeconds) * time.Second
}

func (c Config) serverPollInterval() time.Duration {
	return time.Duration(c.ServerPollSeconds) * time.Second
}

func (c Config) resyncInterval() time.Duration {
	return time.Duration(c.ResyncSeconds) * time.Second
}
