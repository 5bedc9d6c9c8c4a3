package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/jgarman/flopview/internal/formats/fat32"
	"github.com/jgarman/flopview/internal/logging"
)

// MaxRecentFiles bounds the recent file list.
const MaxRecentFiles = 10

// Config represents the application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	Logging logging.Config `json:"logging" yaml:"logging"`

	// Extraction defaults
	Extract ExtractConfig `json:"extract" yaml:"extract"`

	// Extra removable media sizes
	Media []MediaConfig `json:"media" yaml:"media"`

	// Upload configuration
	Upload UploadConfig `json:"upload" yaml:"upload"`

	// mDNS/Avahi configuration
	MDNS MDNSConfig `json:"mdns" yaml:"mdns"`

	// Most recently opened images, newest first
	RecentFiles []string `json:"recent_files" yaml:"recent_files"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`

	// Timeout settings in seconds
	ReadTimeout  int `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout int `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  int `json:"idle_timeout" yaml:"idle_timeout"`

	// Sessions idle longer than this many minutes are closed
	SessionTTL int `json:"session_ttl" yaml:"session_ttl"`

	// CORS settings
	CORS CORSConfig `json:"cors" yaml:"cors"`
}

// CORSConfig contains CORS settings
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers" yaml:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials" yaml:"allow_credentials"`
}

// ExtractConfig contains extraction settings
type ExtractConfig struct {
	// Directory HTTP extraction requests are confined to
	Root string `json:"root" yaml:"root"`

	// Create a directory named after the extracted item inside the destination
	IncludeRootName bool `json:"include_root_name" yaml:"include_root_name"`
}

// MediaConfig names an extra FAT32 superfloppy size in bytes
type MediaConfig struct {
	Name string `json:"name" yaml:"name"`
	Size int64  `json:"size" yaml:"size"`
}

// UploadConfig contains file upload settings
type UploadConfig struct {
	// Maximum upload size in MB
	MaxSizeMB int64 `json:"max_size_mb" yaml:"max_size_mb"`
}

// MDNSConfig contains mDNS/Avahi service discovery settings
type MDNSConfig struct {
	// Enable mDNS service advertisement
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Service name (e.g., "Flopview")
	ServiceName string `json:"service_name" yaml:"service_name"`

	// Use DBus API (more reliable than command-line)
	UseDBus bool `json:"use_dbus" yaml:"use_dbus"`

	// Additional TXT records (key=value pairs)
	TXTRecords []string `json:"txt_records" yaml:"txt_records"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15,
			WriteTimeout: 60,
			IdleTimeout:  60,
			SessionTTL:   30,
			CORS: CORSConfig{
				AllowedOrigins:   []string{"*"},
				AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"*"},
				AllowCredentials: true,
			},
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "console",
		},
		Extract: ExtractConfig{
			Root:            "/var/lib/flopview/extract",
			IncludeRootName: true,
		},
		Upload: UploadConfig{
			MaxSizeMB: 300,
		},
		MDNS: MDNSConfig{
			Enabled:     true,
			ServiceName: "Flopview",
			UseDBus:     true,
			TXTRecords: []string{
				"path=/",
				"version=1.0",
			},
		},
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "flopview", "config.json")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load loads configuration from a JSON (comments allowed) or YAML file,
// chosen by extension. If the file doesn't exist, it returns the default
// configuration
func Load(path string) (*Config, error) {
	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	// Read the file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default() // Start with defaults
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(jsonc.ToJSON(data), config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if len(config.RecentFiles) > MaxRecentFiles {
		config.RecentFiles = config.RecentFiles[:MaxRecentFiles]
	}
	return config, nil
}

// Save writes the configuration in the format matching path's extension
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// FAT32Media converts the configured media sizes.
func (c *Config) FAT32Media() []fat32.Media {
	out := make([]fat32.Media, 0, len(c.Media))
	for _, m := range c.Media {
		out = append(out, fat32.Media{Name: m.Name, Size: m.Size})
	}
	return out
}
