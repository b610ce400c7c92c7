// config.go: This file contains the configuration for the SatWatch application.
// It defines the settings struct and functions to load and save the settings.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/satwatch/satwatch-go/internal/errors"
)

//go:embed config.yaml
var configFiles embed.FS

// LogConfig contains settings for a rotated log file.
type LogConfig struct {
	Enabled    bool   // true to enable this log
	Path       string // path to log file
	MaxSize    int    // maximum log file size in megabytes before rotation
	MaxBackups int    // number of rotated log files to keep
	MaxAge     int    // days to retain rotated log files
}

// MainSettings contains main application settings.
type MainSettings struct {
	Name string    // name of this node, used in log and status output
	Log  LogConfig // main log file settings
}

// ProviderSettings contains credentials and endpoints for the imagery provider.
type ProviderSettings struct {
	Name           string  // provider name used in cached image metadata
	BaseURL        string  // base URL for catalog and processing endpoints
	AuthURL        string  // OAuth2 token endpoint URL
	ClientID       string  // OAuth2 client id
	ClientSecret   string  // OAuth2 client secret
	Collection     string  // imagery collection to search, e.g. "sentinel-2-l2a"
	RequestTimeout int     // per-request timeout in seconds
	MaxRetries     int     // maximum retry attempts for transient failures
	RateLimit      float64 // provider requests per second across all workers
}

// MonitorSettings contains the refresh cadences and quality filters.
type MonitorSettings struct {
	PrioritySweep      int     // high-priority sweep interval in minutes
	FullSweep          int     // full sweep interval in minutes, must exceed prioritysweep
	MinRefreshInterval int     // minimum minutes between refreshes of one zone
	LookbackDays       int     // catalog search window in days
	MaxCloudCover      float64 // maximum acceptable cloud cover percentage
	Workers            int     // bounded worker pool size for zone processing
	CycleTimeout       int     // soft cycle deadline in minutes
	MaxZoneFailures    int     // consecutive failures before the backoff counter resets
	NegativeCacheTTL   int     // minutes to remember "no imagery" results per zone
}

// ImagerySettings controls the rendered raster requested from the provider.
type ImagerySettings struct {
	Width      int    // output raster width in pixels
	Height     int    // output raster height in pixels
	Format     string // output format: png, jpeg or tiff
	ExportPath string // directory for cached image artifacts
	Script     string // band-combination script identifier sent to the processing endpoint
}

// SQLiteSettings contains SQLite database settings.
type SQLiteSettings struct {
	Enabled bool   // true to enable SQLite output
	Path    string // path to SQLite database file
}

// MySQLSettings contains MySQL database settings.
type MySQLSettings struct {
	Enabled  bool   // true to enable MySQL output
	Username string // MySQL username
	Password string // MySQL password
	Host     string // MySQL host
	Port     string // MySQL port
	Database string // MySQL database name
}

// OutputSettings selects the metadata store backend.
type OutputSettings struct {
	SQLite SQLiteSettings // SQLite output settings
	MySQL  MySQLSettings  // MySQL output settings
}

// APISettings contains settings for the read-only status API.
type APISettings struct {
	Enabled bool   // true to enable the HTTP status API
	Listen  string // listen address and port, e.g. "0.0.0.0:8080"
}

// Settings is the top-level configuration for SatWatch.
type Settings struct {
	Debug bool // true to enable debug output

	Main     MainSettings
	Provider ProviderSettings
	Monitor  MonitorSettings
	Imagery  ImagerySettings
	Output   OutputSettings
	API      APISettings
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a new
// Settings instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("satwatch")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig creates a default config file and writes it to the
// first default config path.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig := getDefaultConfig()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading embedded config file: %v", err)
	}
	return string(data)
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}
