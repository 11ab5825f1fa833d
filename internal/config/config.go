package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server" json:"server"`

	// Fake generation timing and download naming
	Generation GenerationConfig `yaml:"generation" json:"generation"`

	// Upload hints and optional enforcement
	Uploads UploadConfig `yaml:"uploads" json:"uploads"`

	// Session registry configuration
	Sessions SessionConfig `yaml:"sessions" json:"sessions"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Security configuration
	Security SecurityConfig `yaml:"security" json:"security"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host            string        `yaml:"host" json:"host" env:"GENESEEZ_HOST"`
	Port            int           `yaml:"port" json:"port" env:"GENESEEZ_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout" env:"GENESEEZ_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout" env:"GENESEEZ_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"GENESEEZ_SHUTDOWN_TIMEOUT"`
	EnableCORS      bool          `yaml:"enable_cors" json:"enable_cors" env:"GENESEEZ_ENABLE_CORS"`
	MaxRequestBytes int64         `yaml:"max_request_bytes" json:"max_request_bytes" env:"GENESEEZ_MAX_REQUEST_BYTES"`
	ReleaseMode     bool          `yaml:"release_mode" json:"release_mode" env:"GENESEEZ_RELEASE_MODE"`
}

// GenerationConfig controls the progress illusion and the result filename
type GenerationConfig struct {
	TickInterval      time.Duration `yaml:"tick_interval" json:"tick_interval" env:"GENESEEZ_TICK_INTERVAL"`
	CompletionDelay   time.Duration `yaml:"completion_delay" json:"completion_delay" env:"GENESEEZ_COMPLETION_DELAY"`
	DownloadPrefix    string        `yaml:"download_prefix" json:"download_prefix" env:"GENESEEZ_DOWNLOAD_PREFIX"`
	DownloadExtension string        `yaml:"download_extension" json:"download_extension" env:"GENESEEZ_DOWNLOAD_EXTENSION"`
}

// UploadConfig holds the size hints shown next to each upload slot.
// The hints are advisory unless EnforceLimits is set.
type UploadConfig struct {
	ImageMaxBytes int64    `yaml:"image_max_bytes" json:"image_max_bytes" env:"GENESEEZ_IMAGE_MAX_BYTES"`
	VideoMaxBytes int64    `yaml:"video_max_bytes" json:"video_max_bytes" env:"GENESEEZ_VIDEO_MAX_BYTES"`
	EnforceLimits bool     `yaml:"enforce_limits" json:"enforce_limits" env:"GENESEEZ_ENFORCE_LIMITS"`
	ImageHint     string   `yaml:"image_hint" json:"image_hint" env:"GENESEEZ_IMAGE_HINT"`
	VideoHint     string   `yaml:"video_hint" json:"video_hint" env:"GENESEEZ_VIDEO_HINT"`
	ImageTypes    []string `yaml:"image_types" json:"image_types" env:"GENESEEZ_IMAGE_TYPES"`
	VideoTypes    []string `yaml:"video_types" json:"video_types" env:"GENESEEZ_VIDEO_TYPES"`
}

// SessionConfig controls how long idle sessions are kept in memory
type SessionConfig struct {
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout" env:"GENESEEZ_SESSION_IDLE_TIMEOUT"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval" env:"GENESEEZ_SESSION_CLEANUP_INTERVAL"`
	MaxSessions     int           `yaml:"max_sessions" json:"max_sessions" env:"GENESEEZ_MAX_SESSIONS"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level" json:"level" env:"GENESEEZ_LOG_LEVEL"`
	Format       string `yaml:"format" json:"format" env:"GENESEEZ_LOG_FORMAT"`
	EnableColors bool   `yaml:"enable_colors" json:"enable_colors" env:"GENESEEZ_LOG_COLORS"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	RateLimitEnabled bool     `yaml:"rate_limit_enabled" json:"rate_limit_enabled" env:"GENESEEZ_RATE_LIMIT"`
	RateLimitRPS     float64  `yaml:"rate_limit_rps" json:"rate_limit_rps" env:"GENESEEZ_RATE_LIMIT_RPS"`
	RateLimitBurst   int      `yaml:"rate_limit_burst" json:"rate_limit_burst" env:"GENESEEZ_RATE_LIMIT_BURST"`
	AllowedOrigins   []string `yaml:"allowed_origins" json:"allowed_origins" env:"GENESEEZ_ALLOWED_ORIGINS"`
}

// ConfigManager manages application configuration with hot-reload support
type ConfigManager struct {
	config     *Config
	configPath string
	watchers   []ConfigWatcher
	mu         sync.RWMutex
}

// ConfigWatcher is called when configuration changes
type ConfigWatcher func(oldConfig, newConfig *Config)

var (
	globalConfigManager *ConfigManager
	configOnce          sync.Once
)

// GetConfigManager returns the global configuration manager instance
func GetConfigManager() *ConfigManager {
	configOnce.Do(func() {
		globalConfigManager = NewConfigManager()
	})
	return globalConfigManager
}

// NewConfigManager creates a new configuration manager
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		config:   DefaultConfig(),
		watchers: make([]ConfigWatcher, 0),
	}
}

// DefaultConfig returns the default application configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    0, // streaming endpoints stay open
			ShutdownTimeout: 5 * time.Second,
			EnableCORS:      true,
			MaxRequestBytes: 256 << 20,
		},
		Generation: GenerationConfig{
			TickInterval:      200 * time.Millisecond,
			CompletionDelay:   5 * time.Second,
			DownloadPrefix:    "geneseez-result",
			DownloadExtension: ".mp4",
		},
		Uploads: UploadConfig{
			ImageMaxBytes: 10 << 20,
			VideoMaxBytes: 50 << 20,
			EnforceLimits: false,
			ImageHint:     "PNG, JPG até 10MB",
			VideoHint:     "MP4, MOV até 50MB",
			ImageTypes:    []string{"image/"},
			VideoTypes:    []string{"video/"},
		},
		Sessions: SessionConfig{
			IdleTimeout:     30 * time.Minute,
			CleanupInterval: 5 * time.Minute,
			MaxSessions:     100,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "text",
			EnableColors: true,
		},
		Security: SecurityConfig{
			RateLimitEnabled: true,
			RateLimitRPS:     20,
			RateLimitBurst:   40,
			AllowedOrigins:   []string{"*"},
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func (cm *ConfigManager) LoadConfig(configPath string) error {
	cm.mu.Lock()

	oldConfig := *cm.config
	cm.configPath = configPath

	// Start with default configuration
	newConfig := DefaultConfig()

	// Load from file if it exists
	if configPath != "" && fileExists(configPath) {
		if err := loadFromFile(configPath, newConfig); err != nil {
			cm.mu.Unlock()
			return fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	if err := loadStructFromEnv(reflect.ValueOf(newConfig).Elem()); err != nil {
		cm.mu.Unlock()
		return fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := Validate(newConfig); err != nil {
		cm.mu.Unlock()
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	applyDerivedConfig(newConfig)

	cm.config = newConfig
	watchers := append([]ConfigWatcher(nil), cm.watchers...)
	cm.mu.Unlock()

	// Notify watchers of config change
	for _, watcher := range watchers {
		watcher(&oldConfig, newConfig)
	}

	return nil
}

// Reload re-reads the last loaded config path
func (cm *ConfigManager) Reload() error {
	return cm.LoadConfig(cm.Path())
}

// Path returns the file the configuration was last loaded from
func (cm *ConfigManager) Path() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.configPath
}

// GetConfig returns the current configuration (thread-safe)
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	// Return a copy to prevent external modifications
	configCopy := *cm.config
	return &configCopy
}

// AddWatcher adds a configuration change watcher
func (cm *ConfigManager) AddWatcher(watcher ConfigWatcher) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.watchers = append(cm.watchers, watcher)
}

func loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	case ".json":
		return json.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
}

// loadStructFromEnv overlays every field carrying an env tag whose variable is set.
// Defaults come from DefaultConfig, so file values survive an unset variable.
func loadStructFromEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		// Handle nested structs recursively
		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue, ok := os.LookupEnv(envTag)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set field %s from %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(duration))
		} else {
			intVal, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(intVal)
		}
	case reflect.Float32, reflect.Float64:
		floatVal, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatVal)
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolVal)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %v", field.Type())
		}
		values := strings.Split(value, ",")
		for i, v := range values {
			values[i] = strings.TrimSpace(v)
		}
		field.Set(reflect.ValueOf(values))
	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}

	return nil
}

// Validate checks a configuration for values the server cannot run with
func Validate(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Server.MaxRequestBytes <= 0 {
		return fmt.Errorf("invalid max request bytes: %d", config.Server.MaxRequestBytes)
	}

	if config.Generation.TickInterval <= 0 {
		return fmt.Errorf("invalid tick interval: %s", config.Generation.TickInterval)
	}

	if config.Generation.CompletionDelay <= 0 {
		return fmt.Errorf("invalid completion delay: %s", config.Generation.CompletionDelay)
	}

	if config.Generation.DownloadPrefix == "" || strings.ContainsAny(config.Generation.DownloadPrefix, `/\`) {
		return fmt.Errorf("invalid download prefix: %q", config.Generation.DownloadPrefix)
	}

	if !strings.HasPrefix(config.Generation.DownloadExtension, ".") {
		return fmt.Errorf("download extension must start with a dot: %q", config.Generation.DownloadExtension)
	}

	if config.Uploads.ImageMaxBytes <= 0 || config.Uploads.VideoMaxBytes <= 0 {
		return fmt.Errorf("upload size hints must be positive")
	}

	if config.Sessions.MaxSessions < 1 {
		return fmt.Errorf("invalid max sessions: %d", config.Sessions.MaxSessions)
	}

	if config.Sessions.IdleTimeout <= 0 {
		return fmt.Errorf("invalid session idle timeout: %s", config.Sessions.IdleTimeout)
	}

	switch strings.ToLower(config.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format: %s", config.Logging.Format)
	}

	if config.Security.RateLimitEnabled && (config.Security.RateLimitRPS <= 0 || config.Security.RateLimitBurst < 1) {
		return fmt.Errorf("rate limit needs a positive rps and burst")
	}

	return nil
}

func applyDerivedConfig(config *Config) {
	if len(config.Uploads.ImageTypes) == 0 {
		config.Uploads.ImageTypes = []string{"image/"}
	}
	if len(config.Uploads.VideoTypes) == 0 {
		config.Uploads.VideoTypes = []string{"video/"}
	}

	// Cleanup must run at least as often as sessions can expire
	if config.Sessions.CleanupInterval <= 0 || config.Sessions.CleanupInterval > config.Sessions.IdleTimeout {
		config.Sessions.CleanupInterval = config.Sessions.IdleTimeout
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Global convenience functions

// Get returns the current global configuration
func Get() *Config {
	return GetConfigManager().GetConfig()
}

// Load loads configuration from the specified path
func Load(configPath string) error {
	return GetConfigManager().LoadConfig(configPath)
}

// AddWatcher adds a global configuration watcher
func AddWatcher(watcher ConfigWatcher) {
	GetConfigManager().AddWatcher(watcher)
}
