package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the checkpoint store
type Config struct {
	// Version is a short tag unique for a given set of snapshots
	// (i.e. one model architecture). Sanitized before use.
	Version string `yaml:"version" json:"version"`

	// FileTemplate is the checkpoint filename template inside the folder
	FileTemplate string `yaml:"file_template" json:"file_template"`

	Storage StorageConfig `yaml:"storage" json:"storage"`
	FTP     FTPConfig     `yaml:"ftp" json:"ftp"`
	Policy  PolicyConfig  `yaml:"policy" json:"policy"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// StorageConfig holds local checkpoint storage configuration
type StorageConfig struct {
	// LocalFolder is where the status file and all snapshots are written
	LocalFolder string `yaml:"local_folder" json:"local_folder"`
	// RotateNumber is how many recent checkpoints to keep; <= 0 keeps all
	RotateNumber int `yaml:"rotate_number" json:"rotate_number"`
}

// FTPConfig holds remote mirror configuration
type FTPConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Login    string `yaml:"login" json:"login"`
	Password string `yaml:"password" json:"password"`
	// RemoteFolder is a single flat directory on the server, no subfolders
	RemoteFolder string `yaml:"remote_folder" json:"remote_folder"`
	// DieOnTransportErrors raises failed remote operations instead of logging them
	DieOnTransportErrors bool `yaml:"die_on_transport_errors" json:"die_on_transport_errors"`
	// WorkerPoolSize is the number of background transfer workers
	WorkerPoolSize int           `yaml:"worker_pool_size" json:"worker_pool_size"`
	RetryAttempts  int           `yaml:"retry_attempts" json:"retry_attempts"`
	RetryDelay     time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// Timeout bounds a single blocking socket operation
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// PolicyConfig is save-policy metadata stored for the training-callback
// adapter; the monitor itself never interprets it.
type PolicyConfig struct {
	Monitor         string `yaml:"monitor" json:"monitor"`
	SaveBestOnly    bool   `yaml:"save_best_only" json:"save_best_only"`
	SaveWeightsOnly bool   `yaml:"save_weights_only" json:"save_weights_only"`
	Mode            string `yaml:"mode" json:"mode"`
	Period          int    `yaml:"period" json:"period"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			LocalFolder:  "./checkpoints",
			RotateNumber: 5,
		},
		FTP: FTPConfig{
			Port:           21,
			RemoteFolder:   "checkpoints",
			WorkerPoolSize: 3,
			RetryAttempts:  8,
			RetryDelay:     3 * time.Second,
			Timeout:        70 * time.Second,
		},
		Policy: PolicyConfig{
			Monitor: "val_loss",
			Mode:    "auto",
			Period:  1,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("SIZIF_VERSION"); v != "" {
		c.Version = v
	}
	if v := os.Getenv("SIZIF_FILE_TEMPLATE"); v != "" {
		c.FileTemplate = v
	}
	if v := os.Getenv("SIZIF_LOCAL_FOLDER"); v != "" {
		c.Storage.LocalFolder = v
	}
	if v := os.Getenv("SIZIF_ROTATE_NUMBER"); v != "" {
		var val int
		fmt.Sscanf(v, "%d", &val)
		c.Storage.RotateNumber = val
	}
	if v := os.Getenv("SIZIF_FTP_HOST"); v != "" {
		c.FTP.Host = v
	}
	if v := os.Getenv("SIZIF_FTP_PORT"); v != "" {
		var val int
		fmt.Sscanf(v, "%d", &val)
		if val > 0 {
			c.FTP.Port = val
		}
	}
	if v := os.Getenv("SIZIF_FTP_LOGIN"); v != "" {
		c.FTP.Login = v
	}
	if v := os.Getenv("SIZIF_FTP_PASSWORD"); v != "" {
		c.FTP.Password = v
	}
	if v := os.Getenv("SIZIF_FTP_REMOTE_FOLDER"); v != "" {
		c.FTP.RemoteFolder = v
	}
	if v := os.Getenv("SIZIF_DIE_ON_TRANSPORT_ERRORS"); v != "" {
		c.FTP.DieOnTransportErrors = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("SIZIF_WORKER_POOL_SIZE"); v != "" {
		var val int
		fmt.Sscanf(v, "%d", &val)
		if val > 0 {
			c.FTP.WorkerPoolSize = val
		}
	}
	if v := os.Getenv("SIZIF_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // no config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".sizif.yaml",
		".sizif.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "sizif", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".sizif.yaml"),
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Validate checks the local (non-network) configuration
func (c *Config) Validate() error {
	var errs []error

	if c.Version == "" {
		errs = append(errs, errors.New("version tag is required"))
	}
	if c.FileTemplate == "" {
		errs = append(errs, errors.New("file template is required"))
	}
	if c.Storage.LocalFolder == "" {
		errs = append(errs, errors.New("local folder is required"))
	}
	if c.Policy.Period < 1 {
		errs = append(errs, errors.New("period must be at least 1"))
	}
	switch strings.ToLower(c.Policy.Mode) {
	case "auto", "min", "max":
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q, must be one of auto, min, max", c.Policy.Mode))
	}
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ValidateRemote checks the configuration needed to reach the FTP mirror
func (c *Config) ValidateRemote() error {
	var errs []error

	if c.FTP.Host == "" {
		errs = append(errs, errors.New("FTP host is required"))
	}
	if c.FTP.Port <= 0 || c.FTP.Port > 65535 {
		errs = append(errs, errors.New("FTP port must be between 1 and 65535"))
	}
	if c.FTP.WorkerPoolSize <= 0 {
		errs = append(errs, errors.New("worker pool size must be positive"))
	}
	if c.FTP.RetryAttempts <= 0 {
		errs = append(errs, errors.New("retry attempts must be positive"))
	}
	if c.FTP.RetryDelay < 0 {
		errs = append(errs, errors.New("retry delay cannot be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// MergeFlags merges command line flag values into the configuration
func (c *Config) MergeFlags(flags map[string]interface{}) {
	if version, ok := flags["version"].(string); ok && version != "" {
		c.Version = version
	}
	if template, ok := flags["file-template"].(string); ok && template != "" {
		c.FileTemplate = template
	}
	if folder, ok := flags["folder"].(string); ok && folder != "" {
		c.Storage.LocalFolder = folder
	}
	if rotate, ok := flags["rotate-number"].(int); ok {
		c.Storage.RotateNumber = rotate
	}
	if host, ok := flags["host"].(string); ok && host != "" {
		c.FTP.Host = host
	}
	if port, ok := flags["port"].(int); ok && port > 0 {
		c.FTP.Port = port
	}
	if login, ok := flags["login"].(string); ok && login != "" {
		c.FTP.Login = login
	}
	if password, ok := flags["password"].(string); ok && password != "" {
		c.FTP.Password = password
	}
	if remote, ok := flags["remote-folder"].(string); ok && remote != "" {
		c.FTP.RemoteFolder = remote
	}
	if die, ok := flags["die-on-transport-errors"].(bool); ok {
		c.FTP.DieOnTransportErrors = die
	}
	if workers, ok := flags["workers"].(int); ok && workers > 0 {
		c.FTP.WorkerPoolSize = workers
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: flags > environment variables > .env file > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".sizif.env"))

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg.MergeFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}
