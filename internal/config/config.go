package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"imagepress/internal/compression"
)

// Config represents the main configuration structure
type Config struct {
	OutputDirectory     string            `mapstructure:"output_directory"`
	PresetsDirectory    string            `mapstructure:"presets_directory"`
	SupportedExtensions []string          `mapstructure:"supported_extensions"`
	Compression         CompressionConfig `mapstructure:"compression"`
	Batch               BatchConfig       `mapstructure:"batch"`
	Metadata            MetadataConfig    `mapstructure:"metadata"`
	Logging             LoggingConfig     `mapstructure:"logging"`
}

// CompressionConfig contains the default compression settings applied
// to tasks that do not override them.
type CompressionConfig struct {
	Mode                string  `mapstructure:"mode"`
	Format              string  `mapstructure:"format"`
	Quality             int     `mapstructure:"quality"`
	MinQuality          int     `mapstructure:"min_quality"`
	TargetSizeMB        float64 `mapstructure:"target_size_mb"`
	Chroma              int     `mapstructure:"chroma_subsampling"`
	Progressive         bool    `mapstructure:"progressive"`
	Optimize            bool    `mapstructure:"optimize"`
	CalculateSimilarity bool    `mapstructure:"calculate_similarity"`
}

// BatchConfig contains batch processing settings
type BatchConfig struct {
	Overwrite    bool `mapstructure:"overwrite"`
	SkipExisting bool `mapstructure:"skip_existing"`
	ShowProgress bool `mapstructure:"show_progress"`
}

// MetadataConfig contains metadata handling settings
type MetadataConfig struct {
	Preserve bool `mapstructure:"preserve"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		OutputDirectory:  "output",
		PresetsDirectory: "presets",
		SupportedExtensions: []string{
			".jpg", ".jpeg", ".png", ".webp", ".avif",
			".gif", ".bmp", ".tiff", ".tif",
		},
		Compression: CompressionConfig{
			Mode:       "advanced",
			Format:     "JPEG",
			Quality:    85,
			MinQuality: 60,
			Chroma:     2,
			Optimize:   true,
		},
		Batch: BatchConfig{
			Overwrite:    false,
			SkipExisting: false,
			ShowProgress: true,
		},
		Metadata: MetadataConfig{
			Preserve: false,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "imagepress.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.imagepress")
		viper.AddConfigPath("/etc/imagepress")
	}

	// Enable environment variable support
	viper.SetEnvPrefix("IMAGEPRESS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Try to read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	// Unmarshal config
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate and normalize config
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.OutputDirectory == "" {
		return fmt.Errorf("output_directory is required")
	}

	c.Compression.Mode = strings.ToLower(c.Compression.Mode)
	if c.Compression.Mode != "quick" && c.Compression.Mode != "advanced" {
		return fmt.Errorf("invalid compression mode: %s (valid: quick, advanced)", c.Compression.Mode)
	}

	c.Compression.Format = strings.ToUpper(c.Compression.Format)
	validFormats := map[string]bool{
		"JPEG": true,
		"WEBP": true,
		"AVIF": true,
		"PNG":  true,
		"AUTO": true,
	}
	if !validFormats[c.Compression.Format] {
		return fmt.Errorf("invalid format: %s (valid: JPEG, WEBP, AVIF, PNG, AUTO)", c.Compression.Format)
	}
	if c.Compression.Format == "AUTO" && c.Compression.Mode != "quick" {
		return fmt.Errorf("format AUTO requires quick mode")
	}

	if c.Compression.Quality < 1 || c.Compression.Quality > 100 {
		return fmt.Errorf("quality must be 1-100, got %d", c.Compression.Quality)
	}
	if c.Compression.MinQuality < 1 || c.Compression.MinQuality > 100 {
		return fmt.Errorf("min_quality must be 1-100, got %d", c.Compression.MinQuality)
	}
	if c.Compression.Chroma < 0 || c.Compression.Chroma > 2 {
		return fmt.Errorf("chroma_subsampling must be 0, 1 or 2, got %d", c.Compression.Chroma)
	}
	if c.Compression.TargetSizeMB < 0 {
		return fmt.Errorf("target_size_mb must be >= 0, got %g", c.Compression.TargetSizeMB)
	}
	if c.Compression.Mode == "quick" && c.Compression.TargetSizeMB == 0 {
		return fmt.Errorf("quick mode requires target_size_mb")
	}

	c.SupportedExtensions = normalizeExtensions(c.SupportedExtensions)

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// StrategyConfig converts the compression defaults into a strategy
// configuration.
func (c *Config) StrategyConfig() compression.StrategyConfig {
	return compression.StrategyConfig{
		TargetMB:      c.Compression.TargetSizeMB,
		Format:        c.Compression.Format,
		Quality:       c.Compression.Quality,
		MinQuality:    c.Compression.MinQuality,
		Chroma:        c.Compression.Chroma,
		Progressive:   c.Compression.Progressive,
		Optimize:      c.Compression.Optimize,
		CalculateSSIM: c.Compression.CalculateSimilarity,
	}
}

// IsImageExtension checks if the extension is for a supported image file
func (c *Config) IsImageExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, supportedExt := range c.SupportedExtensions {
		if ext == supportedExt {
			return true
		}
	}
	return false
}

// SavePreset writes a named strategy configuration to the presets
// directory as JSON.
func (c *Config) SavePreset(name string, cfg compression.StrategyConfig) error {
	if err := os.MkdirAll(c.PresetsDirectory, 0755); err != nil {
		return fmt.Errorf("failed to create presets directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal preset: %w", err)
	}

	path := filepath.Join(c.PresetsDirectory, name+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write preset: %w", err)
	}
	return nil
}

// LoadPreset reads a named strategy configuration from the presets
// directory.
func (c *Config) LoadPreset(name string) (compression.StrategyConfig, error) {
	path := filepath.Join(c.PresetsDirectory, name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return compression.StrategyConfig{}, fmt.Errorf("failed to read preset: %w", err)
	}

	var cfg compression.StrategyConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return compression.StrategyConfig{}, fmt.Errorf("failed to parse preset: %w", err)
	}
	return cfg, nil
}

// ListPresets returns the names of saved presets.
func (c *Config) ListPresets() ([]string, error) {
	entries, err := os.ReadDir(c.PresetsDirectory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read presets directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
	}
	return names, nil
}

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, len(extensions))
	for i, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[i] = ext
	}
	return normalized
}
