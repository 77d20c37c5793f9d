// Package config reads store settings from a YAML or TOML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Paths             []string `yaml:"paths" toml:"paths" validate:"required_unless=InMemory true,dive,required"`
	Backend           string   `yaml:"backend" toml:"backend" validate:"oneof=sqlite badger"`
	InMemory          bool     `yaml:"inMemory" toml:"in_memory"`
	MinimumFreeGB     int      `yaml:"minimumFreeGB" toml:"minimum_free_gb" validate:"gte=0"`
	CompressThreshold int      `yaml:"compressThreshold" toml:"compress_threshold" validate:"gte=0"`
	LogLevel          string   `yaml:"logLevel" toml:"log_level" validate:"oneof=trace debug info warn warning error"`
}

const (
	DefaultBackend           = "sqlite"
	DefaultCompressThreshold = 1024
	DefaultLogLevel          = "info"
)

var validate = validator.New()

// Default returns the settings used for every key a file leaves out.
func Default() Config {
	return Config{
		Backend:           DefaultBackend,
		CompressThreshold: DefaultCompressThreshold,
		LogLevel:          DefaultLogLevel,
	}
}

// Load reads path as YAML (.yaml, .yml) or TOML (.toml), fills in defaults and validates
// the result. Relative store paths are taken relative to the file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	config := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.UnmarshalStrict(data, &config)
	case ".toml":
		var md toml.MetaData
		md, err = toml.Decode(string(data), &config)
		if err == nil {
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				err = fmt.Errorf("unknown key %s", undecoded[0])
			}
		}
	default:
		return Config{}, fmt.Errorf("config %s: unsupported format %q", path, ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if config.Backend == "" {
		config.Backend = DefaultBackend
	}
	if config.LogLevel == "" {
		config.LogLevel = DefaultLogLevel
	}
	base := filepath.Dir(path)
	for i, p := range config.Paths {
		if p != "" && !filepath.IsAbs(p) {
			config.Paths[i] = filepath.Join(base, p)
		}
	}

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return config, nil
}

func (c Config) Validate() error {
	return validate.Struct(c)
}
