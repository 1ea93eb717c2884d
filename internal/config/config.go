// Package config loads testlink settings from the project root.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/TestFlowLabs/testlink-sub002/internal/errors"
)

// FileName is the base name of the config file (any viper-supported extension).
const FileName = "testlink"

// EnvFile is an optional dotenv file with TESTLINK_* overrides.
const EnvFile = ".testlink.env"

// Config holds all testlink settings.
type Config struct {
	// Production lists directories (relative to the root) holding production code.
	Production []string `mapstructure:"production" yaml:"production"`
	// Tests lists directories holding test code.
	Tests []string `mapstructure:"tests" yaml:"tests"`
	// Exclude lists doublestar patterns of files to skip.
	Exclude []string `mapstructure:"exclude" yaml:"exclude,omitempty"`
	// Namespaces adds PSR-4 prefixes on top of those read from composer.json.
	Namespaces []NamespaceMapping `mapstructure:"namespaces" yaml:"namespaces,omitempty"`

	Attributes AttributesConfig `mapstructure:"attributes" yaml:"attributes"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`

	MaxFileSize int `mapstructure:"max_file_size" yaml:"max_file_size"`
}

// NamespaceMapping maps a namespace prefix such as `App\` to a directory.
type NamespaceMapping struct {
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
	Dir    string `mapstructure:"dir" yaml:"dir"`
}

// AttributesConfig names the PHP attribute classes.
type AttributesConfig struct {
	Namespace      string `mapstructure:"namespace" yaml:"namespace"`
	TestedBy       string `mapstructure:"tested_by" yaml:"tested_by"`
	LinksAndCovers string `mapstructure:"links_and_covers" yaml:"links_and_covers"`
	Links          string `mapstructure:"links" yaml:"links"`
}

// FQN returns the fully-qualified class name of the given short attribute name.
func (a AttributesConfig) FQN(short string) string {
	if a.Namespace == "" {
		return short
	}
	return strings.TrimSuffix(a.Namespace, `\`) + `\` + short
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns the settings used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Production: []string{"app", "src", "lib"},
		Tests:      []string{"tests"},
		Attributes: AttributesConfig{
			Namespace:      `TestFlowLabs\TestingAttributes`,
			TestedBy:       "TestedBy",
			LinksAndCovers: "LinksAndCovers",
			Links:          "Links",
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "human",
		},
		MaxFileSize: 1_000_000,
	}
}

// Load reads configuration for the project at root. An explicit path wins over
// discovery of testlink.{yaml,yml,json,toml} in root. Missing files yield defaults.
func Load(root, explicit string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(root, EnvFile)); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(errors.ConfigInvalid, "reading "+EnvFile, err)
	}

	def := DefaultConfig()
	v := viper.New()
	v.SetDefault("production", def.Production)
	v.SetDefault("tests", def.Tests)
	v.SetDefault("attributes.namespace", def.Attributes.Namespace)
	v.SetDefault("attributes.tested_by", def.Attributes.TestedBy)
	v.SetDefault("attributes.links_and_covers", def.Attributes.LinksAndCovers)
	v.SetDefault("attributes.links", def.Attributes.Links)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("max_file_size", def.MaxFileSize)

	v.SetEnvPrefix("TESTLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return nil, errors.Wrap(errors.ConfigInvalid, "reading config", err)
		}
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(root)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return nil, errors.Wrap(errors.ConfigInvalid, "reading config", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.ConfigInvalid, "decoding config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Tests) == 0 {
		return errors.New(errors.ConfigInvalid, "tests: at least one directory is required")
	}
	if len(c.Production) == 0 {
		return errors.New(errors.ConfigInvalid, "production: at least one directory is required")
	}
	for _, dir := range append(append([]string{}, c.Production...), c.Tests...) {
		if filepath.IsAbs(dir) || strings.HasPrefix(filepath.Clean(dir), "..") {
			return errors.Newf(errors.ConfigInvalid, "directory %q must be relative to the project root", dir)
		}
	}
	if c.Attributes.TestedBy == "" || c.Attributes.LinksAndCovers == "" || c.Attributes.Links == "" {
		return errors.New(errors.ConfigInvalid, "attributes: names must not be empty")
	}
	for _, ns := range c.Namespaces {
		if ns.Prefix == "" || ns.Dir == "" {
			return errors.New(errors.ConfigInvalid, "namespaces: prefix and dir are required")
		}
	}
	if c.MaxFileSize <= 0 {
		return errors.New(errors.ConfigInvalid, fmt.Sprintf("max_file_size: %d is not positive", c.MaxFileSize))
	}
	return nil
}
