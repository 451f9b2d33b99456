package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/linkpulse/linkpulse/errors"
)

// ConfigFileName is the name searched for in the project and user directories
const ConfigFileName = "linkpulse.toml"

// Load reads the linkpulse configuration from defaults, config files and
// environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	return LoadWithViper(NewViper())
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path. Environment
// variables are still applied on top so deployments can override one key.
func LoadFromFile(configPath string) (*Config, error) {
	v := newBaseViper()

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	cfg, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load config from %s", configPath)
	}
	return cfg, nil
}

// NewViper builds a Viper instance with defaults, env binding and every
// config file found in the search path merged in.
func NewViper() *viper.Viper {
	v := newBaseViper()
	for _, path := range SearchPaths() {
		mergeConfigFile(v, path)
	}
	return v
}

func newBaseViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix("LINKPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindEnvVars(v)

	SetDefaults(v)
	return v
}

// SearchPaths returns the config files consulted by Load, lowest precedence
// first. Files that do not exist are skipped at load time.
func SearchPaths() []string {
	paths := []string{filepath.Join("/etc/linkpulse", ConfigFileName)}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".linkpulse", ConfigFileName))
	}
	if project := findProjectConfig(); project != "" {
		paths = append(paths, project)
	}
	return paths
}

// findProjectConfig walks up from the working directory looking for
// linkpulse.toml and returns the first match, or "" if none exists.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func mergeConfigFile(v *viper.Viper, configPath string) {
	if _, err := os.Stat(configPath); err != nil {
		return
	}

	fileViper := viper.New()
	fileViper.SetConfigFile(configPath)
	fileViper.SetConfigType("toml")
	if err := fileViper.ReadInConfig(); err != nil {
		return
	}
	if err := v.MergeConfigMap(fileViper.AllSettings()); err != nil {
		return
	}
}
