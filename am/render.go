package am

import (
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	pelletier "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/linkpulse/linkpulse/errors"
)

// Supported output formats for Render
const (
	FormatTOML = "toml"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Render serializes a settings map (as returned by viper's AllSettings) in
// the requested format.
func Render(settings map[string]interface{}, format string) ([]byte, error) {
	switch format {
	case FormatTOML:
		data, err := pelletier.Marshal(settings)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to TOML")
		}
		return data, nil
	case FormatJSON:
		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to JSON")
		}
		return append(data, '\n'), nil
	case FormatYAML:
		data, err := yaml.Marshal(settings)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to YAML")
		}
		return data, nil
	default:
		return nil, errors.WithHint(
			errors.Newf("unsupported format: %s", format),
			"supported formats: toml, json, yaml")
	}
}

// CheckFile decodes a TOML config file and returns the keys that do not map
// to any configuration field, sorted. Misspelled keys are otherwise silently
// ignored by viper.
func CheckFile(path string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "config file %s", path)
	}

	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}

	var unknown []string
	for _, key := range meta.Undecoded() {
		unknown = append(unknown, strings.Join(key, "."))
	}
	sort.Strings(unknown)
	return unknown, nil
}
