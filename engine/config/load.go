package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads a TOML or YAML file over the defaults and validates the result. The format is chosen
// by extension: .toml, .yaml or .yml.
//
// Parameters:
//   - path: file to read
//   - opts: options applied after the file, typically CLI overrides
//
// Returns:
//   - *Config: the merged configuration
//   - error: read, decode or validation failure
func Load(path string, opts ...ConfigOption) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	c := Default()
	if err := Decode(c, filepath.Ext(path), data); err != nil {
		return nil, errors.Wrapf(err, "decode config %s", path)
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return c, nil
}

// Decode unmarshals data in the format named by ext into c. Fields absent from data keep their
// current values.
//
// Parameters:
//   - c: destination, usually pre-filled by Default
//   - ext: file extension including the dot
//   - data: encoded configuration
//
// Returns:
//   - error: unknown format or decode failure
func Decode(c *Config, ext string, data []byte) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	switch strings.ToLower(ext) {
	case ".toml":
		dec := toml.NewDecoder(strings.NewReader(string(data)))
		dec.DisallowUnknownFields()
		return dec.Decode(c)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(strings.NewReader(string(data)))
		dec.KnownFields(true)
		return dec.Decode(c)
	default:
		return errors.Newf("unsupported config format %q", ext)
	}
}
