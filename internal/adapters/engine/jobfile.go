package engine

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	perr "enginefeed/internal/platform/errors"
	"enginefeed/internal/platform/validate"

	"gopkg.in/yaml.v3"
)

// LoadJobConfig reads a job configuration file. Files ending in .yaml or
// .yml are decoded as YAML, anything else as JSON. The result is validated
func LoadJobConfig(path string) (JobConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return JobConfig{}, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "read job config %s", path)
	}
	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	return ParseJobConfig(b, format)
}

// ParseJobConfig decodes a job configuration in the given format (json or yaml)
func ParseJobConfig(b []byte, format string) (JobConfig, error) {
	var cfg JobConfig
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return JobConfig{}, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "decode yaml job config")
		}
	case "json":
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return JobConfig{}, perr.Wrap(err, perr.ErrorCodeJSON, "decode json job config")
		}
	default:
		return JobConfig{}, perr.InvalidArgf("unknown job config format %q", format)
	}
	if err := validate.Struct(cfg); err != nil {
		return JobConfig{}, err
	}
	return cfg, nil
}
