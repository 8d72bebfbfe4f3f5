// Package config loads the targets file: which locations to resolve in the
// remote process and, optionally, which images the local locator may fall
// back to.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"remsym/resolver"

	"gopkg.in/yaml.v3"
)

var ErrNoTargets = errors.New("no targets")

// Config is the decoded targets file.
//
//	candidates:
//	  - /apex/com.android.runtime/lib64/bionic/libc.so
//	targets:
//	  - module: libc.so
//	    symbol: dlopen
//	  - module: libil2cpp.so
//	    offset: 0x7e6c098
type Config struct {
	Candidates []string          `yaml:"candidates,omitempty"`
	Targets    []resolver.Target `yaml:"targets"`
}

// Load reads and validates the targets file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a targets file. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var cfg Config
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every target; all problems are reported together.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTargets
	}

	var errs []error
	for i, target := range c.Targets {
		if err := target.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("targets[%d]: %w", i, err))
		}
	}
	for i, candidate := range c.Candidates {
		if candidate == "" {
			errs = append(errs, fmt.Errorf("candidates[%d]: empty path", i))
		}
	}
	return errors.Join(errs...)
}
