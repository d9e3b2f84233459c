// Package config loads the optional per-project document configuration.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/usfmcheck/core/errors"
	"github.com/FocuswithJustin/usfmcheck/core/refs"
	"github.com/FocuswithJustin/usfmcheck/core/usfm"
)

// Config is the document configuration.
type Config struct {
	Language string `yaml:"language"`
	// Repairs lists the enabled repair categories.
	Repairs []string `yaml:"repairs"`
	// ImpliedCloseThreshold overrides usfm.ImpliedCloseInfoThreshold.
	ImpliedCloseThreshold *float64 `yaml:"implied-close-threshold"`
	Workers               int      `yaml:"workers"`
	// Grammar is an optional path to a replacement tag grammar.
	Grammar string `yaml:"grammar"`
	// Versification is an optional mapping table path.
	Versification string            `yaml:"versification"`
	Keywords      ReferenceKeywords `yaml:"reference-keywords"`
}

// ReferenceKeywords lists book names used in the project's language.
type ReferenceKeywords struct {
	// Books maps a written book name to its book id.
	Books map[string]string `yaml:"books"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Language: "en",
		Repairs:  []string{},
	}
}

// Load reads a YAML configuration file. Missing keys keep their defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIO("read", path, err)
	}
	return Parse(b, path)
}

// Parse decodes a YAML configuration document. Unknown keys are an error.
func Parse(b []byte, source string) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.NewParse("yaml", source, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	known := make(map[string]bool, len(usfm.AllRepairs))
	for _, r := range usfm.AllRepairs {
		known[r] = true
	}
	for _, r := range c.Repairs {
		if r == "all" {
			continue
		}
		if !known[r] {
			return errors.NewValidation("repairs", fmt.Sprintf("unknown repair category %q", r))
		}
	}
	if t := c.ImpliedCloseThreshold; t != nil && (*t < 0 || *t > 1) {
		return errors.NewValidation("implied-close-threshold", "must be between 0 and 1")
	}
	if c.Workers < 0 {
		return errors.NewValidation("workers", "must not be negative")
	}
	for name, id := range c.Keywords.Books {
		if !usfm.KnownBook(id) {
			return errors.NewValidation("reference-keywords.books", fmt.Sprintf("%q maps to unknown book %q", name, id))
		}
	}
	return nil
}

// RepairCategories expands "all".
func (c *Config) RepairCategories() []string {
	for _, r := range c.Repairs {
		if r == "all" {
			return append([]string(nil), usfm.AllRepairs...)
		}
	}
	return c.Repairs
}

// Threshold returns the implied-close propagation threshold.
func (c *Config) Threshold() float64 {
	if c.ImpliedCloseThreshold != nil {
		return *c.ImpliedCloseThreshold
	}
	return usfm.ImpliedCloseInfoThreshold
}

// ReferenceKeywords returns the default keywords extended by the configured
// book names.
func (c *Config) ReferenceKeywords() refs.Keywords {
	k := refs.DefaultKeywords()
	for name, id := range c.Keywords.Books {
		k.Add(name, id)
	}
	return k
}
