// Package module loads suite module configurations from a testcases directory.
package module

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"compatsuite/internal/filter"
)

const (
	optionSuiteTag     = "test-suite-tag"
	optionMetadata     = "config-descriptor:metadata"
	optionNotShardable = "not-shardable"
)

// ErrParse is returned for malformed module configs.
var ErrParse = errors.New("module config parse error")

// Config is the part of a module configuration the suite acts on.
type Config struct {
	Name         string
	Description  string
	SuiteTags    []string
	Metadata     filter.MultiMap
	TestClasses  []string
	NotShardable bool
}

// HasSuiteTag reports whether the config declares tag.
func (c *Config) HasSuiteTag(tag string) bool {
	for _, t := range c.SuiteTags {
		if t == tag {
			return true
		}
	}
	return false
}

type xmlOption struct {
	Name  string `xml:"name,attr"`
	Key   string `xml:"key,attr"`
	Value string `xml:"value,attr"`
}

type xmlTest struct {
	Class string `xml:"class,attr"`
}

type xmlConfiguration struct {
	XMLName     xml.Name    `xml:"configuration"`
	Description string      `xml:"description,attr"`
	Options     []xmlOption `xml:"option"`
	Tests       []xmlTest   `xml:"test"`
}

// ParseConfig reads a module configuration. Only top-level options are
// considered; options nested inside preparers or tests belong to them.
func ParseConfig(name string, r io.Reader) (*Config, error) {
	var doc xmlConfiguration
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, name, err)
	}

	cfg := &Config{
		Name:        name,
		Description: doc.Description,
		Metadata:    filter.MultiMap{},
	}
	for _, opt := range doc.Options {
		switch opt.Name {
		case optionSuiteTag:
			cfg.SuiteTags = append(cfg.SuiteTags, opt.Value)
		case optionMetadata:
			if opt.Key == "" {
				return nil, fmt.Errorf("%w: %s: metadata option without key", ErrParse, name)
			}
			cfg.Metadata.Put(opt.Key, opt.Value)
		case optionNotShardable:
			cfg.NotShardable = opt.Value == "true"
		}
	}
	for _, t := range doc.Tests {
		if t.Class != "" {
			cfg.TestClasses = append(cfg.TestClasses, t.Class)
		}
	}
	return cfg, nil
}
