// Package config loads teric's YAML configuration
//
//	schema: scene/types.go
//	root: Mesh
//	data: scene/cube.yaml
//	output:
//	  blob: build/cube.bin
//	  header: build/mesh.h
//	header:
//	  guard: MESH_H
//	  inline_macro: MESH_INLINE
//	  static_asserts: true
//	  comments: true
//	pointers:
//	  allow_unset: false
//	log:
//	  level: info
//	  development: false
//
// Keys left out keep their Default value. Command line flags override the
// file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/alexhholmes/teric/internal/codegen"
	"github.com/alexhholmes/teric/internal/serialize"
)

// Config is the complete CLI configuration
type Config struct {
	Schema   string         `yaml:"schema"`
	Root     string         `yaml:"root"`
	Data     string         `yaml:"data"`
	Output   OutputConfig   `yaml:"output"`
	Header   HeaderConfig   `yaml:"header"`
	Pointers PointersConfig `yaml:"pointers"`
	Log      LogConfig      `yaml:"log"`
}

// OutputConfig names the files written
type OutputConfig struct {
	Blob   string `yaml:"blob"`
	Header string `yaml:"header"`
}

// HeaderConfig controls the generated declarations
type HeaderConfig struct {
	Guard         string `yaml:"guard"`
	InlineMacro   string `yaml:"inline_macro"`
	StaticAsserts bool   `yaml:"static_asserts"`
	Comments      bool   `yaml:"comments"`
}

// PointersConfig controls how unset pointers are written
type PointersConfig struct {
	AllowUnset bool `yaml:"allow_unset"`
}

// LogConfig selects the logger built by the CLI
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	opts := codegen.DefaultOptions()
	return &Config{
		Header: HeaderConfig{
			InlineMacro:   opts.InlineMacro,
			StaticAsserts: opts.StaticAsserts,
			Comments:      opts.Comments,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. It does not validate; flags may still
// fill in missing values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate reports every problem in the configuration at once
func (c *Config) Validate() error {
	var errs []error

	if c.Schema == "" {
		errs = append(errs, errors.New("schema: required"))
	}
	if c.Root != "" && !identRe.MatchString(c.Root) {
		errs = append(errs, fmt.Errorf("root: %q is not a Go identifier", c.Root))
	}
	if c.Output.Blob == "" && c.Output.Header == "" {
		errs = append(errs, errors.New("output: at least one of blob or header is required"))
	}
	if c.Output.Blob != "" && c.Data == "" {
		errs = append(errs, errors.New("data: required to write a blob"))
	}
	if c.Header.Guard != "" && !identRe.MatchString(c.Header.Guard) {
		errs = append(errs, fmt.Errorf("header.guard: %q is not a C identifier", c.Header.Guard))
	}
	if c.Header.InlineMacro != "" && !identRe.MatchString(c.Header.InlineMacro) {
		errs = append(errs, fmt.Errorf("header.inline_macro: %q is not a C identifier", c.Header.InlineMacro))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

// HeaderOptions returns the generator options
func (c *Config) HeaderOptions() codegen.Options {
	return codegen.Options{
		Guard:         c.Header.Guard,
		InlineMacro:   c.Header.InlineMacro,
		StaticAsserts: c.Header.StaticAsserts,
		Comments:      c.Header.Comments,
	}
}

// SerializeOptions returns the serializer options
func (c *Config) SerializeOptions() []serialize.Option {
	policy := serialize.PolicyReject
	if c.Pointers.AllowUnset {
		policy = serialize.PolicyZero
	}
	return []serialize.Option{serialize.WithUnsetPointers(policy)}
}

// NewLogger builds the CLI logger
func (l LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
