// Package config holds the knobs of the riscv64 client compiler back end.
//
// Values are layered: defaults from NewConfig, then an optional YAML file,
// then the environment. Every field is nullable so that a layer only
// overrides what it actually sets.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mstoykov/envconfig"
	"github.com/sirupsen/logrus"
	"gopkg.in/guregu/null.v3"
	"gopkg.in/yaml.v3"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
)

// Config is the back end configuration.
type Config struct {
	// Heap shape.
	UseCompressedOops          null.Bool `json:"useCompressedOops" envconfig:"C1_USE_COMPRESSED_OOPS"`
	CompressedOopShift         null.Int  `json:"compressedOopShift" envconfig:"C1_COMPRESSED_OOP_SHIFT"`
	CompressedOopBase          null.Int  `json:"compressedOopBase" envconfig:"C1_COMPRESSED_OOP_BASE"`
	UseCompressedClassPointers null.Bool `json:"useCompressedClassPointers" envconfig:"C1_USE_COMPRESSED_CLASS_POINTERS"`
	CompressedKlassShift       null.Int  `json:"compressedKlassShift" envconfig:"C1_COMPRESSED_KLASS_SHIFT"`
	CompressedKlassBase        null.Int  `json:"compressedKlassBase" envconfig:"C1_COMPRESSED_KLASS_BASE"`

	// Code shape.
	UseTLAB          null.Bool `json:"useTLAB" envconfig:"C1_USE_TLAB"`
	UseFastLocking   null.Bool `json:"useFastLocking" envconfig:"C1_USE_FAST_LOCKING"`
	TypeProfileWidth null.Int  `json:"typeProfileWidth" envconfig:"C1_TYPE_PROFILE_WIDTH"`
	ProfileTypes     null.Bool `json:"profileTypes" envconfig:"C1_PROFILE_TYPES"`
	PageSize         null.Int  `json:"pageSize" envconfig:"C1_PAGE_SIZE"`

	// Buffers.
	CodeBufferSize null.Int `json:"codeBufferSize" envconfig:"C1_CODE_BUFFER_SIZE"`
	StubBufferSize null.Int `json:"stubBufferSize" envconfig:"C1_STUB_BUFFER_SIZE"`
	CodeCacheSize  null.Int `json:"codeCacheSize" envconfig:"C1_CODE_CACHE_SIZE"`

	LogLevel null.String `json:"logLevel" envconfig:"C1_LOG_LEVEL"`
}

// NewConfig returns the defaults. None of the returned values is marked as
// set, so any other layer overrides them.
func NewConfig() Config {
	return Config{
		UseCompressedOops:          null.NewBool(true, false),
		CompressedOopShift:         null.NewInt(3, false),
		CompressedOopBase:          null.NewInt(0, false),
		UseCompressedClassPointers: null.NewBool(true, false),
		CompressedKlassShift:       null.NewInt(0, false),
		CompressedKlassBase:        null.NewInt(0, false),
		UseTLAB:                    null.NewBool(true, false),
		UseFastLocking:             null.NewBool(true, false),
		TypeProfileWidth:           null.NewInt(2, false),
		ProfileTypes:               null.NewBool(true, false),
		PageSize:                   null.NewInt(4096, false),
		CodeBufferSize:             null.NewInt(64<<10, false),
		StubBufferSize:             null.NewInt(4<<10, false),
		CodeCacheSize:              null.NewInt(48<<20, false),
		LogLevel:                   null.NewString("info", false),
	}
}

// Apply returns c with every set field of cfg copied over.
func (c Config) Apply(cfg Config) Config {
	if cfg.UseCompressedOops.Valid {
		c.UseCompressedOops = cfg.UseCompressedOops
	}
	if cfg.CompressedOopShift.Valid {
		c.CompressedOopShift = cfg.CompressedOopShift
	}
	if cfg.CompressedOopBase.Valid {
		c.CompressedOopBase = cfg.CompressedOopBase
	}
	if cfg.UseCompressedClassPointers.Valid {
		c.UseCompressedClassPointers = cfg.UseCompressedClassPointers
	}
	if cfg.CompressedKlassShift.Valid {
		c.CompressedKlassShift = cfg.CompressedKlassShift
	}
	if cfg.CompressedKlassBase.Valid {
		c.CompressedKlassBase = cfg.CompressedKlassBase
	}
	if cfg.UseTLAB.Valid {
		c.UseTLAB = cfg.UseTLAB
	}
	if cfg.UseFastLocking.Valid {
		c.UseFastLocking = cfg.UseFastLocking
	}
	if cfg.TypeProfileWidth.Valid {
		c.TypeProfileWidth = cfg.TypeProfileWidth
	}
	if cfg.ProfileTypes.Valid {
		c.ProfileTypes = cfg.ProfileTypes
	}
	if cfg.PageSize.Valid {
		c.PageSize = cfg.PageSize
	}
	if cfg.CodeBufferSize.Valid {
		c.CodeBufferSize = cfg.CodeBufferSize
	}
	if cfg.StubBufferSize.Valid {
		c.StubBufferSize = cfg.StubBufferSize
	}
	if cfg.CodeCacheSize.Valid {
		c.CodeCacheSize = cfg.CodeCacheSize
	}
	if cfg.LogLevel.Valid {
		c.LogLevel = cfg.LogLevel
	}
	return c
}

// fileConfig is the YAML shape of Config. The null types only speak JSON and
// text, so the file layer goes through pointers.
type fileConfig struct {
	UseCompressedOops          *bool   `yaml:"useCompressedOops"`
	CompressedOopShift         *int64  `yaml:"compressedOopShift"`
	CompressedOopBase          *int64  `yaml:"compressedOopBase"`
	UseCompressedClassPointers *bool   `yaml:"useCompressedClassPointers"`
	CompressedKlassShift       *int64  `yaml:"compressedKlassShift"`
	CompressedKlassBase        *int64  `yaml:"compressedKlassBase"`
	UseTLAB                    *bool   `yaml:"useTLAB"`
	UseFastLocking             *bool   `yaml:"useFastLocking"`
	TypeProfileWidth           *int64  `yaml:"typeProfileWidth"`
	ProfileTypes               *bool   `yaml:"profileTypes"`
	PageSize                   *int64  `yaml:"pageSize"`
	CodeBufferSize             *int64  `yaml:"codeBufferSize"`
	StubBufferSize             *int64  `yaml:"stubBufferSize"`
	CodeCacheSize              *int64  `yaml:"codeCacheSize"`
	LogLevel                   *string `yaml:"logLevel"`
}

// ParseYAML parses data into a Config where only the keys present in data are set.
func ParseYAML(data []byte) (Config, error) {
	var f fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return Config{
		UseCompressedOops:          null.BoolFromPtr(f.UseCompressedOops),
		CompressedOopShift:         null.IntFromPtr(f.CompressedOopShift),
		CompressedOopBase:          null.IntFromPtr(f.CompressedOopBase),
		UseCompressedClassPointers: null.BoolFromPtr(f.UseCompressedClassPointers),
		CompressedKlassShift:       null.IntFromPtr(f.CompressedKlassShift),
		CompressedKlassBase:        null.IntFromPtr(f.CompressedKlassBase),
		UseTLAB:                    null.BoolFromPtr(f.UseTLAB),
		UseFastLocking:             null.BoolFromPtr(f.UseFastLocking),
		TypeProfileWidth:           null.IntFromPtr(f.TypeProfileWidth),
		ProfileTypes:               null.BoolFromPtr(f.ProfileTypes),
		PageSize:                   null.IntFromPtr(f.PageSize),
		CodeBufferSize:             null.IntFromPtr(f.CodeBufferSize),
		StubBufferSize:             null.IntFromPtr(f.StubBufferSize),
		CodeCacheSize:              null.IntFromPtr(f.CodeCacheSize),
		LogLevel:                   null.StringFromPtr(f.LogLevel),
	}, nil
}

// FromEnv reads the C1_* variables through lookup.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	var c Config
	if err := envconfig.Process("", &c, lookup); err != nil {
		return Config{}, fmt.Errorf("reading environment: %w", err)
	}
	return c, nil
}

// Load consolidates the defaults, the YAML file at path if path is not empty
// and the environment, in that order.
func Load(path string, lookup func(string) (string, bool)) (Config, error) {
	result := NewConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return result, fmt.Errorf("reading config: %w", err)
		}
		fileConf, err := ParseYAML(data)
		if err != nil {
			return result, err
		}
		result = result.Apply(fileConf)
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	envConf, err := FromEnv(lookup)
	if err != nil {
		return result, err
	}
	result = result.Apply(envConf)
	return result, result.Validate()
}

// Validate reports values no code generator accepts.
func (c Config) Validate() error {
	if c.CodeCacheSize.Int64 < c.CodeBufferSize.Int64+c.StubBufferSize.Int64 {
		return fmt.Errorf("code cache size %d cannot hold a single generation unit", c.CodeCacheSize.Int64)
	}
	if _, err := logrus.ParseLevel(c.LogLevel.String); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	o := c.Options()
	return o.Validate()
}

// Options converts c into the flags read by the code generators.
func (c Config) Options() backend.Options {
	return backend.Options{
		CompressedOops:          c.UseCompressedOops.Bool,
		OopShift:                uint8(c.CompressedOopShift.Int64),
		OopBase:                 uint64(c.CompressedOopBase.Int64),
		CompressedClassPointers: c.UseCompressedClassPointers.Bool,
		KlassShift:              uint8(c.CompressedKlassShift.Int64),
		KlassBase:               uint64(c.CompressedKlassBase.Int64),
		UseTLAB:                 c.UseTLAB.Bool,
		UseFastLocking:          c.UseFastLocking.Bool,
		TypeProfileWidth:        int(c.TypeProfileWidth.Int64),
		ProfileTypes:            c.ProfileTypes.Bool,
		PageSize:                int(c.PageSize.Int64),
		CodeBufferSize:          int(c.CodeBufferSize.Int64),
		StubBufferSize:          int(c.StubBufferSize.Int64),
	}
}

// Logger returns a logger writing to stderr at the configured level.
func (c Config) Logger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	lvl, err := logrus.ParseLevel(c.LogLevel.String)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}
