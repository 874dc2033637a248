// Package config resolves CLI settings from flags, PGFILTER_* environment
// variables and an optional YAML file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nnaka2992/pg-filter-columns/internal/cachekey"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Setting keys, shared by flags, environment variables and the config file
const (
	KeyConfig   = "config"
	KeyOutput   = "output"
	KeyMode     = "mode"
	KeyAdvise   = "advise"
	KeyCacheKey = "cache-key"
	KeyVerbose  = "verbose"
)

const (
	// EnvPrefix prefixes environment variables, e.g. PGFILTER_CACHE_KEY
	EnvPrefix = "PGFILTER"

	// DefaultFile is read from the working directory when --config is unset
	DefaultFile = "pg-filter-columns.yaml"
)

// Output formats
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// Mode selects which results are reported
type Mode string

const (
	ModeColumns    Mode = "columns"
	ModePredicates Mode = "predicates"
	ModeAll        Mode = "all"
)

var (
	outputs = []string{OutputText, OutputJSON, OutputYAML}
	modes   = []Mode{ModeColumns, ModePredicates, ModeAll}
)

var (
	ErrInvalidOutput = errors.New("invalid output format")
	ErrInvalidMode   = errors.New("invalid mode")
)

// Config is the resolved configuration
type Config struct {
	Output   string
	Mode     Mode
	Advise   bool
	CacheKey cachekey.Key
	Verbose  bool

	// File is the config file that was read, empty if none
	File string
}

// Columns reports whether filtered columns should be reported
func (c *Config) Columns() bool {
	return c.Mode == ModeColumns || c.Mode == ModeAll
}

// Predicates reports whether predicates should be reported. Advice needs
// predicates, so it turns them on too.
func (c *Config) Predicates() bool {
	return c.Mode == ModePredicates || c.Mode == ModeAll || c.Advise
}

// RegisterFlags installs the configuration flags on fs
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(KeyConfig, "", fmt.Sprintf("Config file (default %s if present)", DefaultFile))
	fs.StringP(KeyOutput, "o", OutputText, fmt.Sprintf("Output format (%s)", strings.Join(outputs, "|")))
	fs.StringP(KeyMode, "m", string(ModeAll), "Results to report (columns|predicates|all)")
	fs.Bool(KeyAdvise, false, "Suggest indexes for the extracted predicates")
	fs.String(KeyCacheKey, "", "SipHash key for cache keys, 32 hex characters")
	fs.BoolP(KeyVerbose, "v", false, "Enable debug logging")
}

// Load resolves the configuration for a parsed flag set
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}

	file, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Output:  strings.ToLower(v.GetString(KeyOutput)),
		Mode:    Mode(strings.ToLower(v.GetString(KeyMode))),
		Advise:  v.GetBool(KeyAdvise),
		Verbose: v.GetBool(KeyVerbose),
		File:    file,
	}

	if !lo.Contains(outputs, cfg.Output) {
		return nil, fmt.Errorf("%w: %q (must be one of %s)", ErrInvalidOutput, cfg.Output, strings.Join(outputs, ", "))
	}
	if !lo.Contains(modes, cfg.Mode) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, cfg.Mode)
	}

	cfg.CacheKey = cachekey.DefaultKey
	if raw := v.GetString(KeyCacheKey); raw != "" {
		key, err := cachekey.ParseKey(raw)
		if err != nil {
			return nil, err
		}
		cfg.CacheKey = key
	}

	return cfg, nil
}

// readConfigFile reads the explicit config file, or the default one when it
// exists. A missing explicit file is an error.
func readConfigFile(v *viper.Viper) (string, error) {
	file := v.GetString(KeyConfig)
	if file == "" {
		if _, err := os.Stat(DefaultFile); err != nil {
			return "", nil
		}
		file = DefaultFile
	}

	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("reading config file %q: %w", file, err)
	}
	return v.ConfigFileUsed(), nil
}
