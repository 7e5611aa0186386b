package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes the environment variables read by ApplyEnv, e.g.
// DNAGRAM_KMER_SIZE.
const EnvPrefix = "DNAGRAM_"

type param struct {
	get func(*Config) string
	set func(*Config, string) error
}

func intParam(field func(*Config) *int) param {
	return param{
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, s string) error {
			v, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return err
			}
			*field(c) = v
			return nil
		},
	}
}

func int64Param(field func(*Config) *int64) param {
	return param{
		get: func(c *Config) string { return strconv.FormatInt(*field(c), 10) },
		set: func(c *Config, s string) error {
			v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return err
			}
			*field(c) = v
			return nil
		},
	}
}

func floatParam(field func(*Config) *float64) param {
	return param{
		get: func(c *Config) string { return strconv.FormatFloat(*field(c), 'g', -1, 64) },
		set: func(c *Config, s string) error {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return err
			}
			*field(c) = v
			return nil
		},
	}
}

func boolParam(field func(*Config) *bool) param {
	return param{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, s string) error {
			v, err := strconv.ParseBool(strings.TrimSpace(s))
			if err != nil {
				return err
			}
			*field(c) = v
			return nil
		},
	}
}

func stringParam(field func(*Config) *string) param {
	return param{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, s string) error {
			*field(c) = strings.TrimSpace(s)
			return nil
		},
	}
}

var params = map[string]param{
	"kmer_size":                   intParam(func(c *Config) *int { return &c.KmerSize }),
	"occurrence_bits":             intParam(func(c *Config) *int { return &c.OccurrenceBits }),
	"max_appearance_rate":         floatParam(func(c *Config) *float64 { return &c.MaxAppearanceRate }),
	"max_appearance_nrow":         int64Param(func(c *Config) *int64 { return &c.MaxAppearanceNrow }),
	"min_score":                   intParam(func(c *Config) *int { return &c.MinScore }),
	"min_shared_ngram_key_rate":   floatParam(func(c *Config) *float64 { return &c.MinSharedNgramKeyRate }),
	"actual_min_score_cache_size": intParam(func(c *Config) *int { return &c.ActualMinScoreCache }),
	"raw_score_cache_size":        intParam(func(c *Config) *int { return &c.RawScoreCache }),
	"query_pattern_cache_size":    intParam(func(c *Config) *int { return &c.QueryPatternCache }),
	"force_shared_cache":          boolParam(func(c *Config) *bool { return &c.ForceSharedCache }),
	"exclude_high_freq_at_build":  boolParam(func(c *Config) *bool { return &c.ExcludeHighFreqAtBuild }),
	"simd":                        stringParam(func(c *Config) *string { return &c.SIMD }),
	"score_mode": {
		get: func(c *Config) string { return string(c.ScoreMode) },
		set: func(c *Config, s string) error {
			c.ScoreMode = ScoreMode(strings.ToLower(strings.TrimSpace(s)))
			return nil
		},
	},
	"analysis_workers": intParam(func(c *Config) *int { return &c.AnalysisWorkers }),
	"shared_cache_dir": stringParam(func(c *Config) *string { return &c.SharedCacheDir }),
}

// Names returns every parameter name in sorted order.
func Names() []string {
	names := make([]string, 0, len(params))
	for n := range params {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Set parses value into the named parameter and validates the result. On
// any error c is left unchanged.
func (c *Config) Set(name, value string) error {
	p, ok := params[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}

	next := *c
	if err := p.set(&next, value); err != nil {
		return &ErrOutOfRange{Param: name, Value: value, Range: rangeFor(name)}
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// Get returns the named parameter formatted as a string.
func (c *Config) Get(name string) (string, error) {
	p, ok := params[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}
	return p.get(c), nil
}

func rangeFor(name string) string {
	if r, ok := ranges[name]; ok {
		return r
	}
	return "of valid values"
}

// ApplyEnv applies every DNAGRAM_<PARAM> variable present in the
// environment through Set.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, name := range Names() {
		v, ok := lookup(EnvPrefix + strings.ToUpper(name))
		if !ok {
			continue
		}
		if err := c.Set(name, v); err != nil {
			return fmt.Errorf("env %s%s: %w", EnvPrefix, strings.ToUpper(name), err)
		}
	}
	return nil
}

// Decode reads YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads a YAML file, applies environment overrides and validates.
// An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		if cfg, err = Decode(bytes.NewReader(data)); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Marshal renders c as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
