// Package config holds the validated engine configuration.
//
// A Config is validated as a whole: every parameter against its documented
// range, then kmer_size and occurrence_bits jointly (2*kmer_size +
// occurrence_bits <= 64). Set changes one parameter by name and keeps the
// previous value when the new one is rejected.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/hupe1980/dnagram/internal/simd"
	"github.com/hupe1980/dnagram/ngram"
)

// ScoreMode selects how keys are compared when scoring.
type ScoreMode string

const (
	// ScoreModeExact compares full keys, occurrence field included.
	ScoreModeExact ScoreMode = "exact"
	// ScoreModeKmer clears the occurrence field before comparing.
	ScoreModeKmer ScoreMode = "kmer"
)

// Cache size bounds shared by the three auxiliary caches.
const (
	MinCacheSize = 1000
	MaxCacheSize = 10_000_000
)

// Config is the full set of engine parameters.
type Config struct {
	KmerSize               int       `yaml:"kmer_size" validate:"gte=4,lte=64"`
	OccurrenceBits         int       `yaml:"occurrence_bits" validate:"gte=0,lte=16"`
	MaxAppearanceRate      float64   `yaml:"max_appearance_rate" validate:"gte=0,lte=1"`
	MaxAppearanceNrow      int64     `yaml:"max_appearance_nrow" validate:"gte=0"`
	MinScore               int       `yaml:"min_score" validate:"gte=0"`
	MinSharedNgramKeyRate  float64   `yaml:"min_shared_ngram_key_rate" validate:"gte=0,lte=1"`
	ActualMinScoreCache    int       `yaml:"actual_min_score_cache_size" validate:"gte=1000,lte=10000000"`
	RawScoreCache          int       `yaml:"raw_score_cache_size" validate:"gte=1000,lte=10000000"`
	QueryPatternCache      int       `yaml:"query_pattern_cache_size" validate:"gte=1000,lte=10000000"`
	ForceSharedCache       bool      `yaml:"force_shared_cache"`
	ExcludeHighFreqAtBuild bool      `yaml:"exclude_high_freq_at_build"`
	SIMD                   string    `yaml:"simd" validate:"isa"`
	ScoreMode              ScoreMode `yaml:"score_mode" validate:"oneof=exact kmer"`
	AnalysisWorkers        int       `yaml:"analysis_workers" validate:"gte=0,lte=1024"`
	SharedCacheDir         string    `yaml:"shared_cache_dir"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		KmerSize:               8,
		OccurrenceBits:         8,
		MaxAppearanceRate:      0.5,
		MaxAppearanceNrow:      0,
		MinScore:               1,
		MinSharedNgramKeyRate:  0.9,
		ActualMinScoreCache:    50_000,
		RawScoreCache:          50_000,
		QueryPatternCache:      50_000,
		ExcludeHighFreqAtBuild: true,
		SIMD:                   "auto",
		ScoreMode:              ScoreModeExact,
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
			return name
		})
		_ = validate.RegisterValidation("isa", validateISA)
	})
	return validate
}

// validateISA accepts "", "auto" and every name simd.ParseISA knows.
func validateISA(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" || strings.EqualFold(s, "auto") {
		return true
	}
	_, ok := simd.ParseISA(s)
	return ok
}

// Validate checks every range and the joint kmer_size/occurrence_bits
// constraint. Range violations are *ErrOutOfRange; the joint violation is
// *ErrIncompatible.
func (c Config) Validate() error {
	if err := validatorInstance().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !asValidationErrors(err, &verrs) || len(verrs) == 0 {
			return err
		}
		fe := verrs[0]
		return &ErrOutOfRange{Param: fe.Field(), Value: fe.Value(), Range: rangeOf(fe)}
	}

	if _, err := ngram.NewLayout(c.KmerSize, c.OccurrenceBits); err != nil {
		return &ErrIncompatible{
			Param:    "kmer_size, occurrence_bits",
			Expected: "2*kmer_size+occurrence_bits <= 64",
			Actual:   fmt.Sprintf("2*%d+%d = %d", c.KmerSize, c.OccurrenceBits, 2*c.KmerSize+c.OccurrenceBits),
			Hint:     "lower kmer_size or occurrence_bits",
			Err:      err,
		}
	}
	return nil
}

// Layout returns the key layout. c must be valid.
func (c Config) Layout() ngram.Layout {
	return ngram.MustLayout(c.KmerSize, c.OccurrenceBits)
}

// ISA returns the requested SIMD level; ok is false for "auto".
func (c Config) ISA() (isa simd.ISA, ok bool) {
	if c.SIMD == "" || strings.EqualFold(c.SIMD, "auto") {
		return simd.Generic, false
	}
	return simd.ParseISA(c.SIMD)
}

// ThresholdParams are the parameters an exclusion set is bound to.
type ThresholdParams struct {
	KmerSize          int
	OccurrenceBits    int
	MaxAppearanceRate float64
	MaxAppearanceNrow int64
}

// Thresholds returns the parameters an exclusion set built under c is bound to.
func (c Config) Thresholds() ThresholdParams {
	return ThresholdParams{
		KmerSize:          c.KmerSize,
		OccurrenceBits:    c.OccurrenceBits,
		MaxAppearanceRate: c.MaxAppearanceRate,
		MaxAppearanceNrow: c.MaxAppearanceNrow,
	}
}

// Check compares persisted parameters p with the current ones and returns
// *ErrIncompatible naming the first that differs.
func (p ThresholdParams) Check(current ThresholdParams) error {
	mismatch := func(param string, expected, actual any) error {
		return &ErrIncompatible{
			Param:    param,
			Expected: expected,
			Actual:   actual,
			Hint:     "set " + param + " to the analyzed value or re-run the analysis",
		}
	}
	switch {
	case p.KmerSize != current.KmerSize:
		return mismatch("kmer_size", p.KmerSize, current.KmerSize)
	case p.OccurrenceBits != current.OccurrenceBits:
		return mismatch("occurrence_bits", p.OccurrenceBits, current.OccurrenceBits)
	case p.MaxAppearanceRate != current.MaxAppearanceRate:
		return mismatch("max_appearance_rate", p.MaxAppearanceRate, current.MaxAppearanceRate)
	case p.MaxAppearanceNrow != current.MaxAppearanceNrow:
		return mismatch("max_appearance_nrow", p.MaxAppearanceNrow, current.MaxAppearanceNrow)
	}
	return nil
}

func rangeOf(fe validator.FieldError) string {
	if r, ok := ranges[fe.Field()]; ok {
		return r
	}
	if fe.Param() != "" {
		return fe.Tag() + "=" + fe.Param()
	}
	return fe.Tag()
}

var ranges = map[string]string{
	"kmer_size":                   "[4, 64]",
	"occurrence_bits":             "[0, 16]",
	"max_appearance_rate":         "[0.0, 1.0]",
	"max_appearance_nrow":         "[0, inf)",
	"min_score":                   "[0, inf)",
	"min_shared_ngram_key_rate":   "[0.0, 1.0]",
	"actual_min_score_cache_size": "[1000, 10000000]",
	"raw_score_cache_size":        "[1000, 10000000]",
	"query_pattern_cache_size":    "[1000, 10000000]",
	"simd":                        "auto, generic, scalar, neon, sve2, avx2, avx512",
	"score_mode":                  "exact, kmer",
	"analysis_workers":            "[0, 1024]",
}
