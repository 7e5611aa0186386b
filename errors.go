package dnagram

import (
	"errors"
	"fmt"

	"github.com/hupe1980/dnagram/codec"
	"github.com/hupe1980/dnagram/config"
	"github.com/hupe1980/dnagram/highfreq"
	"github.com/hupe1980/dnagram/index"
	"github.com/hupe1980/dnagram/metastore"
)

var (
	// ErrInvalidCharacter is returned when a sequence or query contains a
	// symbol outside its alphabet.
	ErrInvalidCharacter = errors.New("invalid character")

	// ErrQueryTooShort is returned when a query has fewer bases than
	// max(kmer_size, 8).
	ErrQueryTooShort = errors.New("query too short")

	// ErrConfigurationOutOfRange is returned when a parameter lies outside
	// its documented range.
	ErrConfigurationOutOfRange = errors.New("configuration out of range")

	// ErrConfigurationIncompatible is returned when parameters contradict
	// each other or the parameters an exclusion set was analyzed with.
	ErrConfigurationIncompatible = errors.New("configuration incompatible")

	// ErrAnalysisAborted is returned when an analysis failed or was
	// cancelled. Nothing was persisted.
	ErrAnalysisAborted = errors.New("analysis aborted")

	// ErrSubjectNotAnalyzed is returned when a subject has no exclusion record.
	ErrSubjectNotAnalyzed = errors.New("subject not analyzed")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("engine closed")
)

// translateError maps errors of the inner packages onto the sentinels above.
// The original error stays reachable through errors.As.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, highfreq.ErrAborted) {
		return fmt.Errorf("%w: %w", ErrAnalysisAborted, err)
	}

	var ic *codec.ErrInvalidCharacter
	if errors.As(err, &ic) {
		return fmt.Errorf("%w: %w", ErrInvalidCharacter, err)
	}
	var qs *index.ErrQueryTooShort
	if errors.As(err, &qs) {
		return fmt.Errorf("%w: %w", ErrQueryTooShort, err)
	}

	var oor *config.ErrOutOfRange
	if errors.As(err, &oor) {
		return fmt.Errorf("%w: %w", ErrConfigurationOutOfRange, err)
	}
	var inc *config.ErrIncompatible
	if errors.As(err, &inc) {
		return fmt.Errorf("%w: %w", ErrConfigurationIncompatible, err)
	}

	if errors.Is(err, metastore.ErrNotAnalyzed) {
		return fmt.Errorf("%w: %w", ErrSubjectNotAnalyzed, err)
	}

	return err
}
