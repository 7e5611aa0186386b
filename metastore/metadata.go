package metastore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/dnagram/config"
	"github.com/hupe1980/dnagram/ngram"
)

// ErrNotAnalyzed is returned when no exclusion record exists for a subject.
// Callers loading caches treat it as "no exclusions".
var ErrNotAnalyzed = errors.New("subject not analyzed")

// Subject identifies the analyzed column.
type Subject struct {
	Table  string
	Column string
}

// ParseSubject parses "table.column". The column is everything after the
// last dot so schema-qualified tables ("public.seqs.dna") keep their dots.
func ParseSubject(s string) (Subject, error) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return Subject{}, fmt.Errorf("invalid subject %q: want table.column", s)
	}
	return Subject{Table: s[:i], Column: s[i+1:]}, nil
}

func (s Subject) String() string {
	return s.Table + "." + s.Column
}

// Validate reports whether both parts are set.
func (s Subject) Validate() error {
	if s.Table == "" || s.Column == "" {
		return fmt.Errorf("invalid subject %q: table and column are required", s.String())
	}
	return nil
}

// Metadata describes one completed analysis.
type Metadata struct {
	Subject           Subject
	KmerSize          int
	OccurrenceBits    int
	MaxAppearanceRate float64
	MaxAppearanceNrow int64
	AnalyzedAt        time.Time
	TotalRows         int64
	ExcludedKeys      int64
	RunID             string
}

// Thresholds returns the parameters the record is bound to.
func (m Metadata) Thresholds() config.ThresholdParams {
	return config.ThresholdParams{
		KmerSize:          m.KmerSize,
		OccurrenceBits:    m.OccurrenceBits,
		MaxAppearanceRate: m.MaxAppearanceRate,
		MaxAppearanceNrow: m.MaxAppearanceNrow,
	}
}

// Check validates the record against the current configuration. A drifted
// parameter is a *config.ErrIncompatible naming it.
func (m Metadata) Check(current config.ThresholdParams) error {
	if err := m.Thresholds().Check(current); err != nil {
		var inc *config.ErrIncompatible
		if errors.As(err, &inc) {
			inc.Hint = fmt.Sprintf("%s was analyzed with %s = %v; %s", m.Subject, inc.Param, inc.Expected, inc.Hint)
		}
		return err
	}
	return nil
}

// Layout returns the key layout the record was built with.
func (m Metadata) Layout() (ngram.Layout, error) {
	return ngram.NewLayout(m.KmerSize, m.OccurrenceBits)
}

// Record is Metadata plus its excluded key set.
type Record struct {
	Metadata
	Keys *ngram.KeySet
}

// DropStats reports what a Delete removed.
type DropStats struct {
	Records        int
	Keys           int64
	BytesReclaimed int64
}

// Add accumulates o into s.
func (s *DropStats) Add(o DropStats) {
	s.Records += o.Records
	s.Keys += o.Keys
	s.BytesReclaimed += o.BytesReclaimed
}
