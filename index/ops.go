package index

import (
	"math"

	"github.com/hupe1980/dnagram/cache"
	"github.com/hupe1980/dnagram/codec"
	"github.com/hupe1980/dnagram/config"
	"github.com/hupe1980/dnagram/ngram"
)

// Ops is the extract/consistent protocol an inverted index is driven by.
type Ops interface {
	// KeySet returns the keys a row is indexed under.
	KeySet(seq codec.EncodedSequence) *ngram.KeySet
	// Matches reports whether a row satisfies a query given the column's
	// excluded keys. excluded may be nil.
	Matches(query, row, excluded *ngram.KeySet) bool
}

var _ Ops = (*KeyOps)(nil)

// KeyOps implements Ops for one validated configuration.
//
// Parsed queries and actual-min-score results are memoized in the auxiliary
// caches when they are provided. KeyOps is safe for concurrent use.
type KeyOps struct {
	cfg    config.Config
	layout ngram.Layout
	aux    *cache.Aux
}

// NewOps validates cfg and returns its operations. aux may be nil.
func NewOps(cfg config.Config, aux *cache.Aux) (*KeyOps, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &KeyOps{cfg: cfg, layout: cfg.Layout(), aux: aux}, nil
}

// Config returns the configuration the operations were built with.
func (o *KeyOps) Config() config.Config { return o.cfg }

// Layout returns the key layout.
func (o *KeyOps) Layout() ngram.Layout { return o.layout }

// KeySet returns the full keys of seq, occurrence fields included.
func (o *KeyOps) KeySet(seq codec.EncodedSequence) *ngram.KeySet {
	return ngram.Keys(o.layout, seq)
}

// QueryKeySet parses a query string as DNA4, so degenerate bases expand the
// same way they do for rows, and returns its key set. The returned set may be
// shared through the query-pattern cache and must not be modified.
func (o *KeyOps) QueryKeySet(text string) (*ngram.KeySet, error) {
	parse := func() (*ngram.KeySet, error) {
		seq, err := codec.Encode(text, codec.DNA4)
		if err != nil {
			return nil, err
		}
		if need := max(o.layout.K(), MinQueryLength); seq.NucLength() < need {
			return nil, &ErrQueryTooShort{Length: seq.NucLength(), Min: need}
		}
		return o.KeySet(seq), nil
	}
	if o.aux == nil {
		return parse()
	}
	key := cache.PatternKey{Text: text, K: o.layout.K(), OccBits: o.layout.OccurrenceBits()}
	return o.aux.QueryPattern.GetOrCompute(key, parse)
}

// Normalize returns ks in the form it is compared in: unchanged in exact
// mode, occurrence fields cleared in kmer mode.
func (o *KeyOps) Normalize(ks *ngram.KeySet) *ngram.KeySet {
	if o.cfg.ScoreMode == config.ScoreModeKmer && ks != nil {
		return ks.StripOccurrence(o.layout)
	}
	return ks
}

// ActualMinScore returns the match threshold for query against excluded,
// memoized by the fingerprints of both sets.
func (o *KeyOps) ActualMinScore(query, excluded *ngram.KeySet) int {
	q, e := o.Normalize(query), o.Normalize(excluded)
	return o.actualMinScore(q, e)
}

func (o *KeyOps) actualMinScore(q, e *ngram.KeySet) int {
	if o.aux == nil {
		return actualMinScore(q, e, o.cfg.MinScore, o.cfg.MinSharedNgramKeyRate)
	}
	key := cache.ActualMinKey{
		Query:     q.Fingerprint(),
		Exclusion: e.Fingerprint(),
		MinScore:  o.cfg.MinScore,
		Rate:      o.cfg.MinSharedNgramKeyRate,
	}
	v, _ := o.aux.ActualMinScore.GetOrCompute(key, func() (int, error) {
		return actualMinScore(q, e, o.cfg.MinScore, o.cfg.MinSharedNgramKeyRate), nil
	})
	return v
}

// Matches implements Ops.
func (o *KeyOps) Matches(query, row, excluded *ngram.KeySet) bool {
	q, r, e := o.Normalize(query), o.Normalize(row), o.Normalize(excluded)
	need := o.actualMinScore(q, e)
	if need == 0 {
		return true
	}
	return q.AndNot(e).AndLen(r) >= need
}

// ActualMinScore computes the match threshold under cfg without caching.
func ActualMinScore(query, excluded *ngram.KeySet, cfg config.Config) int {
	if cfg.ScoreMode == config.ScoreModeKmer {
		l := cfg.Layout()
		query, excluded = query.StripOccurrence(l), excluded.StripOccurrence(l)
	}
	return actualMinScore(query, excluded, cfg.MinScore, cfg.MinSharedNgramKeyRate)
}

// rateEpsilon absorbs float error in rate*n so that 0.9*10 is 9, not 10.
const rateEpsilon = 1e-9

func actualMinScore(q, e *ngram.KeySet, minScore int, rate float64) int {
	n := q.Len()
	need := max(minScore, int(math.Ceil(rate*float64(n)-rateEpsilon)))
	return max(0, need-q.AndLen(e))
}
