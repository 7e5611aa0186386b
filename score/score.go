package score

import (
	"github.com/hupe1980/dnagram/cache"
	"github.com/hupe1980/dnagram/codec"
	"github.com/hupe1980/dnagram/index"
	"github.com/hupe1980/dnagram/internal/hash"
	"github.com/hupe1980/dnagram/ngram"
)

// Raw returns |row ∩ query|. Both sets must already be in the form they are
// compared in.
func Raw(row, query *ngram.KeySet) int {
	return row.AndLen(query)
}

// Corrected lowers raw by the number of query keys in excluded, floored at 0.
func Corrected(raw int, query, excluded *ngram.KeySet) int {
	return max(0, raw-query.AndLen(excluded))
}

// Scores holds both scores of one (sequence, query) pair.
type Scores struct {
	Raw       int
	Corrected int
}

// Engine scores sequences against query strings.
//
// Raw scores are memoized in the raw-score cache keyed by the sequence and
// query fingerprints and the key layout. Engine is safe for concurrent use.
type Engine struct {
	ops *index.KeyOps
	aux *cache.Aux
}

// NewEngine returns an Engine over ops. aux may be nil to disable memoization.
func NewEngine(ops *index.KeyOps, aux *cache.Aux) *Engine {
	return &Engine{ops: ops, aux: aux}
}

// RawScore returns the number of keys seq shares with query.
func (e *Engine) RawScore(seq codec.EncodedSequence, query string) (int, error) {
	q, err := e.ops.QueryKeySet(query)
	if err != nil {
		return 0, err
	}
	return e.raw(seq, query, q)
}

// CorrectedScore returns the raw score minus the number of query keys in
// excluded, floored at 0. excluded may be nil.
func (e *Engine) CorrectedScore(seq codec.EncodedSequence, query string, excluded *ngram.KeySet) (int, error) {
	s, err := e.Score(seq, query, excluded)
	return s.Corrected, err
}

// Score returns both scores at once.
func (e *Engine) Score(seq codec.EncodedSequence, query string, excluded *ngram.KeySet) (Scores, error) {
	q, err := e.ops.QueryKeySet(query)
	if err != nil {
		return Scores{}, err
	}
	raw, err := e.raw(seq, query, q)
	if err != nil {
		return Scores{}, err
	}
	return Scores{
		Raw:       raw,
		Corrected: Corrected(raw, e.ops.Normalize(q), e.ops.Normalize(excluded)),
	}, nil
}

func (e *Engine) raw(seq codec.EncodedSequence, text string, q *ngram.KeySet) (int, error) {
	compute := func() (int, error) {
		return Raw(e.ops.Normalize(e.ops.KeySet(seq)), e.ops.Normalize(q)), nil
	}
	if e.aux == nil {
		return compute()
	}
	cfg := e.ops.Config()
	key := cache.RawScoreKey{
		Sequence: seq.Fingerprint(),
		Query:    hash.String(text),
		K:        cfg.KmerSize,
		OccBits:  cfg.OccurrenceBits,
		Mode:     cfg.ScoreMode,
	}
	return e.aux.RawScore.GetOrCompute(key, compute)
}
