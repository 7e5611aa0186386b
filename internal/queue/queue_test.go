package queue

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopK_KeepsBest(t *testing.T) {
	q := NewTopK(3)
	for i, s := range []int{5, 1, 9, 3, 9, 7} {
		q.Push(Item{ID: uint64(i), Score: s})
	}
	require.Equal(t, 3, q.Len())

	w, ok := q.Worst()
	require.True(t, ok)
	assert.Equal(t, Item{ID: 5, Score: 7}, w)

	assert.Equal(t, []Item{{ID: 2, Score: 9}, {ID: 4, Score: 9}, {ID: 5, Score: 7}}, q.Drain())
	assert.Zero(t, q.Len())
}

func TestTopK_TieBreaksOnID(t *testing.T) {
	q := NewTopK(2)
	assert.True(t, q.Push(Item{ID: 10, Score: 1}))
	assert.True(t, q.Push(Item{ID: 7, Score: 1}))
	assert.True(t, q.Push(Item{ID: 3, Score: 1}))
	assert.False(t, q.Push(Item{ID: 12, Score: 1}))
	assert.Equal(t, []Item{{ID: 3, Score: 1}, {ID: 7, Score: 1}}, q.Drain())
}

func TestTopK_Unbounded(t *testing.T) {
	q := NewTopK(0)
	_, ok := q.Worst()
	assert.False(t, ok)

	rng := rand.New(rand.NewPCG(1, 2))
	var all []Item
	for i := range 500 {
		it := Item{ID: uint64(i), Score: rng.IntN(20)}
		all = append(all, it)
		q.Push(it)
	}
	slices.SortFunc(all, func(a, b Item) int {
		if better(a, b) {
			return -1
		}
		return 1
	})
	assert.Equal(t, all, q.Drain())

	q.Reset()
	assert.Zero(t, q.Len())
}
