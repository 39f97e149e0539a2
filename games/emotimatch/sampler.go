/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package emotimatch

import (
	"math/rand/v2"
)

// Sampler selects random elements from a pool without replacement.
type Sampler[T any] struct {
	pool []T
}

// NewSampler copies source, so later changes to it do not affect selection.
func NewSampler[T any](source []T) *Sampler[T] {
	pool := make([]T, len(source))
	copy(pool, source)

	return &Sampler[T]{pool: pool}
}

// Len returns the number of elements that can still be selected.
func (s *Sampler[T]) Len() int {
	return len(s.pool)
}

// SelectOne removes and returns a random element. It returns the zero value
// and false once the pool is exhausted.
func (s *Sampler[T]) SelectOne() (T, bool) {
	var zero T

	if len(s.pool) == 0 {
		return zero, false
	}

	i := rand.IntN(len(s.pool))
	v := s.pool[i]

	s.pool = append(s.pool[:i], s.pool[i+1:]...)

	return v, true
}

// SelectArray calls SelectOne n times. Entries selected after the pool ran
// out are the zero value.
func (s *Sampler[T]) SelectArray(n int) []T {
	out := make([]T, 0, max(n, 0))
	for range n {
		v, _ := s.SelectOne()
		out = append(out, v)
	}

	return out
}
