package surface

import "sync"

// memo is a one-shot slot: fn runs at most once and its result is cached,
// including a failure.
type memo[T any] struct {
	once sync.Once
	val  T
	err  error
}

func (m *memo[T]) get(fn func() (T, error)) (T, error) {
	m.once.Do(func() {
		m.val, m.err = fn()
	})
	return m.val, m.err
}
