// Package dispatch bridges background work back onto a caller-owned event
// loop and guards against stale deliveries. GUI embedders set Deliver to
// their framework's call-after primitive; headless callers leave it nil and
// take callbacks inline on the worker goroutine.
package dispatch

import "sync/atomic"

// Dispatcher hands completed work to the embedder. The zero value delivers
// inline.
type Dispatcher struct {
	Deliver func(func())
}

func (d Dispatcher) call(fn func()) {
	if d.Deliver == nil {
		fn()
		return
	}
	d.Deliver(fn)
}

// Go runs work on its own goroutine and delivers exactly one of onSuccess
// or onError through d. A nil callback drops that arm's delivery.
func Go[T any](d Dispatcher, work func() (T, error), onSuccess func(T), onError func(error)) {
	go func() {
		result, err := work()
		if err != nil {
			if onError != nil {
				d.call(func() { onError(err) })
			}
			return
		}
		if onSuccess != nil {
			d.call(func() { onSuccess(result) })
		}
	}()
}

// TokenSource issues request tokens for one logical view. Issuing a new
// token retires every earlier one, so late results from superseded requests
// can be recognized and dropped.
type TokenSource struct {
	current atomic.Uint64
}

// Next retires all outstanding tokens and returns a fresh live one.
func (s *TokenSource) Next() Token {
	return Token{source: s, id: s.current.Add(1)}
}

// Retire invalidates every outstanding token without issuing a new one.
func (s *TokenSource) Retire() {
	s.current.Add(1)
}

// Token identifies one request generation. The zero Token is never live.
type Token struct {
	source *TokenSource
	id     uint64
}

// Live reports whether the token is still the most recently issued.
func (t Token) Live() bool {
	return t.source != nil && t.source.current.Load() == t.id
}
