// SPDX-License-Identifier: GPL-3.0-or-later

// Package closepool tracks the resources a simulation owns and
// releases them in a single operation.
package closepool

import (
	"errors"
	"io"
	"slices"
	"sync"
)

// CloserFunc adapts a function to [io.Closer].
type CloserFunc func() error

var _ io.Closer = CloserFunc(nil)

// Close invokes the function.
func (fn CloserFunc) Close() error {
	return fn()
}

// Pool is a LIFO set of [io.Closer].
//
// The zero value is ready to use.
type Pool struct {
	// closed is true after the first Close.
	closed bool

	// handles contains the [io.Closer] to close.
	handles []io.Closer

	// mu provides mutual exclusion.
	mu sync.Mutex
}

// Add adds a given [io.Closer] to the pool. Adding to a closed
// pool closes the given [io.Closer] immediately.
func (p *Pool) Add(handle io.Closer) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = handle.Close()
		return
	}
	p.handles = append(p.handles, handle)
	p.mu.Unlock()
}

// AddFunc is like [*Pool.Add] but takes a function.
func (p *Pool) AddFunc(fn func() error) {
	p.Add(CloserFunc(fn))
}

// Len returns the number of handles waiting to be closed.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// Close closes all the handles in reverse order of addition, so
// a sender is closed before its connection and the connection
// before its sink. The returned error joins all the close errors.
func (p *Pool) Close() error {
	p.mu.Lock()
	handles := p.handles
	p.handles = nil
	p.closed = true
	p.mu.Unlock()

	var errv []error
	for _, handle := range slices.Backward(handles) {
		if err := handle.Close(); err != nil {
			errv = append(errv, err)
		}
	}
	return errors.Join(errv...)
}
