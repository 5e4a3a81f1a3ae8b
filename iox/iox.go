// Package iox provides I/O helpers for resource cleanup.
package iox

import (
	"errors"
	"io"
	"sync"
)

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(resp.Body)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(client))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// OnceCloser closes the wrapped closer at most once.
// Later calls return the result of the first one.
type OnceCloser struct {
	once sync.Once
	c    io.Closer
	err  error
}

// NewOnceCloser wraps c. A nil c makes Close a no-op.
func NewOnceCloser(c io.Closer) *OnceCloser {
	return &OnceCloser{c: c}
}

// Close closes the wrapped closer on the first call only.
func (o *OnceCloser) Close() error {
	if o == nil {
		return nil
	}
	o.once.Do(func() {
		if o.c != nil {
			o.err = o.c.Close()
		}
	})
	return o.err
}

// CloseAll closes every closer and joins the errors. Nil entries are skipped.
func CloseAll(closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
