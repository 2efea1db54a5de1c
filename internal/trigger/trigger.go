// Package trigger exposes the toggle request to the outside world. Every
// source calls the supplied toggle func, which must only hand the request
// over to the event loop.
package trigger

import "context"

// Source delivers toggle requests until ctx is done.
type Source interface {
	Name() string
	Run(ctx context.Context, toggle func()) error
}

// Personal.AI order the ending
