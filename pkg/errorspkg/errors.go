// Package errorspkg provides common app errors.
package errorspkg

import "errors"

// ErrInternal indicates internal server error.
var ErrInternal = errors.New("internal")

// ErrContention indicates that a storage operation kept losing the
// per-account lock race and should be retried by the caller.
var ErrContention = errors.New("too much contention, retry")
