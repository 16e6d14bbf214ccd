package usecase

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("resource not found")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrRateLimited means the provider refused the call for quota reasons.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrNoOutcome means an advisory answer carried no parseable outcome code.
	ErrNoOutcome = errors.New("no outcome code in advisory response")
)
