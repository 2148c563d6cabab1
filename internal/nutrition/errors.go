package nutrition

import "errors"

var (
	// ErrNoMatch means a tier looked and found nothing good enough.
	ErrNoMatch = errors.New("no match")
	// ErrRateLimited means the local limiter refused an external call.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmptyResult means an external source answered with nothing usable.
	ErrEmptyResult = errors.New("empty result")
	// ErrParse means a response could not be turned into a profile.
	ErrParse          = errors.New("parse failure")
	ErrInvalidProfile = errors.New("invalid nutrition profile")
	ErrInvalidTable   = errors.New("invalid food table")
)
