package persistence

import "errors"

var (
	// ErrMalformedGist is returned when the gist API responds with a body
	// that cannot be interpreted as a notebook document
	ErrMalformedGist = errors.New("malformed gist response")
)
