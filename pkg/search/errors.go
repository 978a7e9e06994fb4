package search

import "errors"

var (
	// ErrProviderUnavailable indicates the search provider could not be reached or refused the query.
	ErrProviderUnavailable = errors.New("search provider unavailable")
	// ErrProviderMalformedResponse indicates the provider answered with something that could not be decoded.
	ErrProviderMalformedResponse = errors.New("search provider malformed response")
	// ErrSuperseded indicates a newer search was issued before this one completed; its results were discarded.
	ErrSuperseded = errors.New("search superseded")
)
