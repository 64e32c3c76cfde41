package feed

import "errors"

// Errors returned by Cache operations. The remote failure is wrapped alongside,
// so errors.Is works for both.
var (
	ErrRemoteFetch = errors.New("fetching feed")
	ErrRemotePost  = errors.New("posting entry")
	ErrRemoteEdit  = errors.New("editing entry")
)
