package persist

import "errors"

var (
	// ErrLocalWrite means the in-memory mutation was applied but not durably
	// recorded. The next successful write or a mirror refresh recovers it.
	ErrLocalWrite = errors.New("local store write failed")

	// ErrNoMirror is returned by Resync when no remote store is configured.
	ErrNoMirror = errors.New("remote mirror not configured")

	// ErrNotHydrated is returned by Apply before Hydrate has succeeded.
	ErrNotHydrated = errors.New("registry not hydrated")
)
