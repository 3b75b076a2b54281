package app

import "errors"

var (
	ErrUserNotFound = errors.New("user not found")
	ErrPetNotFound  = errors.New("pet not found")

	// Transient dependency faults. Callers own the retry policy; the
	// deck/swipe path never retries internally.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrCacheUnavailable = errors.New("cache unavailable")
	ErrQueueUnavailable = errors.New("queue unavailable")
)
