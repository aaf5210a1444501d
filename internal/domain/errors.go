package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrContextDone   = errors.New("context cancelled")

	// ErrLockHeld is returned by a LockManager, or by the engine-state
	// singleton election, when another holder already has a live lease.
	ErrLockHeld = errors.New("lock already held")

	ErrInvalidTrigger    = errors.New("invalid trigger parameters")
	ErrTriggerNotActive  = errors.New("trigger is not active")
	ErrExpiryNotFound    = errors.New("no futures contract for the requested expiry slot")
	ErrNoActiveAccounts  = errors.New("webhook key has no currently active broker accounts")
	ErrWebhookKeyInvalid = errors.New("webhook key is missing or inactive")
)
