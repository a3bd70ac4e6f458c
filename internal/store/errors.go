package store

import "errors"

// ErrDuplicateKey is returned by idempotent insert operations when the
// unique-constraint violation indicates the row already exists.
var ErrDuplicateKey = errors.New("store: duplicate key")

// ErrNotFound is returned when a lookup by primary key finds no row.
var ErrNotFound = errors.New("store: not found")

// ErrInvalidState is returned for operations refused by a state invariant,
// such as closing a trade that is already closed.
var ErrInvalidState = errors.New("store: invalid state")

// ErrMissingFields is returned when AddTransfer is given a row that fails
// required-field validation; the caller should log and move on, not crash
// the tick.
var ErrMissingFields = errors.New("store: missing required fields")
