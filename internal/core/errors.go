package core

import (
	"database/sql"
	"errors"
)

// Errors returned by Connection, Transaction and Command.
var (
	// ErrNoRows is returned by QueryOne and QueryScalar when the result is empty.
	ErrNoRows = sql.ErrNoRows
	// ErrTransactionInactive is returned when committing a transaction that was
	// never started or has already finished.
	ErrTransactionInactive = errors.New("transaction is inactive")
)
