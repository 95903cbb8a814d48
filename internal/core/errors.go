package core

import "errors"

var (
	// ErrNotFound means the finance service has no record for the requested year or ledger.
	ErrNotFound = errors.New("not found")
	// ErrInvalidYear is returned before any remote call for years outside the configured bounds.
	ErrInvalidYear = errors.New("invalid fiscal year")
	// ErrMissingLedgerMapping means a save was attempted without a resolved ledger id.
	ErrMissingLedgerMapping = errors.New("missing ledger mapping")
	// ErrRemoteUnavailable wraps every network or service failure of the finance service.
	ErrRemoteUnavailable = errors.New("finance service unavailable")
	// ErrItemImmutable is returned for mutations of items that are no longer drafts.
	ErrItemImmutable = errors.New("line item is immutable")

	ErrItemNotFound   = errors.New("line item not found")
	ErrInvalidMonth   = errors.New("invalid month")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrSuperseded     = errors.New("load superseded by a newer year selection")
	ErrSaveInProgress = errors.New("save already in progress for this month")
	ErrYearNotLoaded  = errors.New("year not loaded; select it first")
)
