package signal

import "errors"

var (
	// ErrInvalidSignal indicates a signal definition is incomplete.
	ErrInvalidSignal = errors.New("invalid signal")

	// ErrDuplicateID indicates two signals share an id.
	ErrDuplicateID = errors.New("duplicate signal id")

	// ErrInvalidWeight indicates a weight outside MinWeight..MaxWeight.
	ErrInvalidWeight = errors.New("signal weight out of range")

	// ErrUnknownCategory indicates a category outside the closed set.
	ErrUnknownCategory = errors.New("unknown signal category")
)
