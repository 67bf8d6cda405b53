package magic

import "errors"

var (
	// ErrInvalidTable is returned when a table's arrays are inconsistent.
	ErrInvalidTable = errors.New("invalid magic table")
	// ErrMismatch is returned by Verify when a lookup disagrees with the oracle.
	ErrMismatch = errors.New("lookup disagrees with oracle")
	// ErrInvalidPolicy is returned by ParsePolicy for unknown names.
	ErrInvalidPolicy = errors.New("invalid verification policy")
)
