package board

import "errors"

var (
	ErrInvalidSquare   = errors.New("invalid square")
	ErrInvalidGeometry = errors.New("invalid board geometry")
	ErrInvalidMask     = errors.New("invalid mask")
)
