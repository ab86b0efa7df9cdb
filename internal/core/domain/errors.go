package domain

import "errors"

// Engine failures are sentinel values so adapters can classify them with
// errors.Is and map them to transport-level responses. Every one of them is
// recoverable: the operation that returns it leaves prior state untouched.
var (
	ErrUnknownColumn     = errors.New("unknown column")
	ErrInvalidColumn     = errors.New("column cannot be used here")
	ErrUnknownFilter     = errors.New("unknown filter")
	ErrUnknownScatter    = errors.New("unknown scatter view")
	ErrParamsMismatch    = errors.New("params do not match filter kind")
	ErrInvalidPattern    = errors.New("invalid pattern")
	ErrInvalidSizeColumn = errors.New("size column must be numeric")
	ErrInvalidColorMode  = errors.New("color mode not supported for column")
	ErrOutOfDomain       = errors.New("parameter outside column domain")
)
