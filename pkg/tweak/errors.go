package tweak

import "errors"

// Errors raised by Compile before any request is sent.
var (
	ErrInvalidURL          = errors.New("invalid URL")
	ErrUnknownMethod       = errors.New("unrecognized HTTP method")
	ErrUnknownMethodInList = errors.New("unrecognized HTTP method in list")
	ErrInvalidTarget       = errors.New(`expected tweak target to be one of ["url","method","header","data"]`)
	ErrMissingMarker       = errors.New("missing marker")
	ErrNoHeaders           = errors.New("no headers provided")
	ErrNoData              = errors.New("no data provided")
)
