package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("assessment not found")
	ErrInvalidScope  = errors.New("invalid assessment scope")
	ErrUnknownDriver = errors.New("unknown store driver")
	ErrStore         = errors.New("store operation failed")
)
