package models

import "errors"

// Custom errors
var (
	ErrNotFound          = errors.New("record not found")
	ErrStatusConflict    = errors.New("status transition not allowed")
	ErrUnknownActionType = errors.New("unknown action type")
	ErrUnknownCategory   = errors.New("unknown rule category")
	ErrInvalidBenchmark  = errors.New("invalid benchmark index")
)
