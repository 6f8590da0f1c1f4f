package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnknownTaskType = errors.New("unknown task type")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrInvalidWindow   = errors.New("invalid window")
	ErrInvalidLevel    = errors.New("invalid cadence level")
)
