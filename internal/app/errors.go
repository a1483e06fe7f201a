package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted        = errors.New("service not started")
	ErrBackpressure      = errors.New("evaluation queue is full")
	ErrInvalidEvaluation = errors.New("invalid evaluation")
)
