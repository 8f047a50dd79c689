package services

import "errors"

var (
	// ErrNotFound is returned when no matching adventure exists
	ErrNotFound = errors.New("adventure not found")

	// ErrStateConflict is returned when optimistic locking detects a
	// concurrent writer for the same adventure
	ErrStateConflict = errors.New("adventure state conflict")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
)
