package utils

import (
	errors "github.com/go-errors/errors"
)

var (
	// Returned when a caller passes an argument that can never be
	// valid, like a negative ordinal.
	InvalidArgumentError = errors.New("Invalid argument")
)
