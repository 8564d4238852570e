package publisher

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid publisher config")
	// ErrInvalidArgument is returned when the path to publish does not exist
	ErrInvalidArgument = errors.New("invalid argument")
)
