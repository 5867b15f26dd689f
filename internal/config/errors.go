package config

import "errors"

var (
	ErrMissingUsername = errors.New("USERNAME is required but not set")
	ErrMissingPassword = errors.New("PASSWORD is required but not set")
)
