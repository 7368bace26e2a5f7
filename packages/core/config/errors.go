package config

import "errors"

var (
	ErrParseConfig   = errors.New("config: parse")
	ErrInvalidFilter = errors.New("config: invalid filter")
	ErrWatch         = errors.New("config: watch")
)
