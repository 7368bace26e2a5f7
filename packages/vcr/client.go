package vcr

import (
	"net/http"

	"github.com/abdul-hamid-achik/httpvcr/packages/core/config"
)

// NewClient returns an *http.Client whose transport is a Transport in the
// given mode over the default live transport.
func NewClient(mode Mode, settings *config.Settings, opts ...Option) *http.Client {
	return &http.Client{
		Transport: New(nil, mode, settings, opts...),
	}
}

// NewClientFromEnv is NewClient with the mode taken from VCR_MODE.
func NewClientFromEnv(settings *config.Settings, opts ...Option) (*http.Client, error) {
	mode, err := ModeFromEnv()
	if err != nil {
		return nil, err
	}
	return NewClient(mode, settings, opts...), nil
}
