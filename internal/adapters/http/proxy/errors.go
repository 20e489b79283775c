package proxy

import "errors"

// Error constants.
var (
	ErrNoSource = errors.New("no worker target source configured")
)
