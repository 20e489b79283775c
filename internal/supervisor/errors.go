package supervisor

import "errors"

// Error constants.
var (
	ErrNoWorkers = errors.New("no worker ports configured")
	ErrUnhealthy = errors.New("worker unhealthy")
)
