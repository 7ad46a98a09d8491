package scheduler

import "errors"

// ErrSweeperNotRunning is returned when triggering a sweep on a stopped sweeper
var ErrSweeperNotRunning = errors.New("sweeper is not running")
