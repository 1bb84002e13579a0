package events

import "time"

// ServerStart is emitted once the listener is bound.
type ServerStart struct {
	Addr     string
	Instance string
}

// ServerStop is emitted after the server has drained.
type ServerStop struct {
	Uptime time.Duration
	Err    error
}
