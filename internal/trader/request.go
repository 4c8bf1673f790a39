// File: internal/trader/request.go
// ============================================
package trader

import (
	"errors"
	"fmt"
)

// Request is an operator command delivered to the control loop.
type Request int

const (
	RequestUnknown Request = iota
	RequestState
	RequestStat
	RequestStop
)

func (r Request) String() string {
	switch r {
	case RequestState:
		return "state"
	case RequestStat:
		return "stat"
	case RequestStop:
		return "stop"
	default:
		return "unknown"
	}
}

// QueueSize is the default capacity of the request channel.
const QueueSize = 10

// ErrStopped is returned by Run after an operator stop request.
var ErrStopped = errors.New("stopped by operator")

// FatalError ends the loop. The operator has been alerted once.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }
