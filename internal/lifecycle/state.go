// File: internal/lifecycle/state.go
// ============================================
package lifecycle

import (
	"fmt"
	"time"

	"invest-scalp-bot/pkg/money"
	"invest-scalp-bot/pkg/types"
)

// SubState is the order-level phase of an open position.
type SubState int

const (
	WaitOpen SubState = iota
	PartialOpen
	Hold
	WaitClose
	PartialClose
)

func (s SubState) String() string {
	switch s {
	case WaitOpen:
		return "waiting for entry fill"
	case PartialOpen:
		return "entry partially filled"
	case Hold:
		return "holding"
	case WaitClose:
		return "waiting for exit fill"
	case PartialClose:
		return "exit partially filled"
	default:
		return fmt.Sprintf("SubState(%d)", int(s))
	}
}

// Closing reports whether the exit order is the one being tracked.
func (s SubState) Closing() bool {
	return s == WaitClose || s == PartialClose
}

// Position is the single open position. PriceOut, ExitLots, ExitDirection
// and ExitOrderID are set once the entry has filled.
type Position struct {
	Sub           SubState
	PriceIn       money.Money
	Lots          int64
	Direction     types.Direction
	PriceOut      money.Money
	ExitLots      int64
	ExitDirection types.Direction
	EntryOrderID  string
	ExitOrderID   string
	OpenedAt      time.Time
}

// State is one of Seeking, InPosition or Sleeping.
type State interface {
	isState()
	String() string
}

// Seeking means flat and looking for an entry.
type Seeking struct {
	Balance money.Money
}

// InPosition means an entry order was placed.
type InPosition struct {
	Position Position
}

// Sleeping means trading is paused until Since+For. Prev is the state
// the machine was in when it fell asleep.
type Sleeping struct {
	Since   time.Time
	For     time.Duration
	Balance money.Money
	Prev    State
}

func (Seeking) isState()    {}
func (InPosition) isState() {}
func (Sleeping) isState()   {}

func (s Seeking) String() string {
	return fmt.Sprintf("Seeking for opportunities, balance %s", s.Balance)
}

func (s InPosition) String() string {
	p := s.Position
	out := fmt.Sprintf("In position (%s): %s %d lots @ %s", p.Sub, p.Direction, p.Lots, p.PriceIn)
	if p.Sub == Hold || p.Sub.Closing() {
		out += fmt.Sprintf(", take profit %s", p.PriceOut)
	}
	return out
}

func (s Sleeping) String() string {
	out := fmt.Sprintf("Sleeping for %s since %s", s.For.Round(time.Second), s.Since.Format("15:04:05"))
	if in, ok := s.Prev.(InPosition); ok {
		out += "; " + in.String()
	}
	return out
}

// Due reports whether the sleep has run its course at now.
func (s Sleeping) Due(now time.Time) bool {
	return now.Sub(s.Since) >= s.For
}

// Resume is the state entered on wake: an open position is picked up
// again, anything else seeks with the pre-sleep balance.
func (s Sleeping) Resume() State {
	if in, ok := s.Prev.(InPosition); ok {
		return in
	}
	return Seeking{Balance: s.Balance}
}

// ActionKind is what the strategy asks for.
type ActionKind int

const (
	ActionHold ActionKind = iota
	ActionOpen
	ActionClose
)

// Action is a strategy decision. Price, Lots and Direction are unused for Hold.
type Action struct {
	Kind      ActionKind
	Price     money.Money
	Lots      int64
	Direction types.Direction
}

func HoldAction() Action { return Action{Kind: ActionHold} }

func OpenAction(price money.Money, lots int64, dir types.Direction) Action {
	return Action{Kind: ActionOpen, Price: price, Lots: lots, Direction: dir}
}

func CloseAction(price money.Money, lots int64, dir types.Direction) Action {
	return Action{Kind: ActionClose, Price: price, Lots: lots, Direction: dir}
}
