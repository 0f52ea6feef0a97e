package client

import (
	"slices"
	"strconv"
)

type State int32

const (
	Disconnected State = iota
	KeyExchanging
	Ready
	Querying
)

var transitions = map[State][]State{
	Disconnected:  {KeyExchanging},
	KeyExchanging: {Ready, Disconnected},
	Ready:         {Querying, Disconnected},
	Querying:      {Ready, Disconnected},
}

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case KeyExchanging:
		return "key-exchanging"
	case Ready:
		return "ready"
	case Querying:
		return "querying"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

func validTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}
