package driver

import (
	"github.com/newtron-network/evc/pkg/util"
)

// State is the lifecycle position of one driver instance.
type State int

const (
	Created State = iota
	Initialized
	Activated
	Deactivated
	Committed
	RolledBack
)

var stateNames = [...]string{
	Created:     "CREATED",
	Initialized: "INITIALIZED",
	Activated:   "ACTIVATED",
	Deactivated: "DEACTIVATED",
	Committed:   "COMMITTED",
	RolledBack:  "ROLLED_BACK",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Committed || s == RolledBack
}

// Op is a lifecycle operation.
type Op string

const (
	OpInitialize Op = "initialize"
	OpActivate   Op = "activate"
	OpDeactivate Op = "deactivate"
	OpCommit     Op = "commit"
	OpRollback   Op = "rollback"
)

type transition struct {
	from []State
	to   State
}

var transitions = map[Op]transition{
	OpInitialize: {from: []State{Created}, to: Initialized},
	OpActivate:   {from: []State{Initialized}, to: Activated},
	OpDeactivate: {from: []State{Initialized}, to: Deactivated},
	OpCommit:     {from: []State{Activated, Deactivated}, to: Committed},
	OpRollback:   {from: []State{Activated, Deactivated}, to: RolledBack},
}

// Lifecycle enforces the driver state machine
//
//	CREATED -> INITIALIZED -> ACTIVATED|DEACTIVATED -> COMMITTED|ROLLED_BACK
//
// Drivers call Begin before doing the work of an operation and Complete once
// it succeeded, so a failed operation leaves the state unchanged.
type Lifecycle struct {
	driver string
	state  State
}

// NewLifecycle starts a lifecycle in CREATED for the named driver.
func NewLifecycle(driver string) *Lifecycle {
	return &Lifecycle{driver: driver}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	return l.state
}

// Begin checks that op is legal in the current state.
func (l *Lifecycle) Begin(op Op) error {
	t, ok := transitions[op]
	if ok {
		for _, s := range t.from {
			if s == l.state {
				return nil
			}
		}
	}
	return &util.LifecycleError{Driver: l.driver, State: l.state.String(), Operation: string(op)}
}

// Complete moves to the target state of op.
func (l *Lifecycle) Complete(op Op) {
	prev := l.state
	l.state = transitions[op].to
	util.Logger.WithField("driver", l.driver).Debugf("%s -> %s", prev, l.state)
}
