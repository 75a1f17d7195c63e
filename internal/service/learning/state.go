package learning

import "fmt"

// State is a step of a teach or recall run.
type State int

const (
	StateIdle State = iota
	StateAwaitingSignal
	StateExtracting
	StateTeaching
	StateRecalling
	StateCommitted
	StateRejected
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateAwaitingSignal: "awaiting_signal",
	StateExtracting:     "extracting",
	StateTeaching:       "teaching",
	StateRecalling:      "recalling",
	StateCommitted:      "committed",
	StateRejected:       "rejected",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state by name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether a run ends in s.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateRejected
}

// transitions lists the legal successors of each state. A run that ends in
// Idle was turned away before anything was written.
var transitions = map[State][]State{
	StateIdle:           {StateAwaitingSignal},
	StateAwaitingSignal: {StateExtracting, StateIdle},
	StateExtracting:     {StateTeaching, StateRecalling, StateIdle},
	StateTeaching:       {StateCommitted, StateRejected},
	StateRecalling:      {StateCommitted, StateRejected},
}

// CanTransition reports whether to may follow from.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// run records the path of one teach or recall.
type run struct {
	path []State
}

func newRun() *run {
	return &run{path: []State{StateIdle}}
}

func (r *run) state() State {
	return r.path[len(r.path)-1]
}

// to moves the run to next. An illegal move is a bug in this package.
func (r *run) to(next State) {
	if cur := r.state(); !CanTransition(cur, next) {
		panic(fmt.Sprintf("learning: illegal transition %s -> %s", cur, next))
	}
	r.path = append(r.path, next)
}

// Path returns a copy of the states visited so far.
func (r *run) Path() []State {
	out := make([]State, len(r.path))
	copy(out, r.path)
	return out
}
