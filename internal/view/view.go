// Package view holds the national / state drill-down selection state machine.
package view

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mohammed-shakir/civic-choropleth/internal/region"
)

var ErrNotState = errors.New("not a state code")

type Mode int

const (
	National Mode = iota
	StateDrilldown
)

func (m Mode) String() string {
	if m == StateDrilldown {
		return "state"
	}
	return "national"
}

// State is a value: National, or StateDrilldown with the selected state.
type State struct {
	Mode  Mode
	State region.Code
}

func NationalView() State { return State{Mode: National} }

func Drilldown(code region.Code) State {
	return State{Mode: StateDrilldown, State: code}
}

func (s State) String() string {
	if s.Mode == StateDrilldown {
		return fmt.Sprintf("state(%s)", s.State)
	}
	return "national"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Mode  string      `json:"mode"`
		State region.Code `json:"state,omitempty"`
	}{Mode: s.Mode.String(), State: s.State})
}

// Listener observes real transitions only; idempotent calls do not notify.
type Listener func(prev, next State)

// Machine is long lived and safe for concurrent use. Transitions are synchronous:
// listeners run before Select or Reset returns.
type Machine struct {
	mu          sync.Mutex
	cur         State
	transitions uint64
	listeners   []Listener
}

func NewMachine() *Machine {
	return &Machine{cur: NationalView()}
}

func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// Transitions counts state changes since construction.
func (m *Machine) Transitions() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitions
}

func (m *Machine) Subscribe(l Listener) {
	if l == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// Select drills into a state. Raw ids are padded ("6" -> "06") and state
// header codes fold into their state ("06000" -> "06"); county codes are
// rejected because counties never change the view.
func (m *Machine) Select(raw string) (State, bool, error) {
	code, ok := region.Normalize(raw)
	if !ok || !code.IsState() {
		return m.Current(), false, fmt.Errorf("%w: %q", ErrNotState, raw)
	}
	return m.transition(Drilldown(code))
}

func (m *Machine) Reset() (State, bool) {
	s, changed, _ := m.transition(NationalView())
	return s, changed
}

func (m *Machine) transition(next State) (State, bool, error) {
	m.mu.Lock()
	prev := m.cur
	if prev == next {
		m.mu.Unlock()
		return prev, false, nil
	}
	m.cur = next
	m.transitions++
	ls := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range ls {
		l(prev, next)
	}
	return next, true, nil
}
