// Package statemachine drives plugin initialization from the host's idle loop.
//
// The host calls Tick once per frame. The first tick only records that the game
// loop is running; the second installs every hook and starts the settle window;
// once the window has elapsed the command registry is aggregated exactly once.
package statemachine

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"

	"cmdhelper/internal/logger"
)

// DefaultSettleDelay gives other libraries time to register their commands.
const DefaultSettleDelay = 3 * time.Second

// State is the initialization phase.
type State int32

const (
	// BeforeHostInit is the state until the first idle tick.
	BeforeHostInit State = iota
	// AfterHostInit means the game loop runs; installation happens on the next tick.
	AfterHostInit
	// Settling waits for the settle delay before aggregating.
	Settling
	// Done means the registry has been aggregated.
	Done
	// Failed is terminal: installation or aggregation failed.
	Failed
)

func (s State) String() string {
	switch s {
	case BeforeHostInit:
		return "BeforeHostInit"
	case AfterHostInit:
		return "AfterHostInit"
	case Settling:
		return "Settling"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Steps are the side effects the machine sequences.
type Steps interface {
	// Install binds host objects and installs hooks.
	Install() error
	// Aggregate builds and publishes the command snapshot.
	Aggregate() error
}

// Machine is the initialization state machine. Tick must only be called from the
// host thread; State and Err may be read from anywhere.
type Machine struct {
	steps  Steps
	clock  clock.Clock
	delay  time.Duration
	logger *log.Logger

	state    atomic.Int32
	err      atomic.Pointer[error]
	settleAt time.Time
}

// New creates a machine in BeforeHostInit. A nil clk uses the wall clock; a
// negative delay falls back to DefaultSettleDelay.
func New(steps Steps, clk clock.Clock, delay time.Duration) *Machine {
	if clk == nil {
		clk = clock.New()
	}
	if delay < 0 {
		delay = DefaultSettleDelay
	}
	return &Machine{
		steps:  steps,
		clock:  clk,
		delay:  delay,
		logger: logger.NewStyledLogger("init"),
	}
}

// State returns the current state.
func (m *Machine) State() State { return State(m.state.Load()) }

// Err returns the error that moved the machine to Failed.
func (m *Machine) Err() error {
	if p := m.err.Load(); p != nil {
		return *p
	}
	return nil
}

// Tick advances the machine by one host frame and returns the new state.
func (m *Machine) Tick() State {
	switch m.State() {
	case BeforeHostInit:
		m.transition(AfterHostInit)

	case AfterHostInit:
		if err := m.steps.Install(); err != nil {
			m.fail("install", err)
			break
		}
		m.settleAt = m.clock.Now().Add(m.delay)
		m.transition(Settling)

	case Settling:
		if m.clock.Now().Before(m.settleAt) {
			break
		}
		if err := m.steps.Aggregate(); err != nil {
			m.fail("aggregate", err)
			break
		}
		m.transition(Done)

	case Done, Failed:
	}
	return m.State()
}

func (m *Machine) transition(to State) {
	from := m.State()
	m.state.Store(int32(to))
	m.logger.Debug("State changed", "state", to, "from", from)
}

func (m *Machine) fail(step string, err error) {
	err = fmt.Errorf("%s: %w", step, err)
	m.err.Store(&err)
	m.state.Store(int32(Failed))
	m.logger.Error("Initialization failed", "state", Failed, "error", err)
}
