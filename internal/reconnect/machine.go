// Package reconnect models push reconnection and poll fallback as a pure
// state machine. Step never performs I/O; callers execute the returned
// effects.
package reconnect

import (
	"fmt"
	"time"

	"github.com/adamavenir/chatsync/internal/types"
)

// NormalClosure is the close code for an intentional shutdown.
const NormalClosure = 1000

// State is the controller's state.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	BackingOff
	Degraded
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case BackingOff:
		return "backing-off"
	case Degraded:
		return "degraded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ConnState maps the controller state to the user-facing connection state.
func (s State) ConnState() types.ConnState {
	switch s {
	case Connecting, BackingOff:
		return types.ConnConnecting
	case Connected:
		return types.ConnConnected
	case Degraded:
		return types.ConnDegradedPolling
	default:
		return types.ConnDisconnected
	}
}

// Policy bounds reconnection.
type Policy struct {
	MaxAttempts int
	RetryDelay  time.Duration
	OpenTimeout time.Duration
}

// DefaultPolicy returns the standard retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		RetryDelay:  3 * time.Second,
		OpenTimeout: 5 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = def.RetryDelay
	}
	if p.OpenTimeout <= 0 {
		p.OpenTimeout = def.OpenTimeout
	}
	return p
}

// EventKind enumerates controller inputs.
type EventKind int

const (
	// Connect requests a push connection.
	Connect EventKind = iota
	// Opened reports a successful push handshake.
	Opened
	// OpenFailed reports a failed dial.
	OpenFailed
	// OpenTimedOut reports that the handshake did not finish in time.
	OpenTimedOut
	// Closed reports a push close initiated by the peer or network.
	Closed
	// RetryElapsed reports that the backoff delay passed.
	RetryElapsed
	// ManualRetry is a user request to try push again.
	ManualRetry
	// TogglePoll forces polling.
	TogglePoll
	// TogglePush forces push.
	TogglePush
	// Stop cancels everything.
	Stop
)

func (k EventKind) String() string {
	switch k {
	case Connect:
		return "connect"
	case Opened:
		return "opened"
	case OpenFailed:
		return "open-failed"
	case OpenTimedOut:
		return "open-timed-out"
	case Closed:
		return "closed"
	case RetryElapsed:
		return "retry-elapsed"
	case ManualRetry:
		return "manual-retry"
	case TogglePoll:
		return "toggle-poll"
	case TogglePush:
		return "toggle-push"
	case Stop:
		return "stop"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a controller input. Code is set for Closed.
type Event struct {
	Kind EventKind
	Code int
}

// EffectKind enumerates side effects requested by the controller.
type EffectKind int

const (
	Dial EffectKind = iota
	ArmOpenTimeout
	CancelOpenTimeout
	ScheduleRetry
	CancelRetry
	CloseTransport
	StartPolling
	StopPolling
	ClearError
	ReportReconnecting
	ReportDegraded
	CatchUp
)

func (k EffectKind) String() string {
	switch k {
	case Dial:
		return "dial"
	case ArmOpenTimeout:
		return "arm-open-timeout"
	case CancelOpenTimeout:
		return "cancel-open-timeout"
	case ScheduleRetry:
		return "schedule-retry"
	case CancelRetry:
		return "cancel-retry"
	case CloseTransport:
		return "close-transport"
	case StartPolling:
		return "start-polling"
	case StopPolling:
		return "stop-polling"
	case ClearError:
		return "clear-error"
	case ReportReconnecting:
		return "report-reconnecting"
	case ReportDegraded:
		return "report-degraded"
	case CatchUp:
		return "catch-up"
	default:
		return fmt.Sprintf("effect(%d)", int(k))
	}
}

// Effect is a requested side effect. Delay is set for ArmOpenTimeout and
// ScheduleRetry.
type Effect struct {
	Kind  EffectKind
	Delay time.Duration
}

// Machine is the controller state. The zero value is idle with the default
// policy.
type Machine struct {
	Policy   Policy
	State    State
	Attempts int
	// Polling is true while the poll transport should be running.
	Polling bool
	// Forced is true when the user chose polling.
	Forced bool
	// probing is true while a manual retry dials alongside polling.
	probing bool
}

// New returns an idle machine with policy.
func New(policy Policy) Machine {
	return Machine{Policy: policy.normalized()}
}

// ConnState is the user-facing connection state. It stays degraded-polling
// while polling runs, including during a manual retry.
func (m Machine) ConnState() types.ConnState {
	if m.Polling {
		return types.ConnDegradedPolling
	}
	return m.State.ConnState()
}

// Probing reports whether a manual push retry is running while polling
// continues.
func (m Machine) Probing() bool {
	return m.probing
}

// Step applies ev and returns the next machine and the effects to run.
func (m Machine) Step(ev Event) (Machine, []Effect) {
	m.Policy = m.Policy.normalized()
	switch ev.Kind {
	case Connect:
		if m.State != Idle {
			return m, nil
		}
		return m.dial(nil)

	case Opened:
		if m.State != Connecting {
			return m, []Effect{{Kind: CloseTransport}}
		}
		effects := []Effect{{Kind: CancelOpenTimeout}, {Kind: ClearError}}
		if m.Polling {
			effects = append(effects, Effect{Kind: StopPolling})
		}
		effects = append(effects, Effect{Kind: CatchUp})
		m.State = Connected
		m.Attempts = 0
		m.Polling = false
		m.Forced = false
		m.probing = false
		return m, effects

	case OpenFailed:
		if m.State != Connecting {
			return m, nil
		}
		return m.fail([]Effect{{Kind: CancelOpenTimeout}})

	case OpenTimedOut:
		if m.State != Connecting {
			return m, nil
		}
		return m.fail([]Effect{{Kind: CloseTransport}})

	case Closed:
		switch m.State {
		case Connected:
			if ev.Code == NormalClosure {
				m.State = Idle
				m.Attempts = 0
				return m, []Effect{{Kind: ClearError}}
			}
			return m.fail(nil)
		case Connecting:
			if ev.Code == NormalClosure {
				m.State = Idle
				m.Attempts = 0
				return m, []Effect{{Kind: CancelOpenTimeout}, {Kind: ClearError}}
			}
			return m.fail([]Effect{{Kind: CancelOpenTimeout}})
		default:
			return m, nil
		}

	case RetryElapsed:
		if m.State != BackingOff {
			return m, nil
		}
		return m.dial(nil)

	case ManualRetry:
		switch m.State {
		case Connecting, Connected:
			return m, nil
		case BackingOff:
			m.Attempts = 0
			return m.dial([]Effect{{Kind: CancelRetry}, {Kind: ReportReconnecting}})
		case Degraded:
			m.Attempts = 0
			m.Forced = false
			m.probing = m.Polling
			return m.dial([]Effect{{Kind: ReportReconnecting}})
		default:
			m.Attempts = 0
			return m.dial([]Effect{{Kind: ReportReconnecting}})
		}

	case TogglePoll:
		if m.State == Degraded {
			m.Forced = true
			return m, nil
		}
		effects := m.cancelPush()
		if !m.Polling {
			effects = append(effects, Effect{Kind: StartPolling})
		}
		m.State = Degraded
		m.Polling = true
		m.Forced = true
		m.Attempts = 0
		m.probing = false
		return m, effects

	case TogglePush:
		if m.State == Connecting && m.probing {
			// Keep the in-flight dial; its failure now counts normally.
			m.probing = false
			m.Polling = false
			m.Forced = false
			return m, []Effect{{Kind: StopPolling}}
		}
		if m.State == Connected || m.State == Connecting {
			return m, nil
		}
		effects := m.cancelPush()
		if m.Polling {
			effects = append(effects, Effect{Kind: StopPolling})
		}
		m.Polling = false
		m.Forced = false
		m.probing = false
		m.Attempts = 0
		m.State = Idle
		return m.dial(effects)

	case Stop:
		effects := m.cancelPush()
		if m.Polling {
			effects = append(effects, Effect{Kind: StopPolling})
		}
		return New(m.Policy), effects
	}
	return m, nil
}

func (m Machine) dial(effects []Effect) (Machine, []Effect) {
	m.State = Connecting
	effects = append(effects,
		Effect{Kind: Dial},
		Effect{Kind: ArmOpenTimeout, Delay: m.Policy.OpenTimeout},
	)
	return m, effects
}

func (m Machine) fail(effects []Effect) (Machine, []Effect) {
	m.Attempts++
	if m.probing {
		m.probing = false
		m.State = Degraded
		return m, append(effects, Effect{Kind: ReportDegraded})
	}
	if m.Attempts >= m.Policy.MaxAttempts {
		m.State = Degraded
		if !m.Polling {
			effects = append(effects, Effect{Kind: StartPolling})
		}
		m.Polling = true
		return m, append(effects, Effect{Kind: ReportDegraded})
	}
	m.State = BackingOff
	return m, append(effects,
		Effect{Kind: ScheduleRetry, Delay: m.Policy.RetryDelay},
		Effect{Kind: ReportReconnecting},
	)
}

// cancelPush returns the effects that tear down any in-flight push attempt.
func (m Machine) cancelPush() []Effect {
	switch m.State {
	case Connecting:
		return []Effect{{Kind: CancelOpenTimeout}, {Kind: CloseTransport}}
	case Connected:
		return []Effect{{Kind: CloseTransport}}
	case BackingOff:
		return []Effect{{Kind: CancelRetry}}
	}
	return nil
}
