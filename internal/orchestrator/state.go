// Package orchestrator drives the paid-tier model call through bounded
// retries on a primary model and a single fallback attempt. The policy is an
// explicit state machine (see Next); Run executes it.
package orchestrator

// State is a step of a generation run.
type State int

const (
	Idle State = iota
	AttemptingPrimary
	PrimarySucceeded
	PrimaryExhausted
	AttemptingFallback
	FallbackSucceeded
	FallbackFailed
	Terminal
)

var stateNames = [...]string{
	"idle",
	"attempting_primary",
	"primary_succeeded",
	"primary_exhausted",
	"attempting_fallback",
	"fallback_succeeded",
	"fallback_failed",
	"terminal",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Result classifies one model attempt.
type Result int

const (
	// Success: 2xx with valid content.
	Success Result = iota
	// Retryable: 429, 500, 502, 503, 504 or a network error.
	Retryable
	// Fatal: any other non-2xx status or request error.
	Fatal
	// ContentFailure: 2xx whose content is empty, not JSON, or incomplete.
	ContentFailure
)

func (r Result) String() string {
	switch r {
	case Success:
		return "ok"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	case ContentFailure:
		return "content"
	}
	return "unknown"
}

// Transition is the result of Next. Sleep asks the caller to back off
// before the next attempt.
type Transition struct {
	To    State
	Sleep bool
}

// Next is the pure transition function. attempt is the 1-based number of the
// attempt that just produced r in the current state; it is ignored outside
// the attempting states.
func Next(s State, attempt, maxAttempts int, r Result) Transition {
	switch s {
	case Idle:
		return Transition{To: AttemptingPrimary}
	case AttemptingPrimary:
		switch {
		case r == Success:
			return Transition{To: PrimarySucceeded}
		case r == Retryable && attempt < maxAttempts:
			return Transition{To: AttemptingPrimary, Sleep: true}
		default:
			return Transition{To: PrimaryExhausted}
		}
	case PrimaryExhausted:
		return Transition{To: AttemptingFallback}
	case AttemptingFallback:
		if r == Success {
			return Transition{To: FallbackSucceeded}
		}
		return Transition{To: FallbackFailed}
	default:
		return Transition{To: Terminal}
	}
}
