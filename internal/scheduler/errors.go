package scheduler

import "errors"

// Sentinel errors for the scheduler. None of these are fatal: the worst-case
// degradation of this subsystem is that no further interventions fire.
var (
	// ErrQuotaExhausted means the hint budget is spent. This is the only
	// condition surfaced to the UI, as a disabled control rather than an
	// error dialog.
	ErrQuotaExhausted = errors.New("hint quota exhausted")

	// ErrInterventionInFlight means a proposal was dropped because another
	// intervention is Dispatched or Open. Logged at debug level only.
	ErrInterventionInFlight = errors.New("intervention already in flight")

	// ErrSessionEnded means the session was submitted; late events against
	// it are discarded.
	ErrSessionEnded = errors.New("session has ended")

	// ErrUnknownIntervention means no record exists with the given ID.
	ErrUnknownIntervention = errors.New("unknown intervention")

	// ErrInterventionNotOpen means a resolution arrived for a record that
	// is not awaiting one.
	ErrInterventionNotOpen = errors.New("intervention is not open")
)
