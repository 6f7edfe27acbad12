package auth

// Status is one of the nine authentication states an Authenticator can
// occupy. See legalTransitions below for every permitted transition.
type Status int

const (
	StatusNone Status = iota
	StatusIdle
	StatusStarted
	StatusAuthenticating
	StatusAuthenticated
	StatusRefreshing
	StatusDeauthenticating
	StatusFailed
	StatusFailedTimeout
)

// String implements fmt.Stringer for log output and test failure messages.
func (s Status) String() string {
	switch s {
	case StatusNone:
		return "None"
	case StatusIdle:
		return "Idle"
	case StatusStarted:
		return "Started"
	case StatusAuthenticating:
		return "Authenticating"
	case StatusAuthenticated:
		return "Authenticated"
	case StatusRefreshing:
		return "Refreshing"
	case StatusDeauthenticating:
		return "Deauthenticating"
	case StatusFailed:
		return "Failed"
	case StatusFailedTimeout:
		return "FailedTimeout"
	default:
		return "Unknown"
	}
}

// legalTransitions enumerates every (from, to) pair this state machine
// permits. transitionTo consults it before applying any change; a call
// site that requests a transition outside this table is a bug in this
// package, not a condition callers need to handle.
var legalTransitions = map[Status]map[Status]bool{
	StatusNone:             {StatusStarted: true},
	StatusIdle:             {StatusStarted: true},
	StatusStarted:          {StatusAuthenticating: true, StatusFailed: true, StatusAuthenticated: true},
	StatusAuthenticating:   {StatusAuthenticated: true, StatusFailed: true, StatusFailedTimeout: true, StatusDeauthenticating: true},
	StatusAuthenticated:    {StatusRefreshing: true, StatusDeauthenticating: true},
	StatusRefreshing:       {StatusAuthenticating: true, StatusFailed: true},
	StatusDeauthenticating: {StatusIdle: true, StatusFailed: true},
	StatusFailed:           {StatusIdle: true},
	StatusFailedTimeout:    {StatusIdle: true},
}

// isLegalTransition reports whether moving from 'from' to 'to' is one of
// the allowed state transitions for a device authentication session.
func isLegalTransition(from, to Status) bool {
	if from == to {
		return true
	}
	targets, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// StatusChangedFunc is invoked by the state machine's single choke point
// whenever status actually changes - never when a transition request
// happens to name the current status.
type StatusChangedFunc func(ctx any, old, new Status)

// transitionTo is the single choke-point every status change in this
// package passes through. It compares old and new status and invokes the
// observer only on an actual change, satisfying P1 and P2.
func (a *Authenticator) transitionTo(new Status) {
	old := a.status
	if old == new {
		return
	}
	if !isLegalTransition(old, new) {
		if a.logger != nil {
			a.logger.Error("illegal status transition requested", "device_id", a.deviceID, "old", old.String(), "new", new.String())
		}
		return
	}
	a.status = new
	if a.onStatusChanged != nil {
		a.onStatusChanged(a.onStatusChangedCtx, old, new)
	}
	if a.logger != nil {
		a.logger.Debug("status changed", "device_id", a.deviceID, "old", old.String(), "new", new.String())
	}
}
