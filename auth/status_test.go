package auth

import "testing"

func TestIsLegalTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusNone, StatusStarted, true},
		{StatusNone, StatusAuthenticated, false},
		{StatusStarted, StatusAuthenticating, true},
		{StatusStarted, StatusAuthenticated, true},
		{StatusAuthenticating, StatusDeauthenticating, true},
		{StatusAuthenticated, StatusStarted, false},
		{StatusFailed, StatusIdle, true},
		{StatusFailed, StatusAuthenticated, false},
		{StatusIdle, StatusIdle, true},
	}
	for _, tc := range cases {
		got := isLegalTransition(tc.from, tc.to)
		if got != tc.want {
			t.Errorf("isLegalTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTransitionTo_RejectsIllegalTransition(t *testing.T) {
	a := &Authenticator{status: StatusIdle}
	a.transitionTo(StatusAuthenticated)
	if a.status != StatusIdle {
		t.Errorf("status = %s, want unchanged StatusIdle after an illegal transition request", a.status)
	}
}

func TestTransitionTo_AppliesLegalTransition(t *testing.T) {
	a := &Authenticator{status: StatusNone}
	a.transitionTo(StatusStarted)
	if a.status != StatusStarted {
		t.Errorf("status = %s, want StatusStarted", a.status)
	}
}
