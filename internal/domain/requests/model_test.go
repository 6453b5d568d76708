package requests

import (
	"errors"
	"testing"

	"healthsafe/internal/domain/apperr"
)

func TestCanTransition(t *testing.T) {
	all := []State{StateNone, StatePending, StateAccepted, StateRejected}
	allowed := map[[2]State]bool{
		{StateNone, StatePending}:     true,
		{StatePending, StateAccepted}: true,
		{StatePending, StateRejected}: true,
	}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]State{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestParseDecision(t *testing.T) {
	if d, err := ParseDecision(" accepted "); err != nil || d != StateAccepted {
		t.Fatalf("expected ACCEPTED, got %s %v", d, err)
	}
	for _, bad := range []string{"", "PENDING", "NONE", "maybe"} {
		_, err := ParseDecision(bad)
		if !errors.Is(err, apperr.ErrInvalidDecision) || !errors.Is(err, apperr.ErrInvalidState) {
			t.Fatalf("ParseDecision(%q): expected invalid decision, got %v", bad, err)
		}
	}
}

func TestStateOf(t *testing.T) {
	if StateOf(nil) != StateNone {
		t.Fatalf("nil request must be NONE")
	}
	if StateOf(&Request{Status: StateRejected}) != StateRejected {
		t.Fatalf("expected REJECTED")
	}
	if !StateAccepted.Terminal() || StatePending.Terminal() {
		t.Fatalf("unexpected terminal flags")
	}
}
