package status

import (
	"testing"
	"time"

	"github.com/raptchat/rapt/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, AuthRequired},
		{Booting, Ready},
		{Booting, Error},
		{AuthRequired, Ready},
		{Ready, Syncing},
		{Syncing, Ready},
		{Syncing, Degraded},
		{Degraded, Syncing},
		{Ready, AuthRequired},
		{Error, Booting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Syncing); err == nil {
		t.Error("Transition(BOOTING -> SYNCING) should fail")
	}
}

// TestAuthRequiredCannotSync verifies a sync pass cannot start before the
// user has logged in.
func TestAuthRequiredCannotSync(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, AuthRequired)

	if err := m.Transition(Syncing); err == nil {
		t.Fatal("Transition(AUTH_REQUIRED -> SYNCING) should fail")
	}
	if m.Current() != AuthRequired {
		t.Errorf("state = %s, want AUTH_REQUIRED", m.Current())
	}
}

func TestTransitionIf(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Ready)

	if m.TransitionIf(Ready, Syncing, Degraded) {
		t.Error("TransitionIf should not fire from READY")
	}
	if !m.TransitionIf(Syncing, Ready, Degraded) {
		t.Error("TransitionIf(SYNCING from READY) should fire")
	}
	if m.Current() != Syncing {
		t.Errorf("state = %s, want SYNCING", m.Current())
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(AuthRequired); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.KindStatusChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindStatusChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Booting || change.To != AuthRequired {
		t.Errorf("change = %v -> %v, want BOOTING -> AUTH_REQUIRED", change.From, change.To)
	}
}

// TestFirstLoginLifecycle walks BOOTING → AUTH_REQUIRED → READY → SYNCING → READY.
func TestFirstLoginLifecycle(t *testing.T) {
	m := NewMachine(nil)

	for _, s := range []State{AuthRequired, Ready, Syncing, Ready} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
}

// TestDegradedRecovery walks a failed pass followed by a good one.
func TestDegradedRecovery(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Degraded)

	for _, s := range []State{Syncing, Ready} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
}

func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Booting:      {},
		AuthRequired: {AuthRequired},
		Ready:        {Ready},
		Syncing:      {Ready, Syncing},
		Degraded:     {Ready, Syncing, Degraded},
		Error:        {Error},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}

func TestSinceMovesOnTransition(t *testing.T) {
	m := NewMachine(nil)
	state, booted := m.Since()
	if state != Booting {
		t.Fatalf("state = %s, want BOOTING", state)
	}
	time.Sleep(5 * time.Millisecond)
	if err := m.Transition(AuthRequired); err != nil {
		t.Fatal(err)
	}
	state, since := m.Since()
	if state != AuthRequired || !since.After(booted) {
		t.Errorf("Since() = %s, %v; want AUTH_REQUIRED after %v", state, since, booted)
	}
}
