package call

import (
	"errors"
	"testing"
)

func TestMachine_DialFromIdle(t *testing.T) {
	m := NewMachine()

	if err := m.Dial(); err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	if m.State() != StateCalling {
		t.Errorf("expected state calling, got %s", m.State())
	}
}

func TestMachine_DialWhileCalling(t *testing.T) {
	m := NewMachine()

	if err := m.Dial(); err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	if err := m.Dial(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestMachine_RingFromIdle(t *testing.T) {
	m := NewMachine()

	if err := m.Ring(); err != nil {
		t.Fatalf("failed to ring: %v", err)
	}
	if m.State() != StateIncoming {
		t.Errorf("expected state incoming, got %s", m.State())
	}
}

func TestMachine_CallerActivation(t *testing.T) {
	m := NewMachine()

	if err := m.Dial(); err != nil {
		t.Fatalf("failed to dial: %v", err)
	}

	st, err := m.Answer()
	if err != nil {
		t.Fatalf("failed to record answer: %v", err)
	}
	if st != StateCalling {
		t.Errorf("expected to stay calling before remote media, got %s", st)
	}

	st, err = m.RemoteTrack()
	if err != nil {
		t.Fatalf("failed to record remote track: %v", err)
	}
	if st != StateActive {
		t.Errorf("expected state active, got %s", st)
	}
}

func TestMachine_CalleeActivationTrackFirst(t *testing.T) {
	m := NewMachine()

	if err := m.Ring(); err != nil {
		t.Fatalf("failed to ring: %v", err)
	}

	st, err := m.RemoteTrack()
	if err != nil {
		t.Fatalf("failed to record remote track: %v", err)
	}
	if st != StateIncoming {
		t.Errorf("expected to stay incoming before answering, got %s", st)
	}

	st, err = m.Answer()
	if err != nil {
		t.Fatalf("failed to record answer: %v", err)
	}
	if st != StateActive {
		t.Errorf("expected state active, got %s", st)
	}
}

func TestMachine_AnswerFromIdle(t *testing.T) {
	m := NewMachine()

	if _, err := m.Answer(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestMachine_RemoteTrackFromIdle(t *testing.T) {
	m := NewMachine()

	if _, err := m.RemoteTrack(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestMachine_EndResetsActivationFlags(t *testing.T) {
	m := NewMachine()

	if err := m.Dial(); err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	if _, err := m.Answer(); err != nil {
		t.Fatalf("failed to record answer: %v", err)
	}
	if _, err := m.RemoteTrack(); err != nil {
		t.Fatalf("failed to record remote track: %v", err)
	}
	if m.State() != StateActive {
		t.Fatalf("expected state active, got %s", m.State())
	}

	m.End()
	if m.State() != StateIdle {
		t.Fatalf("expected state idle after end, got %s", m.State())
	}

	// The next call must not inherit the previous one's progress.
	if err := m.Dial(); err != nil {
		t.Fatalf("failed to dial again: %v", err)
	}
	st, err := m.Answer()
	if err != nil {
		t.Fatalf("failed to record answer: %v", err)
	}
	if st != StateCalling {
		t.Errorf("expected state calling, got %s", st)
	}
}

func TestMachine_EndWhileIdle(t *testing.T) {
	m := NewMachine()

	m.End()
	if m.State() != StateIdle {
		t.Errorf("expected state idle, got %s", m.State())
	}
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("video")
	if err != nil {
		t.Fatalf("failed to parse video: %v", err)
	}
	if mode != ModeVideo {
		t.Errorf("expected ModeVideo, got %s", mode)
	}

	mode, err = ParseMode("")
	if err != nil {
		t.Fatalf("failed to parse empty mode: %v", err)
	}
	if mode != ModeAudio {
		t.Errorf("expected ModeAudio for empty tag, got %s", mode)
	}

	if _, err := ParseMode("hologram"); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}
