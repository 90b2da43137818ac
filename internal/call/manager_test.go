package call

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/peerline/peerline/internal/broker"
	"github.com/peerline/peerline/internal/chatlog"
	"github.com/peerline/peerline/internal/identity"
	"github.com/peerline/peerline/internal/media"
	"github.com/peerline/peerline/internal/transport"
)

type signalRecorder struct {
	mu      sync.Mutex
	signals []broker.Signal
}

func (r *signalRecorder) send(_ context.Context, sig broker.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, sig)
	return nil
}

func (r *signalRecorder) firstOfType(st broker.SignalType) (broker.Signal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sig := range r.signals {
		if sig.Type == st {
			return sig, true
		}
	}
	return broker.Signal{}, false
}

func setupManager(t *testing.T, device media.Device) (*Manager, *chatlog.Log, *signalRecorder) {
	t.Helper()

	log := chatlog.NewLog()
	rec := &signalRecorder{}
	m := NewManager(Config{
		Transport: transport.New(transport.Config{}),
		Device:    device,
		Log:       log,
		Send:      rec.send,
	})
	t.Cleanup(m.Close)
	return m, log, rec
}

func lastNotice(t *testing.T, log *chatlog.Log) string {
	t.Helper()

	messages := log.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Kind == chatlog.KindNotice {
			return messages[i].Content
		}
	}
	t.Fatalf("expected a notice in the log")
	return ""
}

func TestManager_StartSendsOfferWithMode(t *testing.T) {
	device := media.NewSyntheticDevice()
	m, _, rec := setupManager(t, device)

	if err := m.Start(context.Background(), "AB12CD", ModeVideo); err != nil {
		t.Fatalf("failed to start call: %v", err)
	}

	if m.State() != StateCalling {
		t.Errorf("expected state calling, got %s", m.State())
	}
	if device.OpenCount() != 1 {
		t.Errorf("expected 1 device acquisition, got %d", device.OpenCount())
	}

	offer, ok := rec.firstOfType(broker.SignalOffer)
	if !ok {
		t.Fatalf("expected an offer signal")
	}
	if offer.Dst != "AB12CD" {
		t.Errorf("expected offer to AB12CD, got %q", offer.Dst)
	}
	if offer.Payload.Kind != broker.KindMedia {
		t.Errorf("expected media kind, got %q", offer.Payload.Kind)
	}
	if offer.Payload.Mode != "video" {
		t.Errorf("expected video mode tag, got %q", offer.Payload.Mode)
	}
	if offer.Payload.SDP == "" {
		t.Errorf("expected offer to carry SDP")
	}
	if offer.Payload.ConnectionID == "" {
		t.Errorf("expected offer to carry a connection id")
	}
}

func TestManager_SecondStartReturnsCallInProgress(t *testing.T) {
	device := media.NewSyntheticDevice()
	m, _, _ := setupManager(t, device)

	if err := m.Start(context.Background(), "AB12CD", ModeAudio); err != nil {
		t.Fatalf("failed to start call: %v", err)
	}

	err := m.Start(context.Background(), "AB12CD", ModeAudio)
	if !errors.Is(err, ErrCallInProgress) {
		t.Fatalf("expected ErrCallInProgress, got %v", err)
	}
	if device.OpenCount() != 1 {
		t.Errorf("expected no second acquisition, got %d", device.OpenCount())
	}
}

func TestManager_StartMediaFailure(t *testing.T) {
	m, log, _ := setupManager(t, media.FailingDevice{})

	err := m.Start(context.Background(), "AB12CD", ModeAudio)
	if !errors.Is(err, media.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if m.State() != StateIdle {
		t.Errorf("expected state idle after media failure, got %s", m.State())
	}
	if !strings.Contains(lastNotice(t, log), "call failed") {
		t.Errorf("expected a call failed notice")
	}
}

func TestManager_InboundOfferRings(t *testing.T) {
	device := media.NewSyntheticDevice()
	m, log, _ := setupManager(t, device)

	m.HandleSignal(context.Background(), broker.Signal{
		Type: broker.SignalOffer,
		Src:  "ZZ1111",
		Payload: broker.Payload{
			ConnectionID: "conn-1",
			Kind:         broker.KindMedia,
			Mode:         "video",
			SDP:          "fake-offer",
		},
	})

	if m.State() != StateIncoming {
		t.Fatalf("expected state incoming, got %s", m.State())
	}
	if m.Peer() != "ZZ1111" {
		t.Errorf("expected peer ZZ1111, got %s", m.Peer())
	}
	if m.Mode() != ModeVideo {
		t.Errorf("expected video mode, got %s", m.Mode())
	}
	if !strings.Contains(lastNotice(t, log), "incoming video call from ZZ1111") {
		t.Errorf("expected an incoming call notice, got %q", lastNotice(t, log))
	}
	if device.OpenCount() != 0 {
		t.Errorf("expected no device acquisition while ringing, got %d", device.OpenCount())
	}
}

func TestManager_RejectWithoutDeviceAcquisition(t *testing.T) {
	device := media.NewSyntheticDevice()
	m, log, rec := setupManager(t, device)

	m.HandleSignal(context.Background(), broker.Signal{
		Type: broker.SignalOffer,
		Src:  "ZZ1111",
		Payload: broker.Payload{
			ConnectionID: "conn-1",
			Kind:         broker.KindMedia,
			Mode:         "video",
			SDP:          "fake-offer",
		},
	})

	if err := m.Reject(); err != nil {
		t.Fatalf("failed to reject: %v", err)
	}

	if m.State() != StateIdle {
		t.Errorf("expected state idle after reject, got %s", m.State())
	}
	if device.OpenCount() != 0 {
		t.Errorf("expected no device acquisition on reject, got %d", device.OpenCount())
	}

	leave, ok := rec.firstOfType(broker.SignalLeave)
	if !ok {
		t.Fatalf("expected a leave signal")
	}
	if leave.Dst != "ZZ1111" {
		t.Errorf("expected leave to ZZ1111, got %q", leave.Dst)
	}
	if leave.Payload.ConnectionID != "conn-1" {
		t.Errorf("expected leave for conn-1, got %q", leave.Payload.ConnectionID)
	}
	if !strings.Contains(lastNotice(t, log), "call rejected") {
		t.Errorf("expected a call rejected notice")
	}
}

func TestManager_BusyDeclinesSecondOffer(t *testing.T) {
	device := media.NewSyntheticDevice()
	m, _, rec := setupManager(t, device)

	if err := m.Start(context.Background(), "AB12CD", ModeAudio); err != nil {
		t.Fatalf("failed to start call: %v", err)
	}

	m.HandleSignal(context.Background(), broker.Signal{
		Type: broker.SignalOffer,
		Src:  "QQ2222",
		Payload: broker.Payload{
			ConnectionID: "conn-9",
			Kind:         broker.KindMedia,
			SDP:          "fake-offer",
		},
	})

	if m.State() != StateCalling {
		t.Errorf("expected the first call to survive, got %s", m.State())
	}
	if m.Peer() != "AB12CD" {
		t.Errorf("expected peer AB12CD, got %s", m.Peer())
	}

	leave, ok := rec.firstOfType(broker.SignalLeave)
	if !ok {
		t.Fatalf("expected a busy leave signal")
	}
	if leave.Dst != "QQ2222" {
		t.Errorf("expected leave to QQ2222, got %q", leave.Dst)
	}
	if leave.Payload.ConnectionID != "conn-9" {
		t.Errorf("expected leave for conn-9, got %q", leave.Payload.ConnectionID)
	}
	if leave.Payload.Message != "busy" {
		t.Errorf("expected busy message, got %q", leave.Payload.Message)
	}
}

func TestManager_RemoteCancelWhileRinging(t *testing.T) {
	device := media.NewSyntheticDevice()
	m, log, _ := setupManager(t, device)

	m.HandleSignal(context.Background(), broker.Signal{
		Type: broker.SignalOffer,
		Src:  "ZZ1111",
		Payload: broker.Payload{
			ConnectionID: "conn-1",
			Kind:         broker.KindMedia,
			SDP:          "fake-offer",
		},
	})
	m.HandleSignal(context.Background(), broker.Signal{
		Type: broker.SignalLeave,
		Src:  "ZZ1111",
		Payload: broker.Payload{
			ConnectionID: "conn-1",
			Kind:         broker.KindMedia,
		},
	})

	if m.State() != StateIdle {
		t.Errorf("expected state idle after cancel, got %s", m.State())
	}
	if !strings.Contains(lastNotice(t, log), "call canceled by ZZ1111") {
		t.Errorf("expected a cancel notice, got %q", lastNotice(t, log))
	}
}

func TestManager_HangUpWhileCalling(t *testing.T) {
	device := media.NewSyntheticDevice()
	m, log, rec := setupManager(t, device)

	if err := m.Start(context.Background(), "AB12CD", ModeAudio); err != nil {
		t.Fatalf("failed to start call: %v", err)
	}
	if err := m.HangUp(); err != nil {
		t.Fatalf("failed to hang up: %v", err)
	}

	if m.State() != StateIdle {
		t.Errorf("expected state idle after hang up, got %s", m.State())
	}
	if !device.Released() {
		t.Errorf("expected the device to be released")
	}
	if _, ok := rec.firstOfType(broker.SignalLeave); !ok {
		t.Errorf("expected a leave signal")
	}
	if !strings.Contains(lastNotice(t, log), "call ended") {
		t.Errorf("expected a call ended notice")
	}
}

func TestManager_HangUpWhileIdle(t *testing.T) {
	device := media.NewSyntheticDevice()
	m, _, _ := setupManager(t, device)

	if err := m.HangUp(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestManager_ToggleMuteRequiresActive(t *testing.T) {
	device := media.NewSyntheticDevice()
	m, _, _ := setupManager(t, device)

	if _, err := m.ToggleMute(); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestManager_ToggleMuteFlipsTrack(t *testing.T) {
	device := media.NewSyntheticDevice()
	m, _, _ := setupManager(t, device)

	stream, err := device.Open(media.Constraints{Audio: true})
	if err != nil {
		t.Fatalf("failed to open device: %v", err)
	}

	m.mu.Lock()
	m.stream = stream
	m.remoteID = "AB12CD"
	m.mode = ModeAudio
	m.mu.Unlock()
	if err := m.machine.Dial(); err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	if _, err := m.machine.Answer(); err != nil {
		t.Fatalf("failed to record answer: %v", err)
	}
	if _, err := m.machine.RemoteTrack(); err != nil {
		t.Fatalf("failed to record remote track: %v", err)
	}

	muted, err := m.ToggleMute()
	if err != nil {
		t.Fatalf("failed to toggle mute: %v", err)
	}
	if !muted {
		t.Errorf("expected the call to be muted")
	}
	if stream.Track(media.TrackAudio).Enabled() {
		t.Errorf("expected the audio track to be disabled")
	}

	muted, err = m.ToggleMute()
	if err != nil {
		t.Fatalf("failed to toggle mute back: %v", err)
	}
	if muted {
		t.Errorf("expected the call to be unmuted")
	}
	if !stream.Track(media.TrackAudio).Enabled() {
		t.Errorf("expected the audio track to be enabled again")
	}
}

func TestManager_ToggleCameraOnAudioCall(t *testing.T) {
	device := media.NewSyntheticDevice()
	m, _, _ := setupManager(t, device)

	stream, err := device.Open(media.Constraints{Audio: true})
	if err != nil {
		t.Fatalf("failed to open device: %v", err)
	}

	m.mu.Lock()
	m.stream = stream
	m.remoteID = "AB12CD"
	m.mode = ModeAudio
	m.mu.Unlock()
	if err := m.machine.Dial(); err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	if _, err := m.machine.Answer(); err != nil {
		t.Fatalf("failed to record answer: %v", err)
	}
	if _, err := m.machine.RemoteTrack(); err != nil {
		t.Fatalf("failed to record remote track: %v", err)
	}

	if _, err := m.ToggleCamera(); !errors.Is(err, ErrNoVideoTrack) {
		t.Fatalf("expected ErrNoVideoTrack, got %v", err)
	}
}

func TestManager_OnRingCallback(t *testing.T) {
	device := media.NewSyntheticDevice()
	log := chatlog.NewLog()
	rec := &signalRecorder{}

	var gotPeer identity.ID
	var gotMode Mode
	m := NewManager(Config{
		Transport: transport.New(transport.Config{}),
		Device:    device,
		Log:       log,
		Send:      rec.send,
		OnRing: func(remoteID identity.ID, mode Mode) {
			gotPeer = remoteID
			gotMode = mode
		},
	})
	t.Cleanup(m.Close)

	m.HandleSignal(context.Background(), broker.Signal{
		Type: broker.SignalOffer,
		Src:  "ZZ1111",
		Payload: broker.Payload{
			ConnectionID: "conn-1",
			Kind:         broker.KindMedia,
			Mode:         "audio",
			SDP:          "fake-offer",
		},
	})

	if gotPeer != "ZZ1111" {
		t.Errorf("expected ring callback for ZZ1111, got %q", gotPeer)
	}
	if gotMode != ModeAudio {
		t.Errorf("expected audio mode, got %s", gotMode)
	}
}

func TestManager_BuffersCandidatesWhileRinging(t *testing.T) {
	device := media.NewSyntheticDevice()
	m, _, _ := setupManager(t, device)

	m.HandleSignal(context.Background(), broker.Signal{
		Type: broker.SignalOffer,
		Src:  "ZZ1111",
		Payload: broker.Payload{
			ConnectionID: "conn-1",
			Kind:         broker.KindMedia,
			SDP:          "fake-offer",
		},
	})
	m.HandleSignal(context.Background(), broker.Signal{
		Type: broker.SignalCandidate,
		Src:  "ZZ1111",
		Payload: broker.Payload{
			ConnectionID: "conn-1",
			Kind:         broker.KindMedia,
			Candidate:    "fake-candidate",
		},
	})

	m.mu.Lock()
	buffered := len(m.pendingCand)
	m.mu.Unlock()
	if buffered != 1 {
		t.Errorf("expected 1 buffered candidate, got %d", buffered)
	}

	if err := m.Reject(); err != nil {
		t.Fatalf("failed to reject: %v", err)
	}

	m.mu.Lock()
	buffered = len(m.pendingCand)
	m.mu.Unlock()
	if buffered != 0 {
		t.Errorf("expected the candidate buffer to be cleared, got %d", buffered)
	}
}

func TestManager_UnansweredCallTimesOut(t *testing.T) {
	device := media.NewSyntheticDevice()
	log := chatlog.NewLog()
	rec := &signalRecorder{}
	m := NewManager(Config{
		Transport:    transport.New(transport.Config{}),
		Device:       device,
		Log:          log,
		Send:         rec.send,
		SetupTimeout: 100 * time.Millisecond,
	})
	t.Cleanup(m.Close)

	if err := m.Start(context.Background(), "AB12CD", ModeAudio); err != nil {
		t.Fatalf("failed to start call: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for m.State() != StateIdle {
		if time.Now().After(deadline) {
			t.Fatalf("call never timed out, state %s", m.State())
		}
		time.Sleep(10 * time.Millisecond)
	}

	if !device.Released() {
		t.Errorf("expected the device to be released after timeout")
	}
	if _, ok := rec.firstOfType(broker.SignalLeave); !ok {
		t.Errorf("expected a leave signal on timeout")
	}
	if !strings.Contains(lastNotice(t, log), "timed out") {
		t.Errorf("expected a timeout notice, got %q", lastNotice(t, log))
	}
}

func TestManager_ElapsedZeroWhenIdle(t *testing.T) {
	device := media.NewSyntheticDevice()
	m, _, _ := setupManager(t, device)

	if m.Elapsed() != 0 {
		t.Errorf("expected zero elapsed time, got %s", m.Elapsed())
	}
}

func TestManager_CloseReleasesDevice(t *testing.T) {
	device := media.NewSyntheticDevice()
	m, _, _ := setupManager(t, device)

	if err := m.Start(context.Background(), "AB12CD", ModeAudio); err != nil {
		t.Fatalf("failed to start call: %v", err)
	}

	m.Close()

	if m.State() != StateIdle {
		t.Errorf("expected state idle after close, got %s", m.State())
	}
	if !device.Released() {
		t.Errorf("expected the device to be released")
	}
}
