package realtime

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxnote/voxnote/internal/audio"
	"github.com/voxnote/voxnote/pkg/logger"
)

// fakeIssuer hands out a canned credential, or fails, or blocks until
// released. Blocking models a slow credential endpoint so tests can stop a
// session mid-connect.
type fakeIssuer struct {
	mu    sync.Mutex
	err   error
	calls int
	block chan struct{}
}

func (f *fakeIssuer) Issue(ctx context.Context) (*Credential, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &Credential{Token: "tok", ExpiresAt: time.Now().Add(time.Minute)}, nil
}

func (f *fakeIssuer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeIssuer) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func testControllerConfig(url string) Config {
	return Config{
		URL:           url,
		SampleRate:    24000,
		FrameSize:     8,
		LevelGain:     35,
		StopGrace:     50 * time.Millisecond,
		ErrorCooldown: 50 * time.Millisecond,
	}
}

func waitForState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state %v never reached, still %v", want, c.State())
}

type controllerFixture struct {
	cs        *channelServer
	issuer    *fakeIssuer
	opener    *audio.FakeOpener
	ctrl      *Controller
	deltas    chan string
	completes chan string
	errs      chan string
	states    chan State
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()
	f := &controllerFixture{
		cs:        newChannelServer(t),
		issuer:    &fakeIssuer{},
		opener:    audio.NewFakeOpener(),
		deltas:    make(chan string, 16),
		completes: make(chan string, 8),
		errs:      make(chan string, 8),
		states:    make(chan State, 16),
	}
	f.ctrl = NewController(testControllerConfig(f.cs.URL()), f.issuer, f.opener, Callbacks{
		OnTranscriptDelta:    func(delta string) { f.deltas <- delta },
		OnTranscriptComplete: func(text string) { f.completes <- text },
		OnError:              func(msg string) { f.errs <- msg },
		OnStateChange:        func(s State) { f.states <- s },
	}, logger.Nop())
	t.Cleanup(func() { f.ctrl.Close() })
	return f
}

func (f *controllerFixture) recvState(t *testing.T) State {
	t.Helper()
	select {
	case s := <-f.states:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for state change")
		return StateIdle
	}
}

func TestControllerRecordsStreamsAndStops(t *testing.T) {
	f := newControllerFixture(t)

	f.ctrl.Start(context.Background())
	waitForState(t, f.ctrl, StateRecording)
	conn := f.cs.accept()

	// Captured audio flows out as append events
	f.opener.Device(0).Emit(make([]float32, 8))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("no audio frame arrived: %v", err)
	}

	f.cs.sendDelta(conn, "three ")
	f.cs.sendDelta(conn, "short ")
	f.cs.sendDelta(conn, "turns")
	f.cs.sendCompleted(conn, "three short turns")

	for _, want := range []string{"three ", "short ", "turns"} {
		if got := recvString(t, f.deltas, "delta"); got != want {
			t.Fatalf("got delta %q, want %q", got, want)
		}
	}
	if got := recvString(t, f.completes, "completion"); got != "three short turns" {
		t.Fatalf("got completion %q, want %q", got, "three short turns")
	}
	if got := f.ctrl.StreamingText(); got != "" {
		t.Fatalf("streaming text not reset: %q", got)
	}

	f.ctrl.Stop()
	waitForState(t, f.ctrl, StateIdle)

	if n := f.opener.Device(0).CloseCalls(); n != 1 {
		t.Fatalf("device closed %d times, want 1", n)
	}
	// Everything was completed before the stop; no residual emission
	expectNoString(t, f.completes, "completion")
	expectNoString(t, f.errs, "error")
}

func TestControllerStopEmitsResidualOnce(t *testing.T) {
	f := newControllerFixture(t)

	f.ctrl.Start(context.Background())
	waitForState(t, f.ctrl, StateRecording)
	conn := f.cs.accept()

	f.cs.sendDelta(conn, "cut ")
	f.cs.sendDelta(conn, "off")
	recvString(t, f.deltas, "delta")
	recvString(t, f.deltas, "delta")

	f.ctrl.Stop()
	f.ctrl.Stop() // second stop is a no-op
	waitForState(t, f.ctrl, StateIdle)

	if got := recvString(t, f.completes, "residual completion"); got != "cut off" {
		t.Fatalf("got residual %q, want %q", got, "cut off")
	}
	expectNoString(t, f.completes, "second completion")

	if n := f.opener.Device(0).CloseCalls(); n != 1 {
		t.Fatalf("device closed %d times, want 1", n)
	}
}

func TestControllerStartWhileActiveIsNoOp(t *testing.T) {
	f := newControllerFixture(t)

	f.ctrl.Start(context.Background())
	waitForState(t, f.ctrl, StateRecording)
	f.cs.accept()

	f.ctrl.Start(context.Background())
	if got := f.ctrl.State(); got != StateRecording {
		t.Fatalf("second Start changed state to %v", got)
	}
	if n := f.issuer.callCount(); n != 1 {
		t.Fatalf("issuer called %d times, want 1", n)
	}
	if n := f.opener.Opened(); n != 1 {
		t.Fatalf("%d devices opened, want 1", n)
	}
}

func TestControllerCredentialFailureRecovers(t *testing.T) {
	f := newControllerFixture(t)
	f.issuer.setErr(errors.New("denied"))

	f.ctrl.Start(context.Background())
	waitForState(t, f.ctrl, StateError)

	if got := recvString(t, f.errs, "error"); !strings.Contains(got, "credential issuance failed") {
		t.Fatalf("got error %q, want credential failure", got)
	}
	if n := f.opener.Opened(); n != 0 {
		t.Fatalf("%d devices opened on credential failure, want 0", n)
	}

	// After the cooldown the controller is usable again
	waitForState(t, f.ctrl, StateIdle)
	f.issuer.setErr(nil)
	f.ctrl.Start(context.Background())
	waitForState(t, f.ctrl, StateRecording)
}

func TestControllerDeviceFailureClosesChannel(t *testing.T) {
	f := newControllerFixture(t)
	f.opener.Failing = true

	f.ctrl.Start(context.Background())
	waitForState(t, f.ctrl, StateError)

	if got := recvString(t, f.errs, "error"); !strings.Contains(got, "capture device failed") {
		t.Fatalf("got error %q, want device failure", got)
	}

	// The channel dialed before the device failed must not leak
	conn := f.cs.accept()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestControllerStopWhileConnectingAborts(t *testing.T) {
	f := newControllerFixture(t)
	f.issuer.block = make(chan struct{})

	f.ctrl.Start(context.Background())
	waitForState(t, f.ctrl, StateConnecting)

	f.ctrl.Stop()
	waitForState(t, f.ctrl, StateIdle)

	close(f.issuer.block)
	time.Sleep(50 * time.Millisecond)

	// The aborted attempt must not surface an error or acquire resources
	expectNoString(t, f.errs, "error")
	if n := f.opener.Opened(); n != 0 {
		t.Fatalf("%d devices opened after aborted attempt, want 0", n)
	}
	if got := f.ctrl.State(); got != StateIdle {
		t.Fatalf("state %v after aborted attempt, want idle", got)
	}
}

func TestControllerIgnoresBenignChannelNotice(t *testing.T) {
	f := newControllerFixture(t)

	f.ctrl.Start(context.Background())
	waitForState(t, f.ctrl, StateRecording)
	conn := f.cs.accept()

	f.cs.sendError(conn, "Error committing input audio buffer: buffer too small.")
	expectNoString(t, f.errs, "error")

	// Provider errors do not end the session
	if got := f.ctrl.State(); got != StateRecording {
		t.Fatalf("benign notice changed state to %v", got)
	}

	f.cs.sendError(conn, "session expired")
	if got := recvString(t, f.errs, "error"); got != "session expired" {
		t.Fatalf("got error %q, want %q", got, "session expired")
	}
	if got := f.ctrl.State(); got != StateRecording {
		t.Fatalf("provider error changed state to %v", got)
	}
}

func TestControllerChannelDropWhileRecordingFails(t *testing.T) {
	f := newControllerFixture(t)

	f.ctrl.Start(context.Background())
	waitForState(t, f.ctrl, StateRecording)
	conn := f.cs.accept()

	conn.Close()
	waitForState(t, f.ctrl, StateError)

	if got := recvString(t, f.errs, "error"); !strings.Contains(got, "streaming channel failed") {
		t.Fatalf("got error %q, want channel failure", got)
	}
	if n := f.opener.Device(0).CloseCalls(); n != 1 {
		t.Fatalf("device closed %d times, want 1", n)
	}

	waitForState(t, f.ctrl, StateIdle)
}

func TestControllerFramesAfterStopAreDropped(t *testing.T) {
	f := newControllerFixture(t)

	f.ctrl.Start(context.Background())
	waitForState(t, f.ctrl, StateRecording)
	conn := f.cs.accept()

	f.ctrl.Stop()
	// The fake device is closed by Stop, so Emit is already inert; this
	// verifies the callback path is also gated by state
	f.opener.Device(0).Emit(make([]float32, 8))

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("audio frame was sent after stop")
	}

	waitForState(t, f.ctrl, StateIdle)
}

func TestControllerCloseReleasesEverything(t *testing.T) {
	f := newControllerFixture(t)

	f.ctrl.Start(context.Background())
	waitForState(t, f.ctrl, StateRecording)
	conn := f.cs.accept()

	if err := f.ctrl.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if n := f.opener.Closed(); n != 1 {
		t.Fatalf("%d devices released, want 1", n)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	// A disposed controller ignores Start
	f.ctrl.Start(context.Background())
	if n := f.issuer.callCount(); n != 1 {
		t.Fatalf("issuer called %d times after Close, want 1", n)
	}
}

func TestControllerStateChangesArriveInOrder(t *testing.T) {
	f := newControllerFixture(t)

	f.ctrl.Start(context.Background())
	waitForState(t, f.ctrl, StateRecording)
	f.cs.accept()

	// Stop produces stopping then idle back to back; subscribers must see
	// them in that order
	f.ctrl.Stop()
	waitForState(t, f.ctrl, StateIdle)

	want := []State{StateConnecting, StateRecording, StateStopping, StateIdle}
	for i, w := range want {
		if got := f.recvState(t); got != w {
			t.Fatalf("transition %d: got %v, want %v", i, got, w)
		}
	}
}

func TestControllerAudioLevelTracksInput(t *testing.T) {
	f := newControllerFixture(t)

	f.ctrl.Start(context.Background())
	waitForState(t, f.ctrl, StateRecording)
	f.cs.accept()

	if got := f.ctrl.AudioLevel(); got != 0 {
		t.Fatalf("initial level %v, want 0", got)
	}

	loud := make([]float32, 8)
	for i := range loud {
		loud[i] = 0.1
	}
	f.opener.Device(0).Emit(loud)

	if got := f.ctrl.AudioLevel(); got <= 0 {
		t.Fatalf("level %v after loud frame, want > 0", got)
	}
}
