package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/voxnote/voxnote/internal/audio"
	"github.com/voxnote/voxnote/pkg/logger"
)

// State is the recorder lifecycle state. Exactly one state is active at a
// time; transitions happen only in response to Start/Stop calls and
// capture/channel events.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateRecording
	StateStopping
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Config contains controller configuration. StopGrace is the bounded wait
// after a stop request during which trailing transcription results are still
// accepted; ErrorCooldown is how long the controller sits in the error state
// before becoming usable again.
type Config struct {
	URL           string
	SampleRate    int
	FrameSize     int
	LevelGain     float64
	StopGrace     time.Duration
	ErrorCooldown time.Duration
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = audio.DefaultSampleRate
	}
	if c.FrameSize <= 0 {
		c.FrameSize = audio.DefaultFrameSize
	}
	if c.StopGrace <= 0 {
		c.StopGrace = time.Second
	}
	if c.ErrorCooldown <= 0 {
		c.ErrorCooldown = 3 * time.Second
	}
	return c
}

// Callbacks are the controller's outward-facing notifications. They fire
// outside the controller's lock; implementations may call back into the
// controller.
type Callbacks struct {
	OnTranscriptDelta    func(delta string)
	OnTranscriptComplete func(text string)
	OnError              func(msg string)
	OnStateChange        func(state State)
}

// Controller composes credential issuance, microphone capture and the
// streaming session into a start/stop API with observable state. At most one
// session is active per controller; the state machine (not locks) guards
// against overlapping sessions, and every resource acquired during Start is
// released exactly once on every exit path.
type Controller struct {
	cfg    Config
	tokens TokenIssuer
	opener audio.Opener
	cb     Callbacks
	logger *logger.Logger

	mu            sync.Mutex
	state         State
	gen           int // incremented per attempt; stale async events are dropped
	sess          *Session
	device        audio.Device
	meter         *audio.LevelMeter
	streaming     string
	attemptCancel context.CancelFunc
	graceTimer    *time.Timer
	cooldownTimer *time.Timer
	closed        bool

	stateQueue []State // transitions awaiting notification, in order
	notifying  bool
}

// NewController creates a new session controller
func NewController(cfg Config, tokens TokenIssuer, opener audio.Opener, cb Callbacks, log *logger.Logger) *Controller {
	cfg = cfg.withDefaults()
	return &Controller{
		cfg:    cfg,
		tokens: tokens,
		opener: opener,
		cb:     cb,
		meter:  audio.NewLevelMeter(cfg.LevelGain),
		logger: log.Named("recorder"),
	}
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StreamingText returns the live transcript of the turn being spoken
func (c *Controller) StreamingText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// AudioLevel returns the smoothed microphone level in [0, 1]
func (c *Controller) AudioLevel() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meter.Level()
}

// Start begins a recording attempt: issue a credential, open the channel,
// then begin capture. A no-op unless the controller is idle. Failures are
// reported through OnError and the controller returns to idle after the
// cooldown, so Start never becomes permanently unusable.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.state != StateIdle {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	c.setStateLocked(StateConnecting)
	c.streaming = ""
	c.meter.Reset()
	attemptCtx, cancel := context.WithCancel(ctx)
	c.attemptCancel = cancel
	c.mu.Unlock()

	c.logger.Info("Starting transcription session")
	go c.connect(attemptCtx, gen)
}

// Stop ends the current recording. Capture stops and outbound audio halts
// immediately, but the channel stays open for the grace window so trailing
// transcription of audio already sent is not dropped. Safe to call at any
// point after Start, including while still connecting; a no-op otherwise.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	switch c.state {
	case StateConnecting:
		// Capture and sending never began; tear down directly
		cancel := c.attemptCancel
		c.attemptCancel = nil
		c.setStateLocked(StateIdle)
		c.streaming = ""
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		c.logger.Info("Recording attempt aborted before connect")

	case StateRecording:
		gen := c.gen
		c.setStateLocked(StateStopping)
		dev := c.device
		c.device = nil
		sess := c.sess
		c.mu.Unlock()

		// New audio stops now; the remote needs the grace window to finish
		// transcribing what was already sent
		if sess != nil {
			sess.StopSending()
		}
		if dev != nil {
			_ = dev.Close()
		}

		c.mu.Lock()
		if c.gen == gen && c.state == StateStopping {
			c.graceTimer = time.AfterFunc(c.cfg.StopGrace, func() {
				c.completeStop(gen)
			})
		}
		c.mu.Unlock()
		c.logger.Info("Stop requested, waiting out grace window",
			logger.Duration("grace", c.cfg.StopGrace))

	default:
		// idle, stopping, error: nothing to do
		c.mu.Unlock()
	}
}

// Close disposes the controller, releasing anything still held. The
// controller is unusable afterwards.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.gen++ // invalidate in-flight attempts and timers
	dev := c.device
	c.device = nil
	sess := c.sess
	c.sess = nil
	cancel := c.attemptCancel
	c.attemptCancel = nil
	grace := c.graceTimer
	c.graceTimer = nil
	cooldown := c.cooldownTimer
	c.cooldownTimer = nil
	c.setStateLocked(StateIdle)
	c.streaming = ""
	c.mu.Unlock()

	if grace != nil {
		grace.Stop()
	}
	if cooldown != nil {
		cooldown.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if dev != nil {
		_ = dev.Close()
	}
	if sess != nil {
		_ = sess.Close()
	}
	return nil
}

// connect runs the async half of Start: credential, channel, capture.
func (c *Controller) connect(ctx context.Context, gen int) {
	cred, err := c.tokens.Issue(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return // attempt was aborted
		}
		c.fail(gen, &CredentialError{Err: err})
		return
	}

	sess, err := DialSession(ctx, c.cfg.URL, cred, SessionCallbacks{
		OnDelta:    func(delta, full string) { c.handleDelta(gen, delta, full) },
		OnComplete: func(text string) { c.handleComplete(gen, text) },
		OnError:    func(msg string) { c.handleProviderError(gen, msg) },
		OnClosed:   func(err error) { c.handleClosed(gen, err) },
	}, c.logger)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.fail(gen, &ChannelError{Err: err})
		return
	}

	dev, err := c.opener.Open(audio.CaptureConfig{
		SampleRate: c.cfg.SampleRate,
		FrameSize:  c.cfg.FrameSize,
	}, func(f audio.Frame) {
		c.handleFrame(gen, f)
	})
	if err != nil {
		_ = sess.Close()
		c.fail(gen, &DeviceError{Err: err})
		return
	}
	if err := dev.Start(); err != nil {
		_ = dev.Close()
		_ = sess.Close()
		c.fail(gen, &DeviceError{Err: err})
		return
	}

	c.mu.Lock()
	if c.gen != gen || c.state != StateConnecting {
		// Stopped or disposed while connecting; release what we just acquired
		c.mu.Unlock()
		_ = dev.Close()
		_ = sess.Close()
		return
	}
	c.sess = sess
	c.device = dev
	c.setStateLocked(StateRecording)
	c.mu.Unlock()

	c.logger.Info("Recording",
		logger.Int("sample_rate", c.cfg.SampleRate),
		logger.Int("frame_size", c.cfg.FrameSize))
}

// handleFrame runs on the capture callback cadence: update the level meter,
// encode, send. Frames arriving outside the recording state are dropped.
func (c *Controller) handleFrame(gen int, f audio.Frame) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	c.meter.Process(f.Samples)
	sess := c.sess
	c.mu.Unlock()

	if sess == nil {
		return
	}
	if err := sess.SendFrame(audio.EncodeFrame(f), len(f.Samples)); err != nil {
		// The read loop will observe the broken channel and drive the
		// failure path; no need to do it twice
		c.logger.Warn("Dropped audio frame", logger.Error(err))
	}
}

func (c *Controller) handleDelta(gen int, delta, full string) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.streaming = full
	c.mu.Unlock()

	if c.cb.OnTranscriptDelta != nil {
		c.cb.OnTranscriptDelta(delta)
	}
}

func (c *Controller) handleComplete(gen int, text string) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.streaming = ""
	c.mu.Unlock()

	if c.cb.OnTranscriptComplete != nil {
		c.cb.OnTranscriptComplete(text)
	}
}

// handleProviderError surfaces a non-benign inbound error event. Per the
// provider contract these do not terminate the session.
func (c *Controller) handleProviderError(gen int, msg string) {
	c.mu.Lock()
	stale := c.gen != gen
	c.mu.Unlock()
	if stale {
		return
	}
	if c.cb.OnError != nil {
		c.cb.OnError(msg)
	}
}

// handleClosed reacts to the channel going away. A requested close (err nil)
// is driven by the stop/fail paths and needs nothing here. An unexpected
// close during recording is a failure; during the stop grace window it just
// ends the wait early.
func (c *Controller) handleClosed(gen int, err error) {
	if err == nil {
		return
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	state := c.state
	c.mu.Unlock()

	switch state {
	case StateConnecting, StateRecording:
		c.fail(gen, err)
	case StateStopping:
		c.completeStop(gen)
	}
}

// completeStop finishes the stop sequence: close the channel, surface any
// residual transcript that never got an explicit completion event, go idle.
func (c *Controller) completeStop(gen int) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateStopping {
		c.mu.Unlock()
		return
	}
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
	sess := c.sess
	c.sess = nil
	cancel := c.attemptCancel
	c.attemptCancel = nil
	c.setStateLocked(StateIdle)
	c.streaming = ""
	c.meter.Reset()
	c.mu.Unlock()

	var residual string
	if sess != nil {
		residual = sess.TakeResidual()
		_ = sess.Close()
	}
	if cancel != nil {
		cancel()
	}

	c.logger.Info("Session stopped", logger.Bool("residual_text", residual != ""))

	if residual != "" && c.cb.OnTranscriptComplete != nil {
		c.cb.OnTranscriptComplete(residual)
	}
}

// fail tears down the attempt, reports the error once, and schedules the
// cooldown back to idle so the user can retry.
func (c *Controller) fail(gen int, err error) {
	c.mu.Lock()
	if c.gen != gen || (c.state != StateConnecting && c.state != StateRecording) {
		c.mu.Unlock()
		return
	}
	dev := c.device
	c.device = nil
	sess := c.sess
	c.sess = nil
	cancel := c.attemptCancel
	c.attemptCancel = nil
	c.setStateLocked(StateError)
	c.streaming = ""
	c.meter.Reset()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if dev != nil {
		_ = dev.Close()
	}
	if sess != nil {
		_ = sess.Close()
	}

	c.logger.Error("Session failed", logger.Error(err))
	if c.cb.OnError != nil {
		c.cb.OnError(err.Error())
	}

	c.mu.Lock()
	if c.gen == gen && c.state == StateError {
		c.cooldownTimer = time.AfterFunc(c.cfg.ErrorCooldown, func() {
			c.recoverToIdle(gen)
		})
	}
	c.mu.Unlock()
}

func (c *Controller) recoverToIdle(gen int) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateError {
		c.mu.Unlock()
		return
	}
	c.cooldownTimer = nil
	c.setStateLocked(StateIdle)
	c.mu.Unlock()
	c.logger.Info("Recorder ready after cooldown")
}

// setStateLocked mutates state and queues the notification. Caller holds the
// lock. A single dispatcher goroutine drains the queue, so subscribers see
// transitions in the order they happened even when two land back to back.
func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.cb.OnStateChange == nil {
		return
	}
	c.stateQueue = append(c.stateQueue, s)
	if !c.notifying {
		c.notifying = true
		go c.notifyStates()
	}
}

func (c *Controller) notifyStates() {
	for {
		c.mu.Lock()
		if len(c.stateQueue) == 0 {
			c.notifying = false
			c.mu.Unlock()
			return
		}
		s := c.stateQueue[0]
		c.stateQueue = c.stateQueue[1:]
		c.mu.Unlock()

		c.cb.OnStateChange(s)
	}
}
