// Package conversation runs voice and text turns and owns the conversation log.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rbright/parley/internal/audio"
	"github.com/rbright/parley/internal/fsm"
	"github.com/rbright/parley/internal/remote"
)

var (
	ErrTurnInProgress  = errors.New("a turn is already in progress")
	ErrNoRecording     = errors.New("no recording found")
	ErrEmptyTranscript = errors.New("no speech detected")
	ErrEmptyReply      = errors.New("assistant returned an empty reply")
	ErrClosed          = errors.New("conversation engine closed")
)

// Capturer records one microphone turn at a time.
type Capturer interface {
	RequestPermission(context.Context) bool
	BeginCapture(context.Context) error
	EndCapture(context.Context) (audio.Recording, error)
	Discard()
	Levels() []float64
}

// Player plays one audio file at a time; the returned channel yields exactly one value.
type Player interface {
	Play(context.Context, string) (<-chan error, error)
	Stop()
	Playing() bool
}

// Assistant is the remote speech and chat surface.
type Assistant interface {
	Transcribe(ctx context.Context, path string) (string, error)
	Complete(ctx context.Context, prompt string) (string, error)
	SynthesizeSpeech(ctx context.Context, text string) (string, error)
}

// Indicator is the engine-facing subset of indicator behavior.
type Indicator interface {
	ShowRecording(context.Context)
	ShowProcessing(context.Context)
	ShowError(context.Context, string)
	CueStop(context.Context)
	CueComplete(context.Context)
	CueCancel(context.Context)
	Hide(context.Context)
}

// noopIndicator preserves turn flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) ShowRecording(context.Context)     {}
func (noopIndicator) ShowProcessing(context.Context)    {}
func (noopIndicator) ShowError(context.Context, string) {}
func (noopIndicator) CueStop(context.Context)           {}
func (noopIndicator) CueComplete(context.Context)       {}
func (noopIndicator) CueCancel(context.Context)         {}
func (noopIndicator) Hide(context.Context)              {}

// Options tunes engine side effects.
type Options struct {
	// AutoPlay starts reply playback at the end of each turn.
	AutoPlay bool
	// KeepRecordings leaves captured WAV files in place after transcription.
	KeepRecordings bool
	// LevelInterval is how often snapshots are published while recording.
	LevelInterval time.Duration
}

// Result is the complete output of one voice or text turn.
type Result struct {
	State             fsm.State
	Err               error
	Cancelled         bool
	Skipped           bool
	User              *Message
	Reply             *Message
	AudioDevice       string
	BytesCaptured     int64
	TranscribeLatency time.Duration
	CompletionLatency time.Duration
	SynthesisLatency  time.Duration
	StartedAt         time.Time
	FinishedAt        time.Time
}

type subscriber struct {
	ch chan Snapshot
}

// Engine orchestrates conversation state transitions and side effects.
type Engine struct {
	logger    *slog.Logger
	capture   Capturer
	player    Player
	assistant Assistant
	indicator Indicator
	opts      Options

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu            sync.RWMutex
	state         fsm.State
	reason        string
	messages      []Message
	pending       bool
	captureCancel context.CancelFunc
	turnCancel    context.CancelFunc
	playing       bool
	playGen       uint64
	notice        string
	closed        bool

	subMu       sync.Mutex
	subscribers map[int]*subscriber
	nextSub     int
	subsClosed  bool
}

// NewEngine constructs an idle engine with an empty log.
func NewEngine(
	logger *slog.Logger,
	capture Capturer,
	player Player,
	assistant Assistant,
	indicator Indicator,
	opts Options,
) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if indicator == nil {
		indicator = noopIndicator{}
	}
	if opts.LevelInterval <= 0 {
		opts.LevelInterval = 100 * time.Millisecond
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Engine{
		logger:      logger,
		capture:     capture,
		player:      player,
		assistant:   assistant,
		indicator:   indicator,
		opts:        opts,
		baseCtx:     baseCtx,
		baseCancel:  baseCancel,
		state:       fsm.StateIdle,
		subscribers: make(map[int]*subscriber),
	}
}

// Status returns the current state and failure reason.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Status{State: e.state, Reason: e.reason}
}

// Messages returns a copy of the conversation log in turn order.
func (e *Engine) Messages() []Message {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.messages)
}

// Snapshot returns a consistent copy of the presentable engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	snap := Snapshot{
		Status:   Status{State: e.state, Reason: e.reason},
		Messages: slices.Clone(e.messages),
		Playing:  e.playing,
		Notice:   e.notice,
	}
	recording := e.state == fsm.StateRecording
	e.mu.RUnlock()

	if recording {
		snap.Levels = e.capture.Levels()
	}
	return snap
}

// StartVoiceTurn begins microphone capture. Allowed from idle or failed.
func (e *Engine) StartVoiceTurn(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.pending || !fsm.CanStartTurn(e.state) {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrTurnInProgress, state)
	}
	e.pending = true
	captureCtx, captureCancel := context.WithCancel(e.baseCtx)
	e.captureCancel = captureCancel
	e.mu.Unlock()

	err := e.capture.BeginCapture(captureCtx)

	e.mu.Lock()
	e.pending = false
	e.captureCancel = nil
	switch {
	case err != nil:
		e.failLocked(failureReason(err))
		reason := e.reason
		e.mu.Unlock()
		captureCancel()

		e.logger.Error("start voice turn failed", "error", err.Error())
		e.indicator.ShowError(context.Background(), reason)
		e.publish()
		return err
	case e.closed || captureCtx.Err() != nil:
		e.mu.Unlock()
		captureCancel()
		e.capture.Discard()
		e.publish()
		return context.Canceled
	}
	_ = e.transitionLocked(fsm.EventStart)
	e.captureCancel = captureCancel
	e.wg.Add(1)
	e.mu.Unlock()

	go e.publishLevels(captureCtx)
	e.indicator.ShowRecording(context.Background())
	e.publish()
	return nil
}

// StopVoiceTurn ends capture and runs transcribe, complete, synthesize, and playback.
func (e *Engine) StopVoiceTurn(ctx context.Context) Result {
	result := Result{StartedAt: time.Now()}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		result.Err = ErrClosed
		return e.finish(result)
	}
	if _, err := fsm.Transition(e.state, fsm.EventStop); err != nil || e.pending {
		if err == nil {
			err = ErrTurnInProgress
		}
		e.mu.Unlock()
		result.Err = err
		return e.finish(result)
	}
	e.pending = true
	captureCancel := e.captureCancel
	e.captureCancel = nil
	e.wg.Add(1)
	e.mu.Unlock()
	defer e.wg.Done()

	result = e.runVoice(ctx, result, captureCancel)
	e.logTurn("voice", result)
	return result
}

func (e *Engine) runVoice(ctx context.Context, result Result, captureCancel context.CancelFunc) Result {
	rec, err := e.capture.EndCapture(ctx)
	if captureCancel != nil {
		captureCancel()
	}
	result.AudioDevice = rec.Device.ID
	result.BytesCaptured = rec.Bytes

	e.mu.Lock()
	e.pending = false
	if e.state != fsm.StateRecording {
		e.mu.Unlock()
		e.removeRecording(rec)
		result.Cancelled = true
		return e.finish(result)
	}
	if err != nil {
		if errors.Is(err, audio.ErrNoActiveCapture) || errors.Is(err, audio.ErrEmptyRecording) {
			err = fmt.Errorf("%w: %w", ErrNoRecording, err)
		}
		e.failLocked(failureReason(err))
		reason := e.reason
		e.mu.Unlock()

		e.indicator.ShowError(context.Background(), reason)
		e.publish()
		result.Err = err
		return e.finish(result)
	}
	_ = e.transitionLocked(fsm.EventStop)
	turnCtx, turnCancel := e.turnContext(ctx)
	defer turnCancel()
	e.turnCancel = turnCancel
	e.mu.Unlock()

	e.indicator.CueStop(context.Background())
	e.indicator.ShowProcessing(context.Background())
	e.publish()

	started := time.Now()
	text, err := e.assistant.Transcribe(turnCtx, rec.Path)
	result.TranscribeLatency = time.Since(started)
	e.removeRecording(rec)
	if err != nil {
		return e.abort(turnCtx, result, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return e.abort(turnCtx, result, ErrEmptyTranscript)
	}

	user, ok := e.appendIfActive(turnCtx, RoleUser, text, "")
	if !ok {
		return e.abort(turnCtx, result, context.Canceled)
	}
	result.User = &user

	return e.respond(turnCtx, text, result)
}

// SendTextTurn appends text as a user message and runs complete, synthesize, and playback.
// Blank text is a no-op.
func (e *Engine) SendTextTurn(ctx context.Context, text string) Result {
	result := Result{StartedAt: time.Now()}

	text = strings.TrimSpace(text)
	if text == "" {
		result.Skipped = true
		return e.finish(result)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		result.Err = ErrClosed
		return e.finish(result)
	}
	if e.pending || !fsm.CanStartTurn(e.state) {
		state := e.state
		e.mu.Unlock()
		result.Err = fmt.Errorf("%w (state %s)", ErrTurnInProgress, state)
		return e.finish(result)
	}
	_ = e.transitionLocked(fsm.EventSubmit)
	user := newMessage(RoleUser, text, "")
	e.messages = append(e.messages, user)
	turnCtx, turnCancel := e.turnContext(ctx)
	e.turnCancel = turnCancel
	e.wg.Add(1)
	e.mu.Unlock()
	defer e.wg.Done()
	defer turnCancel()

	result.User = &user
	e.indicator.ShowProcessing(context.Background())
	e.publish()

	result = e.respond(turnCtx, text, result)
	e.logTurn("text", result)
	return result
}

// respond runs the shared completion tail of a turn. The state must be processing.
func (e *Engine) respond(ctx context.Context, prompt string, result Result) Result {
	started := time.Now()
	reply, err := e.assistant.Complete(ctx, prompt)
	result.CompletionLatency = time.Since(started)
	if err != nil {
		return e.abort(ctx, result, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return e.abort(ctx, result, ErrEmptyReply)
	}

	started = time.Now()
	audioPath, err := e.assistant.SynthesizeSpeech(ctx, reply)
	result.SynthesisLatency = time.Since(started)
	if err != nil {
		return e.abort(ctx, result, err)
	}

	assistant, ok := e.appendIfActive(ctx, RoleAssistant, reply, audioPath)
	if !ok {
		_ = os.Remove(audioPath)
		return e.abort(ctx, result, context.Canceled)
	}
	result.Reply = &assistant

	if e.opts.AutoPlay {
		if err := e.play(ctx, audioPath); err != nil {
			e.logger.Warn("reply playback failed", "error", err.Error())
		}
	}

	e.mu.Lock()
	e.turnCancel = nil
	_ = e.transitionLocked(fsm.EventComplete)
	e.mu.Unlock()

	e.indicator.CueComplete(context.Background())
	e.hideIndicator()
	e.publish()
	return e.finish(result)
}

// abort ends a processing turn as cancelled when ctx is done, otherwise as failed.
func (e *Engine) abort(ctx context.Context, result Result, err error) Result {
	e.mu.Lock()
	e.turnCancel = nil
	if ctx.Err() != nil {
		_ = e.transitionLocked(fsm.EventCancel)
		e.mu.Unlock()

		result.Cancelled = true
		e.indicator.CueCancel(context.Background())
		e.hideIndicator()
		e.publish()
		return e.finish(result)
	}
	e.failLocked(failureReason(err))
	reason := e.reason
	e.mu.Unlock()

	result.Err = err
	e.indicator.ShowError(context.Background(), reason)
	e.publish()
	return e.finish(result)
}

// Acknowledge clears a failure and returns to idle.
func (e *Engine) Acknowledge() error {
	e.mu.Lock()
	err := e.transitionLocked(fsm.EventAcknowledge)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.hideIndicator()
	e.publish()
	return nil
}

// CancelTurn abandons the active capture or pipeline run.
func (e *Engine) CancelTurn() error {
	e.mu.Lock()
	switch {
	case e.state == fsm.StateRecording:
		if e.captureCancel != nil {
			e.captureCancel()
			e.captureCancel = nil
		}
		_ = e.transitionLocked(fsm.EventCancel)
		e.mu.Unlock()

		e.capture.Discard()
		e.indicator.CueCancel(context.Background())
		e.hideIndicator()
		e.publish()
		return nil
	case e.state == fsm.StateProcessing:
		cancel := e.turnCancel
		e.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return nil
	case e.pending && e.captureCancel != nil:
		e.captureCancel()
		e.mu.Unlock()
		return nil
	default:
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("cannot cancel from state %s", state)
	}
}

// PlayMessageAudio replays a message's audio. Failures are kept as the snapshot notice.
func (e *Engine) PlayMessageAudio(ctx context.Context, msg Message) error {
	if !msg.HasAudio() {
		return nil
	}
	return e.play(ctx, msg.AudioPath)
}

// StopPlayback stops the current playback, if any.
func (e *Engine) StopPlayback() {
	e.player.Stop()
}

// Clear empties the log. Rejected while a turn is processing.
func (e *Engine) Clear() error {
	e.mu.Lock()
	if e.state == fsm.StateProcessing {
		e.mu.Unlock()
		return ErrTurnInProgress
	}
	e.messages = nil
	e.mu.Unlock()

	e.publish()
	return nil
}

// Subscribe streams snapshots on every change. A slow reader only sees the latest ones.
func (e *Engine) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	sub := &subscriber{ch: make(chan Snapshot, buffer)}

	e.subMu.Lock()
	defer e.subMu.Unlock()
	if e.subsClosed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := e.nextSub
	e.nextSub++
	e.subscribers[id] = sub
	sub.ch <- e.Snapshot()

	return sub.ch, func() { e.unsubscribe(id) }
}

// Close cancels any turn, stops playback, and waits for background work.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	recording := e.state == fsm.StateRecording || e.pending
	if e.state == fsm.StateRecording {
		_ = e.transitionLocked(fsm.EventCancel)
	}
	e.mu.Unlock()

	e.baseCancel()
	if recording {
		e.capture.Discard()
	}
	e.player.Stop()
	e.wg.Wait()

	e.subMu.Lock()
	for id, sub := range e.subscribers {
		close(sub.ch)
		delete(e.subscribers, id)
	}
	e.subsClosed = true
	e.subMu.Unlock()
}

func (e *Engine) play(ctx context.Context, path string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.playGen++
	gen := e.playGen
	e.wg.Add(1)
	e.mu.Unlock()

	done, err := e.player.Play(ctx, path)
	if err != nil {
		e.mu.Lock()
		if gen == e.playGen {
			e.playing = false
		}
		e.notice = "playback: " + err.Error()
		e.mu.Unlock()
		e.wg.Done()
		e.publish()
		return err
	}

	e.mu.Lock()
	if gen == e.playGen {
		e.playing = true
		e.notice = ""
	}
	e.mu.Unlock()
	e.publish()

	go func() {
		defer e.wg.Done()
		err := <-done

		e.mu.Lock()
		if gen == e.playGen {
			e.playing = false
			if err != nil && !errors.Is(err, audio.ErrPlaybackStopped) {
				e.notice = "playback: " + err.Error()
			}
		}
		e.mu.Unlock()
		e.publish()
	}()
	return nil
}

// appendIfActive appends a message unless the turn was cancelled or left processing.
func (e *Engine) appendIfActive(ctx context.Context, role Role, content string, audioPath string) (Message, bool) {
	e.mu.Lock()
	if ctx.Err() != nil || e.state != fsm.StateProcessing {
		e.mu.Unlock()
		return Message{}, false
	}
	msg := newMessage(role, content, audioPath)
	e.messages = append(e.messages, msg)
	e.mu.Unlock()

	e.publish()
	return msg, true
}

// transitionLocked applies one FSM event. Callers hold e.mu.
func (e *Engine) transitionLocked(event fsm.Event) error {
	next, err := fsm.Transition(e.state, event)
	if err != nil {
		return err
	}
	e.state = next
	if next != fsm.StateFailed {
		e.reason = ""
	}
	return nil
}

func (e *Engine) failLocked(reason string) {
	_ = e.transitionLocked(fsm.EventFail)
	e.reason = reason
}

// turnContext derives a pipeline context ended by Close, CancelTurn, or parent.
func (e *Engine) turnContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(e.baseCtx)
	stop := context.AfterFunc(parent, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (e *Engine) publishLevels(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.opts.LevelInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.publish()
		}
	}
}

// publish delivers the current snapshot, replacing the oldest queued one when a reader lags.
func (e *Engine) publish() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	if len(e.subscribers) == 0 {
		return
	}

	snap := e.Snapshot()
	for _, sub := range e.subscribers {
		select {
		case sub.ch <- snap:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- snap:
			default:
			}
		}
	}
}

func (e *Engine) unsubscribe(id int) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	if sub, ok := e.subscribers[id]; ok {
		delete(e.subscribers, id)
		close(sub.ch)
	}
}

func (e *Engine) removeRecording(rec audio.Recording) {
	if e.opts.KeepRecordings {
		return
	}
	if err := rec.Remove(); err != nil {
		e.logger.Warn("remove recording failed", "path", rec.Path, "error", err.Error())
	}
}

func (e *Engine) hideIndicator() {
	ctx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()
	e.indicator.Hide(ctx)
}

func (e *Engine) finish(result Result) Result {
	result.State = e.Status().State
	result.FinishedAt = time.Now()
	return result
}

func (e *Engine) logTurn(kind string, result Result) {
	fields := []any{
		"kind", kind,
		"state", result.State,
		"cancelled", result.Cancelled,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"audio_device", result.AudioDevice,
		"bytes_captured", result.BytesCaptured,
		"transcribe_latency_ms", result.TranscribeLatency.Milliseconds(),
		"completion_latency_ms", result.CompletionLatency.Milliseconds(),
		"synthesis_latency_ms", result.SynthesisLatency.Milliseconds(),
	}
	if result.Reply != nil {
		fields = append(fields, "reply_length", len(result.Reply.Content))
	}

	if result.Err != nil {
		e.logger.Error("turn failed", append(fields, "error", result.Err.Error())...)
		return
	}
	e.logger.Info("turn complete", fields...)
}

// failureReason renders err as the short reason shown with the failed state.
func failureReason(err error) string {
	var remoteErr *remote.Error
	switch {
	case errors.As(err, &remoteErr):
		if remoteErr.Op == "" {
			return remoteErr.Kind.String()
		}
		return remoteErr.Op + ": " + remoteErr.Kind.String()
	case errors.Is(err, ErrNoRecording):
		return ErrNoRecording.Error()
	case errors.Is(err, audio.ErrPermissionDenied):
		return audio.ErrPermissionDenied.Error()
	default:
		return err.Error()
	}
}
