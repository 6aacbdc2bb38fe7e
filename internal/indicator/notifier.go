// Package indicator surfaces conversation state as desktop notifications and audio cues.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/parley/internal/config"
)

const (
	summaryRecording  = "Listening…"
	summaryProcessing = "Thinking…"
	summaryError      = "Voice chat error"

	busyTimeoutMS       = 300000
	defaultErrorTimeout = 1200
	dispatchTimeout     = 400 * time.Millisecond
)

// Notifier implements the engine indicator hooks for the desktop session.
type Notifier struct {
	cfg    config.IndicatorConfig
	logger *slog.Logger

	mu             sync.Mutex
	notificationID uint32
	soundMu        sync.Mutex
	cues           sync.WaitGroup
}

// NewNotifier creates a notifier from config.
func NewNotifier(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	return &Notifier{cfg: cfg, logger: logger}
}

// ShowRecording signals capture start and emits the start cue.
func (n *Notifier) ShowRecording(ctx context.Context) {
	n.playCue(cueStart)
	n.show(ctx, notification{summary: summaryRecording, icon: "audio-input-microphone", timeoutMS: busyTimeoutMS})
}

// ShowProcessing signals that the turn is waiting on the remote API.
func (n *Notifier) ShowProcessing(ctx context.Context) {
	n.show(ctx, notification{summary: summaryProcessing, icon: "network-transmit-receive", timeoutMS: busyTimeoutMS})
}

// ShowError displays the failure reason.
func (n *Notifier) ShowError(ctx context.Context, reason string) {
	timeout := n.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = defaultErrorTimeout
	}
	n.show(ctx, notification{
		summary:   summaryError,
		body:      strings.TrimSpace(reason),
		icon:      "dialog-error",
		urgency:   urgencyCritical,
		timeoutMS: timeout,
	})
}

// CueStop emits the stop cue.
func (n *Notifier) CueStop(context.Context) {
	n.playCue(cueStop)
}

// CueComplete emits the reply-ready cue.
func (n *Notifier) CueComplete(context.Context) {
	n.playCue(cueComplete)
}

// CueCancel emits the cancel cue.
func (n *Notifier) CueCancel(context.Context) {
	n.playCue(cueCancel)
}

// Hide dismisses the active notification.
func (n *Notifier) Hide(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}

	n.mu.Lock()
	id := n.notificationID
	n.notificationID = 0
	n.mu.Unlock()
	if id == 0 {
		return
	}

	n.run(ctx, func(ctx context.Context) error {
		return desktopDismiss(ctx, id)
	})
}

// Wait blocks until queued cues have finished playing.
func (n *Notifier) Wait() {
	n.cues.Wait()
}

// show sends or replaces the desktop notification.
func (n *Notifier) show(ctx context.Context, note notification) {
	if !n.cfg.Enable {
		return
	}

	note.appName = strings.TrimSpace(n.cfg.DesktopAppName)
	if note.appName == "" {
		note.appName = "parley"
	}

	n.run(ctx, func(ctx context.Context) error {
		n.mu.Lock()
		note.replaceID = n.notificationID
		n.mu.Unlock()

		id, err := desktopNotify(ctx, note)
		if err != nil {
			return err
		}

		n.mu.Lock()
		n.notificationID = id
		n.mu.Unlock()
		return nil
	})
}

// run executes a notification call with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	n.cues.Add(1)
	go func() {
		defer n.cues.Done()
		n.soundMu.Lock()
		defer n.soundMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
		defer cancel()
		if err := emitCue(ctx, kind, n.cfg); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

// log emits debug-only indicator failures to the runtime logger.
func (n *Notifier) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
