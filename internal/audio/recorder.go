package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPermissionDenied = errors.New("microphone access denied")
	ErrSetupFailed      = errors.New("audio capture setup failed")
	ErrCaptureActive    = errors.New("a capture is already active")
	ErrNoActiveCapture  = errors.New("no active capture")
	ErrEmptyRecording   = errors.New("recording captured no audio")
)

// RecorderConfig controls device selection, sampling cadence, and file placement.
type RecorderConfig struct {
	Input         string
	Fallback      string
	ScratchDir    string
	SampleRate    int
	LevelInterval time.Duration
	LevelCapacity int
}

// Recording is the finished output of one capture session.
type Recording struct {
	Path     string
	Device   Device
	Bytes    int64
	Duration time.Duration
	Levels   []float64
}

// Remove deletes the recording file. A missing file is not an error.
func (r Recording) Remove() error {
	if r.Path == "" {
		return nil
	}
	if err := os.Remove(r.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// pcmSource is the capture surface the recorder drives.
type pcmSource interface {
	Stop() error
	RawPCM() []byte
	LevelDB() float64
	Device() Device
}

type activeCapture struct {
	source      pcmSource
	stopSampler context.CancelFunc
	samplerDone chan struct{}
}

// Recorder runs at most one microphone capture at a time and publishes a live level trace.
type Recorder struct {
	cfg    RecorderConfig
	logger *slog.Logger
	trace  *LevelTrace

	selectDevice func(context.Context) (Selection, error)
	startSource  func(context.Context, Device) (pcmSource, error)

	mu      sync.Mutex
	granted bool
	active  *activeCapture
}

// NewRecorder builds a Pulse-backed recorder.
func NewRecorder(cfg RecorderConfig, logger *slog.Logger) *Recorder {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.LevelInterval <= 0 {
		cfg.LevelInterval = 100 * time.Millisecond
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}

	r := &Recorder{
		cfg:    cfg,
		logger: logger,
		trace:  NewLevelTrace(cfg.LevelCapacity),
	}
	r.selectDevice = func(ctx context.Context) (Selection, error) {
		return SelectDevice(ctx, r.cfg.Input, r.cfg.Fallback)
	}
	r.startSource = func(ctx context.Context, device Device) (pcmSource, error) {
		return StartCapture(ctx, device, r.cfg.SampleRate)
	}
	return r
}

// RequestPermission reports whether a usable input source can be recorded from.
// A grant is remembered; a denial is re-evaluated on the next call.
func (r *Recorder) RequestPermission(ctx context.Context) bool {
	r.mu.Lock()
	granted := r.granted
	r.mu.Unlock()
	if granted {
		return true
	}

	selection, err := r.selectDevice(ctx)
	if err != nil {
		r.log().Warn("microphone unavailable", "error", err.Error())
		return false
	}
	if !selection.Device.Usable() {
		return false
	}

	r.mu.Lock()
	r.granted = true
	r.mu.Unlock()
	return true
}

// BeginCapture starts recording and level sampling.
func (r *Recorder) BeginCapture(ctx context.Context) error {
	r.mu.Lock()
	busy := r.active != nil
	r.mu.Unlock()
	if busy {
		return ErrCaptureActive
	}

	if !r.RequestPermission(ctx) {
		return ErrPermissionDenied
	}

	selection, err := r.selectDevice(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSetupFailed, err)
	}
	if selection.Warning != "" {
		r.log().Warn("audio device fallback", "warning", selection.Warning)
	}

	source, err := r.startSource(ctx, selection.Device)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSetupFailed, err)
	}

	samplerCtx, stopSampler := context.WithCancel(ctx)
	active := &activeCapture{
		source:      source,
		stopSampler: stopSampler,
		samplerDone: make(chan struct{}),
	}

	r.mu.Lock()
	if r.active != nil {
		r.mu.Unlock()
		stopSampler()
		_ = source.Stop()
		return ErrCaptureActive
	}
	r.active = active
	r.mu.Unlock()

	r.trace.Reset()
	go r.sample(samplerCtx, active)

	r.log().Info("capture started", "device", selection.Device.ID)
	return nil
}

// EndCapture stops the active capture and writes it to a WAV file in the scratch directory.
func (r *Recorder) EndCapture(_ context.Context) (Recording, error) {
	active := r.takeActive()
	if active == nil {
		return Recording{}, ErrNoActiveCapture
	}
	r.halt(active)

	pcm := active.source.RawPCM()
	rec := Recording{
		Device:   active.source.Device(),
		Bytes:    int64(len(pcm)),
		Duration: pcmDuration(len(pcm), r.cfg.SampleRate),
		Levels:   r.trace.Snapshot(),
	}
	if len(pcm) == 0 {
		return rec, ErrEmptyRecording
	}

	path := filepath.Join(r.cfg.ScratchDir, uuid.NewString()+".wav")
	if err := writeRecordingFile(path, pcm, r.cfg.SampleRate); err != nil {
		return rec, err
	}
	rec.Path = path

	r.log().Info("capture finished",
		"device", rec.Device.ID,
		"bytes", rec.Bytes,
		"duration_ms", rec.Duration.Milliseconds(),
	)
	return rec, nil
}

// Discard stops an active capture without producing a file.
func (r *Recorder) Discard() {
	active := r.takeActive()
	if active == nil {
		return
	}
	r.halt(active)
	r.log().Info("capture discarded")
}

// Levels returns a snapshot of the live amplitude trace.
func (r *Recorder) Levels() []float64 {
	return r.trace.Snapshot()
}

// Active reports whether a capture is running.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

func (r *Recorder) takeActive() *activeCapture {
	r.mu.Lock()
	defer r.mu.Unlock()
	active := r.active
	r.active = nil
	return active
}

func (r *Recorder) halt(active *activeCapture) {
	active.stopSampler()
	<-active.samplerDone
	if err := active.source.Stop(); err != nil {
		r.log().Warn("stop capture failed", "error", err.Error())
	}
}

// sample pushes one normalized level per interval until ctx is done.
func (r *Recorder) sample(ctx context.Context, active *activeCapture) {
	defer close(active.samplerDone)

	ticker := time.NewTicker(r.cfg.LevelInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.trace.Push(NormalizeLevel(active.source.LevelDB()))
		}
	}
}

func (r *Recorder) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

func writeRecordingFile(path string, pcm []byte, sampleRate int) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create recording: %w", err)
	}
	if err := writePCM16WAV(file, pcm, sampleRate, 1); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write recording: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close recording: %w", err)
	}
	return nil
}
