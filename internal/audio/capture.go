package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	DefaultSampleRate = 16000
	fragmentBytes     = 640 // 20ms @ 16kHz mono s16
)

// Capture accumulates s16 mono PCM from one Pulse source and tracks the level of the latest buffer.
type Capture struct {
	device Device

	client *pulse.Client
	stream *pulse.RecordStream

	stopCh    chan struct{}
	stopWatch func() bool

	mu      sync.Mutex
	rawPCM  []byte
	levelDB float64
	stopped bool

	inflight sync.WaitGroup
	bytes    atomic.Int64
}

// StartCapture opens a record stream on selected and begins buffering PCM.
// The stream stops when ctx is done or Stop is called.
func StartCapture(ctx context.Context, selected Device, sampleRate int) (*Capture, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	client, err := newPulseClient(inputIconName)
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	capture := newCapture(selected)
	capture.client = client

	writer := pulse.NewWriter(writerFunc(capture.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(sampleRate),
		pulse.RecordBufferFragmentSize(fragmentBytes),
		pulse.RecordMediaName("parley voice turn"),
	)
	if err != nil {
		_ = capture.Stop()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	capture.stream = stream
	stream.Start()
	capture.stopWatch = context.AfterFunc(ctx, func() { _ = capture.Stop() })

	return capture, nil
}

func newCapture(device Device) *Capture {
	return &Capture{
		device:  device,
		stopCh:  make(chan struct{}),
		levelDB: SilenceLevelDB,
	}
}

// Device returns the source this capture records from.
func (c *Capture) Device() Device {
	return c.device
}

// BytesCaptured reports total bytes accepted from Pulse.
func (c *Capture) BytesCaptured() int64 {
	return c.bytes.Load()
}

// LevelDB returns the RMS level of the most recent buffer.
func (c *Capture) LevelDB() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.levelDB
}

// RawPCM returns a copy of everything captured so far.
func (c *Capture) RawPCM() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.rawPCM))
	copy(out, c.rawPCM)
	return out
}

// Stop halts the stream and releases the Pulse connection. Safe to call repeatedly.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.stopCh)
	c.mu.Unlock()

	if c.stopWatch != nil {
		c.stopWatch()
	}
	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	c.inflight.Wait()
	return nil
}

// onPCM receives raw Pulse frames.
func (c *Capture) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-c.stopCh:
		return 0, io.EOF
	default:
	}

	level := pcmLevelDB(buffer)

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as stopped so Stop's Wait cannot race it.
	c.inflight.Add(1)
	defer c.inflight.Done()

	c.rawPCM = append(c.rawPCM, buffer...)
	c.levelDB = level
	c.mu.Unlock()

	c.bytes.Add(int64(len(buffer)))
	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
