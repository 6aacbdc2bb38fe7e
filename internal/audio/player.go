package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
	"github.com/jfreymuth/pulse"
)

var (
	ErrPlaybackFailed  = errors.New("playback failed")
	ErrPlaybackStopped = errors.New("playback stopped")
)

const (
	streamFrames  = 1024
	stopWaitDelay = 500 * time.Millisecond
)

// playback is one in-flight playback; done yields exactly one value.
type playback struct {
	halted atomic.Bool
	cancel func()
	done   chan error
}

func (p *playback) halt() {
	if p.halted.Swap(true) {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
}

// Player plays one audio file at a time, either through Pulse or an external command.
type Player struct {
	logger  *slog.Logger
	command []string
	start   func(context.Context, string) (*playback, error)

	mu      sync.Mutex
	current *playback
}

// NewPlayer builds a player. A non-empty command (argv) is run with the file path appended
// instead of decoding in-process.
func NewPlayer(command []string, logger *slog.Logger) *Player {
	p := &Player{logger: logger, command: append([]string(nil), command...)}
	if len(p.command) > 0 {
		p.start = p.startCommand
	} else {
		p.start = startPulsePlayback
	}
	return p
}

// Play starts playing path and returns once playback has begun. The returned channel
// receives nil on natural completion, ErrPlaybackStopped when stopped or superseded,
// or the stream error, and is then closed.
func (p *Player) Play(ctx context.Context, path string) (<-chan error, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlaybackFailed, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		p.current.halt()
		p.current = nil
	}

	// Playback outlives the request that started it; Stop ends it.
	pb, err := p.start(context.WithoutCancel(ctx), path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlaybackFailed, err)
	}
	p.current = pb

	out := make(chan error, 1)
	go func() {
		err := <-pb.done
		if pb.halted.Load() {
			err = ErrPlaybackStopped
		}

		p.mu.Lock()
		if p.current == pb {
			p.current = nil
		}
		p.mu.Unlock()

		if err != nil && !errors.Is(err, ErrPlaybackStopped) && p.logger != nil {
			p.logger.Warn("playback ended with error", "path", path, "error", err.Error())
		}
		out <- err
		close(out)
	}()

	return out, nil
}

// Stop ends the active playback, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return
	}
	p.current.halt()
	p.current = nil
}

// Playing reports whether a playback is in flight.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}

func (p *Player) startCommand(ctx context.Context, path string) (*playback, error) {
	runCtx, cancel := context.WithCancel(ctx)
	args := append(append([]string(nil), p.command[1:]...), path)
	cmd := exec.CommandContext(runCtx, p.command[0], args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// Children of a killed player may still hold stderr open.
	cmd.WaitDelay = stopWaitDelay
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", p.command[0], err)
	}

	pb := &playback{cancel: cancel, done: make(chan error, 1)}
	go func() {
		defer cancel()
		err := cmd.Wait()
		if err != nil && stderr.Len() > 0 {
			err = fmt.Errorf("%w (%s)", err, bytes.TrimSpace(stderr.Bytes()))
		}
		pb.done <- err
	}()
	return pb, nil
}

func startPulsePlayback(_ context.Context, path string) (*playback, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	streamer, format, err := decodeAudio(file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	client, err := newPulseClient(outputIconName)
	if err != nil {
		_ = streamer.Close()
		return nil, err
	}

	pb := &playback{done: make(chan error, 1)}
	frames := make([][2]float64, streamFrames)
	reader := pulse.Float32Reader(func(out []float32) (int, error) {
		if pb.halted.Load() {
			return 0, pulse.EndOfData
		}
		want := min(len(out)/2, len(frames))
		n, ok := streamer.Stream(frames[:want])
		for i := 0; i < n; i++ {
			out[2*i] = float32(frames[i][0])
			out[2*i+1] = float32(frames[i][1])
		}
		if !ok {
			return 2 * n, pulse.EndOfData
		}
		return 2 * n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackStereo,
		pulse.PlaybackSampleRate(int(format.SampleRate)),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackMediaName("parley reply"),
	)
	if err != nil {
		client.Close()
		_ = streamer.Close()
		return nil, fmt.Errorf("create pulse playback stream: %w", err)
	}

	stream.Start()
	go func() {
		stream.Drain()
		err := stream.Error()
		if err == nil {
			err = streamer.Err()
		}
		stream.Close()
		client.Close()
		_ = streamer.Close()
		pb.done <- err
	}()
	return pb, nil
}

// decodeAudio sniffs the container and returns a stereo beep stream.
func decodeAudio(file *os.File) (beep.StreamSeekCloser, beep.Format, error) {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(file, magic); err != nil {
		return nil, beep.Format{}, fmt.Errorf("read audio header: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, beep.Format{}, fmt.Errorf("rewind audio: %w", err)
	}

	if bytes.Equal(magic, []byte("RIFF")) {
		streamer, format, err := wav.Decode(file)
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("decode wav: %w", err)
		}
		return streamer, format, nil
	}

	streamer, format, err := mp3.Decode(file)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("decode mp3: %w", err)
	}
	return streamer, format, nil
}
