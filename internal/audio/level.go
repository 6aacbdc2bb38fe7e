package audio

import (
	"encoding/binary"
	"math"
	"sync"
)

const (
	// MinLevelDB and MaxLevelDB bound the meter range mapped onto [0,1].
	MinLevelDB = -60.0
	MaxLevelDB = 0.0

	// SilenceLevelDB is reported for buffers with no signal.
	SilenceLevelDB = -160.0

	DefaultTraceCapacity = 50
)

// NormalizeLevel maps a dBFS reading onto [0,1], clamping out-of-range input.
func NormalizeLevel(db float64) float64 {
	if math.IsNaN(db) {
		return 0
	}
	clamped := math.Max(MinLevelDB, math.Min(MaxLevelDB, db))
	return (clamped - MinLevelDB) / (MaxLevelDB - MinLevelDB)
}

// pcmLevelDB returns the RMS level of little-endian s16 PCM in dBFS.
func pcmLevelDB(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return SilenceLevelDB
	}

	var sum float64
	for i := 0; i < samples; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768
		sum += v * v
	}

	rms := math.Sqrt(sum / float64(samples))
	if rms <= 0 {
		return SilenceLevelDB
	}
	return math.Max(SilenceLevelDB, 20*math.Log10(rms))
}

// LevelTrace is a fixed-capacity ring of normalized levels; the oldest sample is evicted first.
type LevelTrace struct {
	mu      sync.Mutex
	samples []float64
	start   int
	size    int
}

// NewLevelTrace creates a trace holding at most capacity samples.
func NewLevelTrace(capacity int) *LevelTrace {
	if capacity <= 0 {
		capacity = DefaultTraceCapacity
	}
	return &LevelTrace{samples: make([]float64, capacity)}
}

// Push appends one sample, evicting the oldest when full.
func (t *LevelTrace) Push(level float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	capacity := len(t.samples)
	if t.size < capacity {
		t.samples[(t.start+t.size)%capacity] = level
		t.size++
		return
	}
	t.samples[t.start] = level
	t.start = (t.start + 1) % capacity
}

// Snapshot returns the samples oldest-first as an independent copy.
func (t *LevelTrace) Snapshot() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]float64, t.size)
	for i := 0; i < t.size; i++ {
		out[i] = t.samples[(t.start+i)%len(t.samples)]
	}
	return out
}

// Len reports the current sample count.
func (t *LevelTrace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

// Capacity reports the fixed sample limit.
func (t *LevelTrace) Capacity() int {
	return len(t.samples)
}

// Reset drops every sample.
func (t *LevelTrace) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.start = 0
	t.size = 0
}
