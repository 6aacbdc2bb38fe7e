package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rbright/parley/internal/audio"
	"github.com/rbright/parley/internal/ipc"
	"github.com/stretchr/testify/require"
)

func TestFormatState(t *testing.T) {
	require.Equal(t, "idle", formatState("", ""))
	require.Equal(t, "recording", formatState("recording", ""))
	require.Equal(t, "failed", formatState("failed", ""))
	require.Equal(t, "failed: transcribe: authentication failed", formatState("failed", "transcribe: authentication failed"))
}

func TestFormatMessage(t *testing.T) {
	audioPath := filepath.Join(t.TempDir(), "reply.mp3")
	require.NoError(t, os.WriteFile(audioPath, make([]byte, 1500), 0o600))

	tests := []struct {
		name string
		view ipc.MessageView
		want string
	}{
		{
			name: "plain",
			view: ipc.MessageView{Index: 1, Role: "user", Content: "hello"},
			want: "[1] user: hello",
		},
		{
			name: "with age",
			view: ipc.MessageView{Index: 3, Role: "user", Content: "again", CreatedAt: time.Now().Add(-2 * time.Minute)},
			want: "[3] user, 2 minutes ago: again",
		},
		{
			name: "with audio",
			view: ipc.MessageView{Index: 2, Role: "assistant", Content: "hi", AudioPath: audioPath},
			want: "[2] assistant: hi (audio 1.5 kB, /play 2)",
		},
		{
			name: "audio removed",
			view: ipc.MessageView{Index: 4, Role: "assistant", Content: "bye", AudioPath: filepath.Join(t.TempDir(), "gone.mp3")},
			want: "[4] assistant: bye (audio unavailable)",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, formatMessage(tc.view))
		})
	}
}

func TestLevelMeter(t *testing.T) {
	require.Empty(t, levelMeter(nil))
	require.Equal(t, "▁▅█", levelMeter([]float64{0, 0.5, 1}))
	require.Equal(t, "▁█", levelMeter([]float64{-0.3, 1.7}))

	long := make([]float64, meterWidth+10)
	long[len(long)-1] = 1
	meter := []rune(levelMeter(long))
	require.Len(t, meter, meterWidth)
	require.Equal(t, '█', meter[meterWidth-1])
}

func TestFormatDevice(t *testing.T) {
	line := formatDevice(audio.Device{
		ID:          "alsa_input.usb",
		Description: "USB Mic",
		State:       "running",
		Available:   true,
		Default:     true,
	})
	require.Equal(t, `* id=alsa_input.usb | description="USB Mic" | state=running | available=yes | muted=no`, line)

	line = formatDevice(audio.Device{ID: "mon", Muted: true})
	require.Equal(t, `  id=mon | description="" | state= | available=no | muted=yes`, line)
}
