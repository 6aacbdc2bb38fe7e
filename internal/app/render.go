package app

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rbright/parley/internal/audio"
	"github.com/rbright/parley/internal/fsm"
	"github.com/rbright/parley/internal/ipc"
)

// formatState renders a state with its failure reason.
func formatState(state string, reason string) string {
	if state == "" {
		state = string(fsm.StateIdle)
	}
	if state == string(fsm.StateFailed) && reason != "" {
		return state + ": " + reason
	}
	return state
}

const meterWidth = 24

var meterGlyphs = []rune("▁▂▃▄▅▆▇█")

// levelMeter draws the newest normalized levels as a bar sparkline.
func levelMeter(levels []float64) string {
	levels = levels[max(0, len(levels)-meterWidth):]
	var b strings.Builder
	for _, level := range levels {
		level = min(max(level, 0), 1)
		b.WriteRune(meterGlyphs[int(math.Round(level*float64(len(meterGlyphs)-1)))])
	}
	return b.String()
}

// formatMessage renders one transcript entry as `[N] role, age: content`.
func formatMessage(view ipc.MessageView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s", view.Index, view.Role)
	if !view.CreatedAt.IsZero() {
		fmt.Fprintf(&b, ", %s", humanize.Time(view.CreatedAt))
	}
	fmt.Fprintf(&b, ": %s", view.Content)
	if view.AudioPath != "" {
		b.WriteString(" " + formatAudio(view.Index, view.AudioPath))
	}
	return b.String()
}

// formatAudio describes replayable reply audio, noting when the file is gone.
func formatAudio(index int, path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "(audio unavailable)"
	}
	return fmt.Sprintf("(audio %s, /play %d)", humanize.Bytes(uint64(info.Size())), index)
}

func formatDevice(device audio.Device) string {
	defaultMark := " "
	if device.Default {
		defaultMark = "*"
	}
	return fmt.Sprintf(
		"%s id=%s | description=%q | state=%s | available=%s | muted=%s",
		defaultMark,
		device.ID,
		device.Description,
		device.State,
		yesNo(device.Available),
		yesNo(device.Muted),
	)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
