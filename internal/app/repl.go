package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rbright/parley/internal/conversation"
	"github.com/rbright/parley/internal/fsm"
	"github.com/rbright/parley/internal/ipc"
)

const replBanner = `parley chat: type a message and press enter, or /rec to talk. /help lists commands.
`

const replHelp = `/rec       start recording, or stop and send
/stop      stop recording and send
/cancel    cancel the turn in progress
/play N    replay the audio of message N
/log       print the conversation
/clear     clear the conversation
/status    print the current state
/ack       dismiss a failure
/quit      leave the chat
`

// chatEngine is the engine surface the prompt drives.
type chatEngine interface {
	ipc.Handler
	Subscribe(buffer int) (<-chan conversation.Snapshot, func())
}

// repl reads prompt lines, routes them through the engine's command handler,
// and renders engine snapshots as they change.
type repl struct {
	engine chatEngine
	in     io.Reader
	out    *lockedWriter
}

func newREPL(engine chatEngine, in io.Reader, out io.Writer) *repl {
	return &repl{engine: engine, in: in, out: &lockedWriter{w: out}}
}

// Run returns nil on /quit, end of input, or ctx cancellation.
func (r *repl) Run(ctx context.Context) error {
	snapshots, unsubscribe := r.engine.Subscribe(16)
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		r.render(snapshots)
	}()
	defer func() {
		unsubscribe()
		<-rendered
	}()

	done := make(chan struct{})
	defer close(done)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			if r.handleLine(ctx, line) {
				return nil
			}
		}
	}
}

// handleLine executes one prompt line and reports whether the user asked to quit.
func (r *repl) handleLine(ctx context.Context, line string) bool {
	req, action, err := parseLine(line)
	switch {
	case err != nil:
		r.out.printf("error: %v\n", err)
		return false
	case action == lineQuit:
		return true
	case action == lineHelp:
		r.out.printf("%s", replHelp)
		return false
	case action == lineSkip:
		return false
	}

	resp := r.engine.Handle(ctx, req)
	if !resp.OK {
		r.out.printf("error: %s\n", resp.Error)
		return false
	}

	switch req.Command {
	case "log":
		if len(resp.Messages) == 0 {
			r.out.printf("(no messages)\n")
		}
		for _, view := range resp.Messages {
			r.out.printf("%s\n", formatMessage(view))
		}
	case "status":
		r.out.printf("%s\n", formatState(resp.State, resp.Reason))
	case "say", "toggle", "stop", "clear":
		// rendered from snapshots
	default:
		if resp.Message != "" {
			r.out.printf("%s\n", resp.Message)
		}
	}
	return false
}

// renderState is what has already been shown for the snapshot stream.
type renderState struct {
	printed int
	lastID  uuid.UUID
	status  conversation.Status
	notice  string
	meter   string
}

func (r *repl) render(snapshots <-chan conversation.Snapshot) {
	shown := renderState{status: conversation.Status{State: fsm.StateIdle}}
	for snap := range snapshots {
		shown = r.renderSnapshot(shown, snap)
	}
}

func (r *repl) renderSnapshot(shown renderState, snap conversation.Snapshot) renderState {
	// The log was replaced if the last printed message is no longer where it was.
	if shown.printed > 0 &&
		(len(snap.Messages) < shown.printed || snap.Messages[shown.printed-1].ID != shown.lastID) {
		r.endMeter(&shown)
		r.out.printf("(conversation cleared)\n")
		shown.printed = 0
		shown.lastID = uuid.Nil
	}
	if len(snap.Messages) > shown.printed {
		r.endMeter(&shown)
		views := conversation.MessageViews(snap.Messages)
		for _, view := range views[shown.printed:] {
			r.out.printf("%s\n", formatMessage(view))
		}
		shown.printed = len(views)
		shown.lastID = snap.Messages[len(snap.Messages)-1].ID
	}
	if snap.Status != shown.status {
		r.endMeter(&shown)
		r.out.printf("· %s\n", snap.Status)
		shown.status = snap.Status
	}
	if snap.Notice != "" && snap.Notice != shown.notice {
		r.endMeter(&shown)
		r.out.printf("! %s\n", snap.Notice)
	}
	shown.notice = snap.Notice

	if snap.Status.State == fsm.StateRecording && len(snap.Levels) > 0 {
		if meter := levelMeter(snap.Levels); meter != shown.meter {
			r.out.printf("\r  %s", meter)
			shown.meter = meter
		}
	}
	return shown
}

// endMeter finishes the in-place level meter line before other output.
func (r *repl) endMeter(shown *renderState) {
	if shown.meter == "" {
		return
	}
	r.out.printf("\n")
	shown.meter = ""
}

type lineAction int

const (
	lineRequest lineAction = iota
	lineSkip
	lineHelp
	lineQuit
)

// parseLine maps prompt input onto an engine command. Plain text is a text turn.
func parseLine(line string) (ipc.Request, lineAction, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return ipc.Request{}, lineSkip, nil
	}
	if !strings.HasPrefix(line, "/") {
		return ipc.Request{Command: "say", Text: line}, lineRequest, nil
	}

	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]
	switch name {
	case "/quit", "/exit":
		return ipc.Request{}, lineQuit, nil
	case "/help":
		return ipc.Request{}, lineHelp, nil
	case "/rec":
		return ipc.Request{Command: "toggle"}, lineRequest, nil
	case "/stop", "/cancel", "/clear", "/log", "/status", "/ack":
		if len(args) > 0 {
			return ipc.Request{}, lineSkip, fmt.Errorf("%s takes no arguments", name)
		}
		return ipc.Request{Command: strings.TrimPrefix(name, "/")}, lineRequest, nil
	case "/play":
		if len(args) != 1 {
			return ipc.Request{}, lineSkip, errors.New("usage: /play N")
		}
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return ipc.Request{}, lineSkip, fmt.Errorf("invalid message number %q", args[0])
		}
		return ipc.Request{Command: "play", Index: index}, lineRequest, nil
	default:
		return ipc.Request{}, lineSkip, fmt.Errorf("unknown command %s (try /help)", name)
	}
}

// lockedWriter serializes prompt output with snapshot rendering.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format, args...)
}
