package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rbright/parley/internal/fsm"
	"github.com/rbright/parley/internal/ipc"
)

// Handle serves IPC commands for the chat owner.
func (e *Engine) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "status":
		return e.respondOK("status")
	case "toggle":
		return e.requestToggle(ctx)
	case "stop":
		return e.requestStop("stop")
	case "cancel":
		if err := e.CancelTurn(); err != nil {
			return e.respondErr(err)
		}
		return e.respondOK("cancel requested")
	case "say":
		return e.requestSay(req.Text)
	case "log":
		resp := e.respondOK("log")
		resp.Messages = MessageViews(e.Messages())
		return resp
	case "play":
		return e.requestPlay(ctx, req.Index)
	case "clear":
		if err := e.Clear(); err != nil {
			return e.respondErr(err)
		}
		return e.respondOK("conversation cleared")
	case "ack":
		if err := e.Acknowledge(); err != nil {
			return e.respondErr(err)
		}
		return e.respondOK("acknowledged")
	default:
		return e.respondErr(fmt.Errorf("unknown command: %s", req.Command))
	}
}

// MessageViews converts log entries to their 1-based wire form.
func MessageViews(messages []Message) []ipc.MessageView {
	views := make([]ipc.MessageView, 0, len(messages))
	for i, msg := range messages {
		views = append(views, ipc.MessageView{
			Index:     i + 1,
			Role:      string(msg.Role),
			Content:   msg.Content,
			AudioPath: msg.AudioPath,
			CreatedAt: msg.CreatedAt,
		})
	}
	return views
}

// requestToggle starts a voice turn synchronously or queues a stop.
func (e *Engine) requestToggle(ctx context.Context) ipc.Response {
	state := e.Status().State
	switch {
	case fsm.CanStartTurn(state):
		if err := e.StartVoiceTurn(ctx); err != nil {
			return e.respondErr(err)
		}
		return e.respondOK("recording started")
	case state == fsm.StateRecording:
		return e.requestStop("toggle")
	default:
		return e.respondErr(fmt.Errorf("already %s", state))
	}
}

// requestStop runs the voice pipeline in the background when recording.
func (e *Engine) requestStop(source string) ipc.Response {
	e.mu.RLock()
	state := e.state
	pending := e.pending
	e.mu.RUnlock()

	if state == fsm.StateProcessing {
		return e.respondErr(errors.New("already processing"))
	}
	if state != fsm.StateRecording {
		return e.respondErr(fmt.Errorf("cannot %s from state %s", source, state))
	}
	if pending {
		return e.respondOK("stop already requested")
	}

	go e.StopVoiceTurn(e.baseCtx)
	return e.respondOK("stop requested")
}

// requestSay runs a text turn in the background.
func (e *Engine) requestSay(text string) ipc.Response {
	text = strings.TrimSpace(text)
	if text == "" {
		return e.respondErr(errors.New("text is required"))
	}

	e.mu.RLock()
	state := e.state
	busy := e.pending || !fsm.CanStartTurn(state)
	e.mu.RUnlock()
	if busy {
		return e.respondErr(fmt.Errorf("%w (state %s)", ErrTurnInProgress, state))
	}

	go e.SendTextTurn(e.baseCtx, text)
	return e.respondOK("text submitted")
}

// requestPlay replays the message at a 1-based index.
func (e *Engine) requestPlay(ctx context.Context, index int) ipc.Response {
	messages := e.Messages()
	if index < 1 || index > len(messages) {
		return e.respondErr(fmt.Errorf("no message %d (log has %d)", index, len(messages)))
	}
	msg := messages[index-1]
	if !msg.HasAudio() {
		return e.respondErr(fmt.Errorf("message %d has no audio", index))
	}
	if err := e.PlayMessageAudio(ctx, msg); err != nil {
		return e.respondErr(err)
	}
	return e.respondOK(fmt.Sprintf("playing message %d", index))
}

func (e *Engine) respondOK(message string) ipc.Response {
	status := e.Status()
	return ipc.Response{OK: true, State: string(status.State), Reason: status.Reason, Message: message}
}

func (e *Engine) respondErr(err error) ipc.Response {
	status := e.Status()
	return ipc.Response{OK: false, State: string(status.State), Reason: status.Reason, Error: err.Error()}
}
