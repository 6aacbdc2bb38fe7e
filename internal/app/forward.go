package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rbright/parley/internal/cli"
	"github.com/rbright/parley/internal/ipc"
)

const forwardTimeout = 2 * time.Second

// request maps a parsed CLI command onto its IPC form.
func request(parsed cli.Parsed) ipc.Request {
	return ipc.Request{Command: string(parsed.Command), Text: parsed.Text, Index: parsed.Index}
}

// commandStatus prints the owner's status, or idle when no owner is running.
func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, err := ipc.Forward(ctx, socketPath, ipc.Request{Command: "status"}, forwardTimeout)
	switch {
	case errors.Is(err, ipc.ErrNoOwner):
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	case err != nil:
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	fmt.Fprintln(r.Stdout, formatState(resp.State, resp.Reason))
	return 0
}

// commandLog prints the owner's transcript.
func (r Runner) commandLog(ctx context.Context) int {
	resp, code := r.forward(ctx, ipc.Request{Command: "log"})
	if code != 0 {
		return code
	}
	if len(resp.Messages) == 0 {
		fmt.Fprintln(r.Stdout, "(no messages)")
		return 0
	}
	for _, view := range resp.Messages {
		fmt.Fprintln(r.Stdout, formatMessage(view))
	}
	return 0
}

// forwardOrFail sends req and prints the owner's acknowledgement.
func (r Runner) forwardOrFail(ctx context.Context, req ipc.Request) int {
	resp, code := r.forward(ctx, req)
	if code != 0 {
		return code
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func (r Runner) forward(ctx context.Context, req ipc.Request) (ipc.Response, int) {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return ipc.Response{}, 1
	}

	resp, err := ipc.Forward(ctx, socketPath, req, forwardTimeout)
	if errors.Is(err, ipc.ErrNoOwner) {
		fmt.Fprintf(r.Stderr, "error: %v (start one with `%s chat`)\n", err, binaryName)
		return resp, 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		if resp.Reason != "" {
			fmt.Fprintf(r.Stderr, "state: %s\n", formatState(resp.State, resp.Reason))
		}
		return resp, 1
	}
	return resp, 0
}
