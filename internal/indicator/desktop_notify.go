package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

type urgency byte

const (
	urgencyNormal   urgency = 1
	urgencyCritical urgency = 2
)

// notification is one freedesktop Notify call.
type notification struct {
	appName   string
	replaceID uint32
	icon      string
	summary   string
	body      string
	urgency   urgency
	timeoutMS int
}

// args renders the busctl argument list for org.freedesktop.Notifications.Notify.
func (n notification) args() []string {
	level := n.urgency
	if level == 0 {
		level = urgencyNormal
	}
	return []string{
		"--user",
		"call",
		"org.freedesktop.Notifications",
		"/org/freedesktop/Notifications",
		"org.freedesktop.Notifications",
		"Notify",
		"susssasa{sv}i",
		n.appName,
		strconv.FormatUint(uint64(n.replaceID), 10),
		n.icon,
		n.summary,
		n.body,
		"0", // no actions
		"1", "urgency", "y", strconv.Itoa(int(level)),
		strconv.Itoa(n.timeoutMS),
	}
}

// desktopNotify sends a notification over DBus via busctl and returns the server-assigned ID.
func desktopNotify(ctx context.Context, n notification) (uint32, error) {
	out, err := runBusctl(ctx, n.args()...)
	if err != nil {
		return 0, fmt.Errorf("desktop notify failed: %w", err)
	}

	fields := strings.Fields(out)
	if len(fields) < 2 || fields[0] != "u" {
		return 0, fmt.Errorf("desktop notify invalid response: %q", out)
	}

	value, parseErr := strconv.ParseUint(fields[1], 10, 32)
	if parseErr != nil {
		return 0, fmt.Errorf("desktop notify parse id %q: %w", fields[1], parseErr)
	}
	return uint32(value), nil
}

// desktopDismiss requests explicit close by notification ID.
func desktopDismiss(ctx context.Context, id uint32) error {
	_, err := runBusctl(ctx,
		"--user",
		"call",
		"org.freedesktop.Notifications",
		"/org/freedesktop/Notifications",
		"org.freedesktop.Notifications",
		"CloseNotification",
		"u",
		strconv.FormatUint(uint64(id), 10),
	)
	if err != nil {
		return fmt.Errorf("desktop dismiss failed: %w", err)
	}
	return nil
}

func runBusctl(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "busctl", args...).CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		if trimmed == "" {
			return "", err
		}
		return "", fmt.Errorf("%w (%s)", err, trimmed)
	}
	return trimmed, nil
}
