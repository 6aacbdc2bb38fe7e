// Package doctor runs readiness diagnostics for config, credential, audio, and the remote API.
package doctor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/parley/internal/audio"
	"github.com/rbright/parley/internal/config"
	"github.com/rbright/parley/internal/remote"
)

const pingTimeout = 5 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	lines := make([]string, 0, len(r.Checks))
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", status, check.Name, check.Message))
	}
	return strings.Join(lines, "\n")
}

// Run executes config, credential, audio, API, and tool checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded) Report {
	cfg := loaded.Config
	apiKey := config.Credential(cfg)

	checks := []Check{
		checkConfig(loaded),
		checkCredential(cfg.API.KeyEnv, apiKey),
		checkBaseURL(cfg.API.BaseURL),
		checkAudioSelection(ctx, cfg),
		checkAPI(ctx, cfg, apiKey),
	}

	if cfg.Playback.Enable && len(cfg.Playback.Command.Argv) > 0 {
		checks = append(checks, checkCommand(cfg.Playback.Command.Argv, "playback.command"))
	}
	if cfg.Indicator.Enable {
		checks = append(checks, checkBinary("busctl", "desktop notifications"))
	}

	return Report{Checks: checks}
}

func checkConfig(loaded config.Loaded) Check {
	message := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		message = fmt.Sprintf("using defaults (%q not found)", loaded.Path)
	}
	if n := len(loaded.Warnings); n > 0 && loaded.Exists {
		message += fmt.Sprintf(" with %d warning(s)", n)
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkCredential reports whether the key env var is populated without echoing its value.
func checkCredential(keyEnv string, apiKey string) Check {
	if apiKey == "" {
		return Check{Name: "api.key", Pass: false, Message: fmt.Sprintf("%s is not set (environment or .env)", keyEnv)}
	}
	return Check{Name: "api.key", Pass: true, Message: fmt.Sprintf("%s is set (%d chars)", keyEnv, len(apiKey))}
}

func checkBaseURL(raw string) Check {
	if err := remote.ValidateBaseURL(raw); err != nil {
		return Check{Name: "api.base_url", Pass: false, Message: err.Error()}
	}
	return Check{Name: "api.base_url", Pass: true, Message: raw}
}

// checkAPI lists models to confirm the endpoint answers and accepts the credential.
func checkAPI(ctx context.Context, cfg config.Config, apiKey string) Check {
	timeout := cfg.API.Timeout()
	if timeout <= 0 || timeout > pingTimeout {
		timeout = pingTimeout
	}

	client := remote.NewClient(remote.Config{
		APIKey:  apiKey,
		BaseURL: cfg.API.BaseURL,
		Timeout: timeout,
	})
	if err := client.Ping(ctx); err != nil {
		return Check{Name: "api.reachable", Pass: false, Message: err.Error()}
	}
	return Check{Name: "api.reachable", Pass: true, Message: fmt.Sprintf("models listed at %s", cfg.API.BaseURL)}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message += " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}
