package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
)

var (
	validVoices        = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}
	validSpeechFormats = []string{"mp3", "wav"}
	validLogLevels     = []string{"debug", "info", "warn", "error"}
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.API.BaseURL) == "" {
		return nil, fmt.Errorf("api.base_url must not be empty")
	}
	if strings.TrimSpace(cfg.API.KeyEnv) == "" {
		return nil, fmt.Errorf("api.key_env must not be empty")
	}
	if cfg.API.TimeoutMS < 0 {
		return nil, fmt.Errorf("api.timeout_ms must be >= 0")
	}
	if strings.TrimSpace(cfg.Models.Chat) == "" {
		return nil, fmt.Errorf("models.chat must not be empty")
	}
	if strings.TrimSpace(cfg.Models.Transcription) == "" {
		return nil, fmt.Errorf("models.transcription must not be empty")
	}
	if strings.TrimSpace(cfg.Models.Speech) == "" {
		return nil, fmt.Errorf("models.speech must not be empty")
	}
	if cfg.Chat.MaxTokens <= 0 {
		return nil, fmt.Errorf("chat.max_tokens must be > 0")
	}
	if !slices.Contains(validVoices, cfg.Speech.Voice) {
		return nil, fmt.Errorf("speech.voice must be one of: %s", strings.Join(validVoices, ", "))
	}
	if !slices.Contains(validSpeechFormats, cfg.Speech.Format) {
		return nil, fmt.Errorf("speech.format must be one of: %s", strings.Join(validSpeechFormats, ", "))
	}
	if cfg.Audio.LevelIntervalMS <= 0 {
		return nil, fmt.Errorf("audio.level_interval_ms must be > 0")
	}
	if cfg.Audio.LevelCapacity <= 0 {
		return nil, fmt.Errorf("audio.level_capacity must be > 0")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}
	if cfg.Indicator.Enable && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.enable=true")
	}
	if !slices.Contains(validLogLevels, cfg.Debug.LogLevel) {
		return nil, fmt.Errorf("debug.log_level must be one of: %s", strings.Join(validLogLevels, ", "))
	}
	if cfg.Playback.Command.Raw != "" && len(cfg.Playback.Command.Argv) == 0 {
		return nil, fmt.Errorf("playback.command is configured but empty")
	}

	if warning, ok := plaintextEndpointWarning(cfg.API.BaseURL); ok {
		warnings = append(warnings, warning)
	}
	if !cfg.Playback.Enable && cfg.Playback.Command.Raw != "" {
		warnings = append(warnings, Warning{Message: "playback.command is set but playback.enable=false; replies will not auto-play"})
	}

	return warnings, nil
}

// plaintextEndpointWarning flags credentials that would cross the network unencrypted.
func plaintextEndpointWarning(raw string) (Warning, bool) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Scheme != "http" {
		return Warning{}, false
	}

	host := parsed.Hostname()
	if host == "localhost" {
		return Warning{}, false
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return Warning{}, false
	}
	return Warning{Message: fmt.Sprintf("api.base_url %q uses plain http; the API key is sent unencrypted", raw)}, true
}
