// Package config resolves, parses, validates, and defaults parley configuration.
package config

import (
	"log/slog"
	"strings"
	"time"
)

// Config is the fully materialized runtime configuration used by parley.
type Config struct {
	API       APIConfig
	Models    ModelsConfig
	Chat      ChatConfig
	Speech    SpeechConfig
	Audio     AudioConfig
	Playback  PlaybackConfig
	Indicator IndicatorConfig
	Debug     DebugConfig
}

// APIConfig locates the OpenAI-compatible endpoint and its credential.
type APIConfig struct {
	BaseURL   string
	KeyEnv    string
	TimeoutMS int
}

// Timeout returns the per-call deadline; zero disables it.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// ModelsConfig names the remote model used by each call.
type ModelsConfig struct {
	Chat          string
	Transcription string
	Speech        string
}

// ChatConfig controls completion requests.
type ChatConfig struct {
	MaxTokens int
}

// SpeechConfig controls synthesized reply audio.
type SpeechConfig struct {
	Voice  string
	Format string
}

// AudioConfig controls input-source selection, level sampling, and scratch files.
type AudioConfig struct {
	Input           string
	Fallback        string
	LevelIntervalMS int
	LevelCapacity   int
	ScratchDir      string
}

// LevelInterval returns the level sampling cadence.
func (c AudioConfig) LevelInterval() time.Duration {
	return time.Duration(c.LevelIntervalMS) * time.Millisecond
}

// PlaybackConfig controls reply playback.
type PlaybackConfig struct {
	Enable  bool
	Command CommandConfig
}

// IndicatorConfig controls desktop notifications and audio cue behavior.
type IndicatorConfig struct {
	Enable            bool
	DesktopAppName    string
	SoundEnable       bool
	SoundStartFile    string
	SoundStopFile     string
	SoundCompleteFile string
	SoundCancelFile   string
	ErrorTimeoutMS    int
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// DebugConfig controls log verbosity and artifact retention.
type DebugConfig struct {
	LogLevel  string
	KeepAudio bool
}

// SlogLevel maps LogLevel onto a slog level. Unknown values map to info.
func (c DebugConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
