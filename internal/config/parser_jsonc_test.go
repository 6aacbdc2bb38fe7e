package config

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeJSONCRemovesCommentsAndTrailingCommas(t *testing.T) {
	input := `
{
  // line comment
  "items": [
    "one", /* block comment */
    "two",
  ],
  "nested": {
    "enabled": true,
  },
}
`

	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.NotContains(t, normalized, "//")
	require.NotContains(t, normalized, "/*")
	require.NotContains(t, normalized, ",]")
	require.NotContains(t, normalized, ",}")
}

func TestNormalizeJSONCRetainsCommentLikeTextInsideStrings(t *testing.T) {
	input := `{"value":"contains // and /* comment-like */ text",}`
	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.Contains(t, normalized, "// and /* comment-like */")
}

func TestNormalizeJSONCUnterminatedBlockCommentFails(t *testing.T) {
	_, err := normalizeJSONC("{ /* unterminated ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unterminated block comment")
}

func TestEnsureSingleJSONValueRejectsExtraPayload(t *testing.T) {
	decoder := json.NewDecoder(strings.NewReader(`{"one":1}{"two":2}`))
	var payload map[string]any
	require.NoError(t, decoder.Decode(&payload))

	err := ensureSingleJSONValue(decoder)
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple JSON values")
}

func TestOffsetToLineCol(t *testing.T) {
	content := "line1\nline2\nline3"
	line, col := offsetToLineCol(content, 1)
	require.Equal(t, 1, line)
	require.Equal(t, 1, col)

	line, col = offsetToLineCol(content, 8) // line2, col2
	require.Equal(t, 2, line)
	require.Equal(t, 2, col)

	line, col = offsetToLineCol(content, 999)
	require.Equal(t, 3, line)
	require.Equal(t, 5, col)
}

func TestParseJSONCAppliesAllSections(t *testing.T) {
	cfg, warnings, err := parseJSONC(`{
  // endpoint
  "api": {"base_url": " http://127.0.0.1:8080/v1 ", "key_env": "LOCAL_KEY", "timeout_ms": 5000},
  "models": {"chat": "gpt-4o-mini", "transcription": "whisper-large", "speech": "tts-1-hd"},
  "chat": {"max_tokens": 256},
  "speech": {"voice": " Nova ", "format": "WAV"},
  "audio": {"input": "rode", "fallback": "default", "level_interval_ms": 50, "level_capacity": 20, "scratch_dir": "/tmp/parley"},
  "playback": {"enable": false, "command": "mpv --no-video"},
  "indicator": {"enable": false, "sound_enable": false, "sound_complete_file": " /tmp/done.wav "},
  "debug": {"log_level": "DEBUG", "keep_audio": true},
}`, Default())
	require.NoError(t, err)

	require.Equal(t, "http://127.0.0.1:8080/v1", cfg.API.BaseURL)
	require.Equal(t, "LOCAL_KEY", cfg.API.KeyEnv)
	require.Equal(t, 5*time.Second, cfg.API.Timeout())
	require.Equal(t, ModelsConfig{Chat: "gpt-4o-mini", Transcription: "whisper-large", Speech: "tts-1-hd"}, cfg.Models)
	require.Equal(t, 256, cfg.Chat.MaxTokens)
	require.Equal(t, SpeechConfig{Voice: "nova", Format: "wav"}, cfg.Speech)
	require.Equal(t, "rode", cfg.Audio.Input)
	require.Equal(t, 50*time.Millisecond, cfg.Audio.LevelInterval())
	require.Equal(t, 20, cfg.Audio.LevelCapacity)
	require.Equal(t, "/tmp/parley", cfg.Audio.ScratchDir)
	require.False(t, cfg.Playback.Enable)
	require.Equal(t, []string{"mpv", "--no-video"}, cfg.Playback.Command.Argv)
	require.False(t, cfg.Indicator.Enable)
	require.False(t, cfg.Indicator.SoundEnable)
	require.Equal(t, "/tmp/done.wav", cfg.Indicator.SoundCompleteFile)
	require.Equal(t, "parley", cfg.Indicator.DesktopAppName)
	require.Equal(t, "debug", cfg.Debug.LogLevel)
	require.True(t, cfg.Debug.KeepAudio)

	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "replies will not auto-play")
}

func TestParseJSONCPartialSectionKeepsDefaults(t *testing.T) {
	cfg, warnings, err := parseJSONC(`{"models": {"chat": "gpt-4o"}}`, Default())
	require.NoError(t, err)
	require.Empty(t, warnings)

	want := Default()
	want.Models.Chat = "gpt-4o"
	require.Equal(t, want, cfg)
}

func TestParseJSONCRejectsInvalidCommandArgv(t *testing.T) {
	_, _, err := parseJSONC(`{"playback":{"command":"unterminated ' quote"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid playback.command")
}

func TestParseJSONCRejectsUnknownFields(t *testing.T) {
	_, _, err := parseJSONC(`{"history":{"persist":true}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown field")

	_, _, err = parseJSONC(`{"api":{"token":"sk-inline"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown field")
}

func TestParseJSONCRejectsMultipleTopLevelValues(t *testing.T) {
	_, _, err := parseJSONC(`{"playback":{"enable":false}}{"playback":{"enable":true}}`, Default())
	require.Error(t, err)
	require.True(
		t,
		strings.Contains(err.Error(), "multiple JSON values") || strings.Contains(err.Error(), "unknown field"),
		"unexpected error: %v",
		err,
	)
}

func TestParseJSONCTypeErrorIncludesLocation(t *testing.T) {
	_, _, err := parseJSONC(`{
  "chat": {"max_tokens": "lots"}
}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line")
	require.Contains(t, err.Error(), "column")
}

func TestParseJSONCValidatesResult(t *testing.T) {
	_, _, err := parseJSONC(`{"speech":{"voice":"robot"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "speech.voice")
}
