package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	API       *jsoncAPI       `json:"api"`
	Models    *jsoncModels    `json:"models"`
	Chat      *jsoncChat      `json:"chat"`
	Speech    *jsoncSpeech    `json:"speech"`
	Audio     *jsoncAudio     `json:"audio"`
	Playback  *jsoncPlayback  `json:"playback"`
	Indicator *jsoncIndicator `json:"indicator"`
	Debug     *jsoncDebug     `json:"debug"`
}

type jsoncAPI struct {
	BaseURL   *string `json:"base_url"`
	KeyEnv    *string `json:"key_env"`
	TimeoutMS *int    `json:"timeout_ms"`
}

type jsoncModels struct {
	Chat          *string `json:"chat"`
	Transcription *string `json:"transcription"`
	Speech        *string `json:"speech"`
}

type jsoncChat struct {
	MaxTokens *int `json:"max_tokens"`
}

type jsoncSpeech struct {
	Voice  *string `json:"voice"`
	Format *string `json:"format"`
}

type jsoncAudio struct {
	Input           *string `json:"input"`
	Fallback        *string `json:"fallback"`
	LevelIntervalMS *int    `json:"level_interval_ms"`
	LevelCapacity   *int    `json:"level_capacity"`
	ScratchDir      *string `json:"scratch_dir"`
}

type jsoncPlayback struct {
	Enable  *bool   `json:"enable"`
	Command *string `json:"command"`
}

type jsoncIndicator struct {
	Enable            *bool   `json:"enable"`
	DesktopAppName    *string `json:"desktop_app_name"`
	SoundEnable       *bool   `json:"sound_enable"`
	SoundStartFile    *string `json:"sound_start_file"`
	SoundStopFile     *string `json:"sound_stop_file"`
	SoundCompleteFile *string `json:"sound_complete_file"`
	SoundCancelFile   *string `json:"sound_cancel_file"`
	ErrorTimeoutMS    *int    `json:"error_timeout_ms"`
}

type jsoncDebug struct {
	LogLevel  *string `json:"log_level"`
	KeepAudio *bool   `json:"keep_audio"`
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) error {
	if payload.API != nil {
		setTrimmed(&cfg.API.BaseURL, payload.API.BaseURL)
		setTrimmed(&cfg.API.KeyEnv, payload.API.KeyEnv)
		setValue(&cfg.API.TimeoutMS, payload.API.TimeoutMS)
	}

	if payload.Models != nil {
		setTrimmed(&cfg.Models.Chat, payload.Models.Chat)
		setTrimmed(&cfg.Models.Transcription, payload.Models.Transcription)
		setTrimmed(&cfg.Models.Speech, payload.Models.Speech)
	}

	if payload.Chat != nil {
		setValue(&cfg.Chat.MaxTokens, payload.Chat.MaxTokens)
	}

	if payload.Speech != nil {
		if payload.Speech.Voice != nil {
			cfg.Speech.Voice = strings.ToLower(strings.TrimSpace(*payload.Speech.Voice))
		}
		if payload.Speech.Format != nil {
			cfg.Speech.Format = strings.ToLower(strings.TrimSpace(*payload.Speech.Format))
		}
	}

	if payload.Audio != nil {
		setValue(&cfg.Audio.Input, payload.Audio.Input)
		setValue(&cfg.Audio.Fallback, payload.Audio.Fallback)
		setValue(&cfg.Audio.LevelIntervalMS, payload.Audio.LevelIntervalMS)
		setValue(&cfg.Audio.LevelCapacity, payload.Audio.LevelCapacity)
		setTrimmed(&cfg.Audio.ScratchDir, payload.Audio.ScratchDir)
	}

	if payload.Playback != nil {
		setValue(&cfg.Playback.Enable, payload.Playback.Enable)
		if payload.Playback.Command != nil {
			raw := *payload.Playback.Command
			argv, err := parseArgv(raw)
			if err != nil {
				return fmt.Errorf("invalid playback.command: %w", err)
			}
			cfg.Playback.Command = CommandConfig{Raw: raw, Argv: argv}
		}
	}

	if payload.Indicator != nil {
		setValue(&cfg.Indicator.Enable, payload.Indicator.Enable)
		setTrimmed(&cfg.Indicator.DesktopAppName, payload.Indicator.DesktopAppName)
		setValue(&cfg.Indicator.SoundEnable, payload.Indicator.SoundEnable)
		setTrimmed(&cfg.Indicator.SoundStartFile, payload.Indicator.SoundStartFile)
		setTrimmed(&cfg.Indicator.SoundStopFile, payload.Indicator.SoundStopFile)
		setTrimmed(&cfg.Indicator.SoundCompleteFile, payload.Indicator.SoundCompleteFile)
		setTrimmed(&cfg.Indicator.SoundCancelFile, payload.Indicator.SoundCancelFile)
		setValue(&cfg.Indicator.ErrorTimeoutMS, payload.Indicator.ErrorTimeoutMS)
	}

	if payload.Debug != nil {
		if payload.Debug.LogLevel != nil {
			cfg.Debug.LogLevel = strings.ToLower(strings.TrimSpace(*payload.Debug.LogLevel))
		}
		setValue(&cfg.Debug.KeepAudio, payload.Debug.KeepAudio)
	}

	return nil
}

func setValue[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setTrimmed(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
