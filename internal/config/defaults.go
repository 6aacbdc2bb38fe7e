package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:   "https://api.openai.com/v1",
			KeyEnv:    "OPENAI_API_KEY",
			TimeoutMS: 60000,
		},
		Models: ModelsConfig{
			Chat:          "gpt-3.5-turbo",
			Transcription: "whisper-1",
			Speech:        "tts-1",
		},
		Chat:   ChatConfig{MaxTokens: 1024},
		Speech: SpeechConfig{Voice: "alloy", Format: "mp3"},
		Audio: AudioConfig{
			Input:           "default",
			Fallback:        "default",
			LevelIntervalMS: 100,
			LevelCapacity:   50,
		},
		Playback: PlaybackConfig{Enable: true},
		Indicator: IndicatorConfig{
			Enable:         true,
			DesktopAppName: "parley",
			SoundEnable:    true,
			ErrorTimeoutMS: 1600,
		},
		Debug: DebugConfig{LogLevel: "info"},
	}
}
