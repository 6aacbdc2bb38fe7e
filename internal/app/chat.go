package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rbright/parley/internal/audio"
	"github.com/rbright/parley/internal/config"
	"github.com/rbright/parley/internal/conversation"
	"github.com/rbright/parley/internal/indicator"
	"github.com/rbright/parley/internal/ipc"
	"github.com/rbright/parley/internal/remote"
)

// commandChat owns the conversation: it holds the runtime socket, serves
// forwarded commands, and runs the interactive prompt until quit or EOF.
func (r Runner) commandChat(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{
		ProbeTimeout: 180 * time.Millisecond,
		Retries:      8,
		OnStale: func(path string) {
			logger.Warn("removed stale socket", "path", path)
		},
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintf(r.Stderr, "hint: use `%s say TEXT` or `%s toggle` to talk to it\n", binaryName, binaryName)
		}
		return 1
	}
	defer func() {
		if err := ipc.Release(listener, socketPath); err != nil {
			logger.Warn("release socket failed", "error", err.Error())
		}
	}()

	scratchDir, err := newScratchDir(cfg.Audio.ScratchDir)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer r.cleanupScratch(cfg, scratchDir, logger)

	notifier := indicator.NewNotifier(cfg.Indicator, logger)
	engine := newEngine(cfg, scratchDir, notifier, logger)
	defer notifier.Wait()
	defer engine.Close()

	if config.Credential(cfg) == "" {
		fmt.Fprintf(r.Stderr, "warning: %s is not set; requests will fail authentication\n", cfg.API.KeyEnv)
	}

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, engine)
	}()

	logger.Info("chat started", "socket", socketPath, "scratch", scratchDir, "chat_model", cfg.Models.Chat)
	fmt.Fprint(r.Stdout, replBanner)

	replErr := newREPL(engine, r.stdin(), r.Stdout).Run(ctx)
	serverCancel()
	serverErr := <-serverErrCh

	logger.Info("chat finished", "messages", len(engine.Messages()))

	if serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}
	if replErr != nil {
		fmt.Fprintf(r.Stderr, "error: read input: %v\n", replErr)
		return 1
	}
	return 0
}

// newEngine assembles the conversation engine from config.
func newEngine(cfg config.Config, scratchDir string, notifier *indicator.Notifier, logger *slog.Logger) *conversation.Engine {
	recorder := audio.NewRecorder(audio.RecorderConfig{
		Input:         cfg.Audio.Input,
		Fallback:      cfg.Audio.Fallback,
		ScratchDir:    scratchDir,
		LevelInterval: cfg.Audio.LevelInterval(),
		LevelCapacity: cfg.Audio.LevelCapacity,
	}, logger)

	player := audio.NewPlayer(cfg.Playback.Command.Argv, logger)

	client := remote.NewClient(remote.Config{
		APIKey:             config.Credential(cfg),
		BaseURL:            cfg.API.BaseURL,
		ChatModel:          cfg.Models.Chat,
		TranscriptionModel: cfg.Models.Transcription,
		SpeechModel:        cfg.Models.Speech,
		Voice:              cfg.Speech.Voice,
		SpeechFormat:       cfg.Speech.Format,
		MaxTokens:          cfg.Chat.MaxTokens,
		Timeout:            cfg.API.Timeout(),
		ScratchDir:         scratchDir,
	})

	return conversation.NewEngine(logger, recorder, player, client, notifier, conversation.Options{
		AutoPlay:       cfg.Playback.Enable,
		KeepRecordings: cfg.Debug.KeepAudio,
		LevelInterval:  cfg.Audio.LevelInterval(),
	})
}

// newScratchDir creates the per-process directory holding recordings and reply audio.
func newScratchDir(base string) (string, error) {
	if base != "" {
		if err := os.MkdirAll(base, 0o700); err != nil {
			return "", fmt.Errorf("create scratch base %q: %w", base, err)
		}
	}
	dir, err := os.MkdirTemp(base, "parley-*")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	return dir, nil
}

// cleanupScratch removes per-process audio unless debug.keep_audio asks to retain it.
func (r Runner) cleanupScratch(cfg config.Config, dir string, logger *slog.Logger) {
	if cfg.Debug.KeepAudio {
		fmt.Fprintf(r.Stderr, "audio kept in %s\n", dir)
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("remove scratch dir failed", "path", dir, "error", err.Error())
	}
}
