package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newFakeSpeechAPI(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Messages) != 1 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hi there"},"finish_reason":"stop"}]}`)
	})
	mux.HandleFunc("/v1/audio/speech", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(bytes.Repeat([]byte{0xff}, 2048))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestChatOwnerServesPromptAndForwardedCommands(t *testing.T) {
	server := newFakeSpeechAPI(t)
	scratchBase := filepath.Join(t.TempDir(), "scratch")
	paths := setupRunnerEnv(t, fmt.Sprintf(`{
  "api": { "base_url": %q },
  "playback": { "enable": false },
  "indicator": { "enable": false, "sound_enable": false },
  "audio": { "scratch_dir": %q }
}`, server.URL+"/v1", scratchBase))
	t.Setenv("OPENAI_API_KEY", "sk-test")

	stdinReader, stdinWriter := io.Pipe()
	var stdout syncBuffer
	var stderr syncBuffer

	exitCh := make(chan int, 1)
	go func() {
		runner := Runner{Stdin: stdinReader, Stdout: &stdout, Stderr: &stderr}
		exitCh <- runner.Execute(context.Background(), []string{"--config", paths.configPath, "chat"})
	}()

	socketPath := paths.socketPath()
	require.Eventually(t, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	}, 3*time.Second, 10*time.Millisecond)

	_, err := io.WriteString(stdinWriter, "hello\n")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(stdout.String()), []byte("[2] assistant"))
	}, 5*time.Second, 10*time.Millisecond, stdout.String())
	require.Contains(t, stdout.String(), "[1] user")
	require.Contains(t, stdout.String(), ": hello\n")
	require.Contains(t, stdout.String(), "hi there (audio 2.0 kB, /play 2)")

	var logOut bytes.Buffer
	var logErr bytes.Buffer
	client := Runner{Stdout: &logOut, Stderr: &logErr}
	require.Eventually(t, func() bool {
		logOut.Reset()
		logErr.Reset()
		return client.Execute(context.Background(), []string{"--config", paths.configPath, "status"}) == 0 &&
			logOut.String() == "idle\n"
	}, 2*time.Second, 10*time.Millisecond, logErr.String())

	logOut.Reset()
	require.Equal(t, 0, client.Execute(context.Background(), []string{"--config", paths.configPath, "log"}), logErr.String())
	require.Contains(t, logOut.String(), "[1] user")
	require.Contains(t, logOut.String(), "[2] assistant")
	require.Contains(t, logOut.String(), "/play 2")

	var dupOut bytes.Buffer
	var dupErr bytes.Buffer
	duplicate := Runner{Stdin: bytes.NewReader(nil), Stdout: &dupOut, Stderr: &dupErr}
	require.Equal(t, 1, duplicate.Execute(context.Background(), []string{"--config", paths.configPath, "chat"}))
	require.Contains(t, dupErr.String(), "already running")

	_, err = io.WriteString(stdinWriter, "/quit\n")
	require.NoError(t, err)

	select {
	case code := <-exitCh:
		require.Equal(t, 0, code, stderr.String())
	case <-time.After(5 * time.Second):
		t.Fatal("chat owner did not exit after /quit")
	}
	_ = stdinWriter.Close()

	_, err = os.Stat(socketPath)
	require.ErrorIs(t, err, os.ErrNotExist)

	entries, err := os.ReadDir(scratchBase)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestChatOwnerKeepsAudioWhenRequested(t *testing.T) {
	scratchBase := filepath.Join(t.TempDir(), "scratch")
	paths := setupRunnerEnv(t, fmt.Sprintf(`{
  "playback": { "enable": false },
  "indicator": { "enable": false },
  "audio": { "scratch_dir": %q },
  "debug": { "keep_audio": true }
}`, scratchBase))
	t.Setenv("OPENAI_API_KEY", "")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdin: bytes.NewReader(nil), Stdout: &stdout, Stderr: &stderr}

	require.Equal(t, 0, runner.Execute(context.Background(), []string{"--config", paths.configPath, "chat"}))
	require.Contains(t, stdout.String(), "parley chat:")
	require.Contains(t, stderr.String(), "OPENAI_API_KEY is not set")
	require.Contains(t, stderr.String(), "audio kept in "+scratchBase)

	entries, err := os.ReadDir(scratchBase)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
