package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		APIKey:     "sk-test",
		BaseURL:    server.URL + "/v1",
		Timeout:    2 * time.Second,
		ScratchDir: t.TempDir(),
	})
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func apiFailure(message string) map[string]any {
	return map[string]any{"error": map[string]any{"message": message, "type": "test_error"}}
}

func writeRecordingFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "turn.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF....WAVE"), 0o600))
	return path
}

func TestCompleteReturnsFirstChoice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			Messages  []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, DefaultChatModel, req.Model)
		require.Equal(t, DefaultMaxTokens, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		require.Equal(t, "user", req.Messages[0].Role)
		require.Equal(t, "hello there", req.Messages[0].Content)

		writeJSON(t, w, http.StatusOK, map[string]any{
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": "Hi!"}},
				{"index": 1, "message": map[string]any{"role": "assistant", "content": "ignored"}},
			},
		})
	})

	reply, err := client.Complete(context.Background(), "hello there")
	require.NoError(t, err)
	require.Equal(t, "Hi!", reply)
}

func TestCompleteStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   Kind
	}{
		{status: http.StatusUnauthorized, kind: KindAuthenticationFailed},
		{status: http.StatusTooManyRequests, kind: KindRateLimitExceeded},
		{status: http.StatusInternalServerError, kind: KindServerError},
		{status: http.StatusBadGateway, kind: KindServerError},
		{status: http.StatusNotFound, kind: KindUnknown},
		{status: http.StatusMultipleChoices, kind: KindUnknown},
		{status: http.StatusNotModified, kind: KindUnknown},
	}

	for _, tc := range tests {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				if tc.status < http.StatusBadRequest {
					w.WriteHeader(tc.status)
					return
				}
				writeJSON(t, w, tc.status, apiFailure("nope"))
			})

			_, err := client.Complete(context.Background(), "hi")
			require.ErrorIs(t, err, tc.kind)

			var remoteErr *Error
			require.ErrorAs(t, err, &remoteErr)
			require.Equal(t, tc.status, remoteErr.StatusCode)
			require.Equal(t, "complete", remoteErr.Op)
		})
	}
}

func TestCompleteStatusWithPlainTextBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "upstream unavailable")
	})

	_, err := client.Complete(context.Background(), "hi")
	require.ErrorIs(t, err, KindServerError)
}

func TestCompleteMalformedBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind Kind
	}{
		{name: "not json", body: "{not json", kind: KindDecodingFailed},
		{name: "empty body", body: "", kind: KindDecodingFailed},
		{name: "wrong shape", body: `{"choices": "many"}`, kind: KindDecodingFailed},
		{name: "no choices", body: `{"choices": []}`, kind: KindInvalidResponse},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, tc.body)
			})

			_, err := client.Complete(context.Background(), "hi")
			require.ErrorIs(t, err, tc.kind)
		})
	}
}

func TestInvalidBaseURL(t *testing.T) {
	for _, raw := range []string{"::not a url", "ftp://example.com", "http://"} {
		t.Run(raw, func(t *testing.T) {
			client := NewClient(Config{APIKey: "sk", BaseURL: raw})

			_, err := client.Complete(context.Background(), "hi")
			require.ErrorIs(t, err, KindInvalidURL)
			_, err = client.Transcribe(context.Background(), "/tmp/none.wav")
			require.ErrorIs(t, err, KindInvalidURL)
			_, err = client.SynthesizeSpeech(context.Background(), "hi")
			require.ErrorIs(t, err, KindInvalidURL)
			require.ErrorIs(t, client.Ping(context.Background()), KindInvalidURL)
		})
	}
}

func TestUnreachableServerIsRequestFailed(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	client := NewClient(Config{APIKey: "sk", BaseURL: baseURL, Timeout: time.Second})
	_, err := client.Complete(context.Background(), "hi")
	require.ErrorIs(t, err, KindRequestFailed)
}

func TestTimeoutIsRequestFailed(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	client := NewClient(Config{APIKey: "sk", BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	_, err := client.Complete(context.Background(), "hi")
	require.ErrorIs(t, err, KindRequestFailed)
}

func TestTranscribeUploadsRecording(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, DefaultTranscriptionModel, r.FormValue("model"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		require.Equal(t, "turn.wav", header.Filename)
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		require.Equal(t, "RIFF....WAVE", string(data))

		writeJSON(t, w, http.StatusOK, map[string]any{"text": "what time is it"})
	})

	text, err := client.Transcribe(context.Background(), writeRecordingFixture(t))
	require.NoError(t, err)
	require.Equal(t, "what time is it", text)
}

func TestTranscribeFailures(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusTooManyRequests, apiFailure("slow down"))
	})

	_, err := client.Transcribe(context.Background(), writeRecordingFixture(t))
	require.ErrorIs(t, err, KindRateLimitExceeded)
	require.Contains(t, err.Error(), "slow down")

	_, err = client.Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))
	require.ErrorIs(t, err, KindRequestFailed)
}

func TestTranscribeRequiresTextField(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr Kind
	}{
		{name: "missing text", body: `{"unexpected":true}`, wantErr: KindDecodingFailed},
		{name: "not json", body: `{"text":`, wantErr: KindDecodingFailed},
		{name: "empty text", body: `{"text":""}`, want: ""},
		{name: "text present", body: `{"text":"hi","language":"en"}`, want: "hi"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, tc.body)
			})

			text, err := client.Transcribe(context.Background(), writeRecordingFixture(t))
			if tc.wantErr != KindUnknown {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, text)
		})
	}
}

func TestSynthesizeSpeechWritesScratchFile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/audio/speech", r.URL.Path)

		var req struct {
			Model          string `json:"model"`
			Input          string `json:"input"`
			Voice          string `json:"voice"`
			ResponseFormat string `json:"response_format"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, DefaultSpeechModel, req.Model)
		require.Equal(t, "Hi!", req.Input)
		require.Equal(t, DefaultVoice, req.Voice)
		require.Equal(t, "mp3", req.ResponseFormat)

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-audio-bytes"))
	})

	path, err := client.SynthesizeSpeech(context.Background(), "Hi!")
	require.NoError(t, err)
	require.Equal(t, ".mp3", filepath.Ext(path))
	require.Equal(t, client.cfg.ScratchDir, filepath.Dir(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "ID3-audio-bytes", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSynthesizeSpeechFailuresLeaveNoFile(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		kind    Kind
	}{
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(t, w, http.StatusUnauthorized, apiFailure("bad key"))
			},
			kind: KindAuthenticationFailed,
		},
		{
			name: "empty body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
			kind: KindInvalidResponse,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, tc.handler)

			path, err := client.SynthesizeSpeech(context.Background(), "Hi!")
			require.ErrorIs(t, err, tc.kind)
			require.Empty(t, path)

			entries, err := os.ReadDir(client.cfg.ScratchDir)
			require.NoError(t, err)
			require.Empty(t, entries)
		})
	}
}

func TestSynthesizeSpeechWAVFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("RIFF-bytes"))
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{BaseURL: server.URL, SpeechFormat: "wav", ScratchDir: t.TempDir()})
	path, err := client.SynthesizeSpeech(context.Background(), "Hi!")
	require.NoError(t, err)
	require.Equal(t, ".wav", filepath.Ext(path))
}

func TestPing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models", r.URL.Path)
		writeJSON(t, w, http.StatusOK, map[string]any{"data": []any{}})
	})
	require.NoError(t, client.Ping(context.Background()))

	denied := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, apiFailure("bad key"))
	})
	require.ErrorIs(t, denied.Ping(context.Background()), KindAuthenticationFailed)
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(Config{})
	require.Equal(t, DefaultBaseURL, client.cfg.BaseURL)
	require.Equal(t, DefaultVoice, client.cfg.Voice)
	require.Equal(t, DefaultSpeechFormat, client.cfg.SpeechFormat)
	require.Equal(t, DefaultMaxTokens, client.cfg.MaxTokens)
	require.NoError(t, client.urlErr)
}
