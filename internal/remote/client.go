// Package remote wraps the OpenAI-compatible speech-to-text, chat, and text-to-speech endpoints.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL            = "https://api.openai.com/v1"
	DefaultChatModel          = openai.GPT3Dot5Turbo
	DefaultTranscriptionModel = openai.Whisper1
	DefaultSpeechModel        = string(openai.TTSModel1)
	DefaultVoice              = string(openai.VoiceAlloy)
	DefaultSpeechFormat       = string(openai.SpeechResponseFormatMp3)
	DefaultMaxTokens          = 1024
	DefaultTimeout            = 60 * time.Second
)

// Voices lists the accepted speech voices.
var Voices = []string{
	string(openai.VoiceAlloy),
	string(openai.VoiceEcho),
	string(openai.VoiceFable),
	string(openai.VoiceOnyx),
	string(openai.VoiceNova),
	string(openai.VoiceShimmer),
}

// Config holds the credential and model choices for one client.
type Config struct {
	APIKey             string
	BaseURL            string
	ChatModel          string
	TranscriptionModel string
	SpeechModel        string
	Voice              string
	SpeechFormat       string
	MaxTokens          int
	Timeout            time.Duration
	ScratchDir         string
	HTTPClient         *http.Client
}

// Client performs single-attempt remote calls and classifies every failure as *Error.
type Client struct {
	cfg    Config
	api    *openai.Client
	urlErr error
}

// NewClient builds a client. A malformed base URL is reported as KindInvalidURL on each call.
func NewClient(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = DefaultTranscriptionModel
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = DefaultSpeechModel
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	if cfg.SpeechFormat == "" {
		cfg.SpeechFormat = DefaultSpeechFormat
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout < 0 {
		cfg.Timeout = 0
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	apiCfg.HTTPClient = responseGuard{doer: httpClient}

	return &Client{
		cfg:    cfg,
		api:    openai.NewClientWithConfig(apiCfg),
		urlErr: ValidateBaseURL(cfg.BaseURL),
	}
}

// Transcribe uploads an audio file and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, path string) (string, error) {
	const op = "transcribe"
	ctx, cancel, err := c.begin(ctx, op)
	if err != nil {
		return "", err
	}
	defer cancel()

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.cfg.TranscriptionModel,
		FilePath: path,
	})
	if err != nil {
		return "", classify(op, err)
	}
	return resp.Text, nil
}

// Complete sends prompt as a single user message and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	const op = "complete"
	ctx, cancel, err := c.begin(ctx, op)
	if err != nil {
		return "", err
	}
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: c.cfg.MaxTokens,
	})
	if err != nil {
		return "", classify(op, err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Kind: KindInvalidResponse, Op: op, Err: errors.New("response contained no choices")}
	}
	return resp.Choices[0].Message.Content, nil
}

// SynthesizeSpeech renders text to an audio file in the scratch directory and returns its path.
// The caller owns the file.
func (c *Client) SynthesizeSpeech(ctx context.Context, text string) (string, error) {
	const op = "synthesize"
	ctx, cancel, err := c.begin(ctx, op)
	if err != nil {
		return "", err
	}
	defer cancel()

	resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.cfg.SpeechModel),
		Input:          text,
		Voice:          openai.SpeechVoice(c.cfg.Voice),
		ResponseFormat: openai.SpeechResponseFormat(c.cfg.SpeechFormat),
	})
	if err != nil {
		return "", classify(op, err)
	}
	defer resp.Close()

	path := filepath.Join(c.cfg.ScratchDir, uuid.NewString()+"."+c.cfg.SpeechFormat)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", &Error{Kind: KindRequestFailed, Op: op, Err: fmt.Errorf("create audio file: %w", err)}
	}

	written, copyErr := io.Copy(file, resp)
	closeErr := file.Close()
	switch {
	case copyErr != nil:
		_ = os.Remove(path)
		return "", &Error{Kind: KindRequestFailed, Op: op, Err: fmt.Errorf("read audio body: %w", copyErr)}
	case closeErr != nil:
		_ = os.Remove(path)
		return "", &Error{Kind: KindRequestFailed, Op: op, Err: fmt.Errorf("write audio file: %w", closeErr)}
	case written == 0:
		_ = os.Remove(path)
		return "", &Error{Kind: KindInvalidResponse, Op: op, Err: errors.New("empty audio body")}
	}
	return path, nil
}

// Ping lists models to confirm the endpoint and credential are usable.
func (c *Client) Ping(ctx context.Context) error {
	const op = "ping"
	ctx, cancel, err := c.begin(ctx, op)
	if err != nil {
		return err
	}
	defer cancel()

	if _, err := c.api.ListModels(ctx); err != nil {
		return classify(op, err)
	}
	return nil
}

// begin validates the endpoint and bounds the call by the configured timeout.
func (c *Client) begin(ctx context.Context, op string) (context.Context, context.CancelFunc, error) {
	if c.urlErr != nil {
		return nil, nil, &Error{Kind: KindInvalidURL, Op: op, Err: c.urlErr}
	}
	if c.cfg.Timeout <= 0 {
		ctx, cancel := context.WithCancel(ctx)
		return ctx, cancel, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	return ctx, cancel, nil
}

// ValidateBaseURL reports whether raw is an absolute http(s) URL with a host.
func ValidateBaseURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("base URL %q must use http or https", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("base URL %q has no host", raw)
	}
	return nil
}
