package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   Kind
		status int
	}{
		{
			name:   "api error unauthorized",
			err:    &openai.APIError{HTTPStatusCode: 401, Message: "bad key"},
			kind:   KindAuthenticationFailed,
			status: 401,
		},
		{
			name:   "api error rate limit",
			err:    &openai.APIError{HTTPStatusCode: 429},
			kind:   KindRateLimitExceeded,
			status: 429,
		},
		{
			name:   "api error server",
			err:    &openai.APIError{HTTPStatusCode: 503},
			kind:   KindServerError,
			status: 503,
		},
		{
			name:   "api error other status",
			err:    &openai.APIError{HTTPStatusCode: 404},
			kind:   KindUnknown,
			status: 404,
		},
		{
			name:   "request error with unparseable body keeps status",
			err:    &openai.RequestError{HTTPStatusCode: 500, Err: &json.SyntaxError{}},
			kind:   KindServerError,
			status: 500,
		},
		{
			name: "request error without status",
			err:  &openai.RequestError{Err: errors.New("odd")},
			kind: KindInvalidResponse,
		},
		{
			name:   "redirect status",
			err:    &statusError{code: 304},
			kind:   KindUnknown,
			status: 304,
		},
		{
			name: "missing response field",
			err:  &missingFieldError{field: "text"},
			kind: KindDecodingFailed,
		},
		{
			name: "url parse",
			err:  &url.Error{Op: "parse", URL: "::", Err: errors.New("missing protocol scheme")},
			kind: KindInvalidURL,
		},
		{
			name: "transport",
			err:  &url.Error{Op: "Post", URL: "http://127.0.0.1:1", Err: errors.New("connection refused")},
			kind: KindRequestFailed,
		},
		{
			name: "deadline",
			err:  fmt.Errorf("wrapped: %w", context.DeadlineExceeded),
			kind: KindRequestFailed,
		},
		{
			name: "syntax",
			err:  &json.SyntaxError{Offset: 1},
			kind: KindDecodingFailed,
		},
		{
			name: "empty body",
			err:  io.EOF,
			kind: KindDecodingFailed,
		},
		{
			name: "anything else",
			err:  errors.New("opening audio file: no such file"),
			kind: KindRequestFailed,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := classify("op", tc.err)
			var remoteErr *Error
			require.ErrorAs(t, err, &remoteErr)
			require.Equal(t, tc.kind, remoteErr.Kind)
			require.Equal(t, tc.status, remoteErr.StatusCode)
			require.Equal(t, "op", remoteErr.Op)
			require.ErrorIs(t, err, tc.kind)
			require.Equal(t, tc.kind, KindOf(err))
		})
	}
}

func TestClassifyPassesThroughTypedErrors(t *testing.T) {
	require.NoError(t, classify("op", nil))

	original := &Error{Kind: KindInvalidResponse, Op: "complete"}
	require.Same(t, original, classify("other", original))
}

func TestErrorFormatting(t *testing.T) {
	err := &Error{Kind: KindRateLimitExceeded, Op: "transcribe", StatusCode: 429, Err: errors.New("slow down")}
	require.Equal(t, "transcribe: rate limit exceeded (HTTP 429): slow down", err.Error())

	require.Equal(t, "invalid URL", (&Error{Kind: KindInvalidURL}).Error())
	require.Equal(t, "complete: decoding failed: EOF", (&Error{Kind: KindDecodingFailed, Op: "complete", Err: io.EOF}).Error())
	require.Equal(t, "server error (HTTP 502)", (&Error{Kind: KindServerError, StatusCode: 502}).Error())
}

func TestErrorIsMatchesKindOnly(t *testing.T) {
	err := fmt.Errorf("turn: %w", &Error{Kind: KindServerError, StatusCode: 500})
	require.ErrorIs(t, err, KindServerError)
	require.ErrorIs(t, err, &Error{Kind: KindServerError})
	require.NotErrorIs(t, err, KindAuthenticationFailed)
	require.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}
