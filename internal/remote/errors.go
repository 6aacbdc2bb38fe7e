package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	openai "github.com/sashabaranov/go-openai"
)

// Kind classifies a remote call failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidURL
	KindRequestFailed
	KindInvalidResponse
	KindDecodingFailed
	KindAuthenticationFailed
	KindRateLimitExceeded
	KindServerError
)

func (k Kind) String() string {
	switch k {
	case KindInvalidURL:
		return "invalid URL"
	case KindRequestFailed:
		return "request failed"
	case KindInvalidResponse:
		return "invalid response"
	case KindDecodingFailed:
		return "decoding failed"
	case KindAuthenticationFailed:
		return "authentication failed"
	case KindRateLimitExceeded:
		return "rate limit exceeded"
	case KindServerError:
		return "server error"
	default:
		return "unknown error"
	}
}

// Error lets a bare Kind act as an errors.Is target.
func (k Kind) Error() string {
	return k.String()
}

// Error is the typed failure returned by every Client operation.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		msg = fmt.Sprintf("%s (HTTP %d): %v", msg, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	case e.Err != nil:
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error or a Kind with the same classification.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind
	default:
		return false
	}
}

// KindOf returns the classification carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr.Kind
	}
	return KindUnknown
}

// classify maps a go-openai or transport failure onto the Kind taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return err
	}

	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return &Error{Kind: KindUnknown, Op: op, StatusCode: statusErr.code, Err: err}
	}

	var fieldErr *missingFieldError
	if errors.As(err, &fieldErr) {
		return &Error{Kind: KindDecodingFailed, Op: op, Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Kind: kindForStatus(apiErr.HTTPStatusCode), Op: op, StatusCode: apiErr.HTTPStatusCode, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == 0 {
			return &Error{Kind: KindInvalidResponse, Op: op, Err: err}
		}
		return &Error{Kind: kindForStatus(reqErr.HTTPStatusCode), Op: op, StatusCode: reqErr.HTTPStatusCode, Err: reqErr.Err}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Op == "parse" {
			return &Error{Kind: KindInvalidURL, Op: op, Err: err}
		}
		return &Error{Kind: KindRequestFailed, Op: op, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindRequestFailed, Op: op, Err: err}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &Error{Kind: KindDecodingFailed, Op: op, Err: err}
	}

	return &Error{Kind: KindRequestFailed, Op: op, Err: err}
}

func kindForStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized:
		return KindAuthenticationFailed
	case code == http.StatusTooManyRequests:
		return KindRateLimitExceeded
	case code >= 500 && code <= 599:
		return KindServerError
	default:
		return KindUnknown
	}
}
