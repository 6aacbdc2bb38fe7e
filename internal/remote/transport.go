package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// requiredFields names the JSON field a successful response must carry, keyed by path suffix.
var requiredFields = map[string]string{
	"/audio/transcriptions": "text",
}

// statusError is a response go-openai would hand to its decoder although it is not a success.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.code, http.StatusText(e.code))
}

type missingFieldError struct {
	field string
}

func (e *missingFieldError) Error() string {
	return fmt.Sprintf("response has no %q field", e.field)
}

// responseGuard rejects 3xx responses and successful bodies that lack a required field.
// go-openai only treats statuses outside 200..399 as failures.
type responseGuard struct {
	doer openai.HTTPDoer
}

func (g responseGuard) Do(req *http.Request) (*http.Response, error) {
	resp, err := g.doer.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= http.StatusMultipleChoices && resp.StatusCode < http.StatusBadRequest {
		_ = resp.Body.Close()
		return nil, &statusError{code: resp.StatusCode}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return resp, nil
	}

	field, ok := requiredFieldFor(req.URL.Path)
	if !ok {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	var fields map[string]json.RawMessage
	if json.Unmarshal(body, &fields) != nil {
		// Leave malformed bodies to the decoder.
		return resp, nil
	}
	if _, present := fields[field]; !present {
		return nil, &missingFieldError{field: field}
	}
	return resp, nil
}

func requiredFieldFor(path string) (string, bool) {
	for suffix, field := range requiredFields {
		if strings.HasSuffix(path, suffix) {
			return field, true
		}
	}
	return "", false
}
